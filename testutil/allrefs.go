package testutil

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/bsdrive"
)

// AllRefs puts a set of blobs, some repeated, into an empty store,
// then checks that ListRefs produces each ref once, in order,
// both from the beginning and when resumed after a given ref.
func AllRefs(ctx context.Context, t *testing.T, store bsdrive.Store) {
	var blobs []bsdrive.Blob
	for i := 0; i < 40; i++ {
		blobs = append(blobs, bsdrive.Blob(fmt.Sprintf("blob %d", i%30)))
	}
	blobs = append(blobs, bsdrive.Blob{})

	var (
		seen = make(map[bsdrive.Ref]bool)
		want []bsdrive.Ref
	)
	for _, blob := range blobs {
		ref, added, err := store.Put(ctx, blob)
		if err != nil {
			t.Fatal(err)
		}
		if added == seen[ref] {
			t.Errorf("put %q: added is %v on repeat %v", blob, added, seen[ref])
		}
		if !seen[ref] {
			want = append(want, ref)
			seen[ref] = true
		}
	}
	sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })

	list := func(start bsdrive.Ref) []bsdrive.Ref {
		var got []bsdrive.Ref
		err := store.ListRefs(ctx, start, func(r bsdrive.Ref) error {
			got = append(got, r)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		return got
	}

	if diff := cmp.Diff(want, list(bsdrive.Zero)); diff != "" {
		t.Errorf("full listing mismatch (-want +got):\n%s", diff)
	}

	mid := len(want) / 2
	if diff := cmp.Diff(want[mid+1:], list(want[mid])); diff != "" {
		t.Errorf("listing after %s mismatch (-want +got):\n%s", want[mid], diff)
	}
}
