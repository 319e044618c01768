// Package testutil contains helpers shared by the tests of blob-store implementations.
package testutil

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/split"
)

// Data produces n bytes of pseudorandom data.
// The same seed always produces the same data.
func Data(seed int64, n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

// ReadWrite permits testing a Store implementation
// by split-writing some data to it,
// then reading it back out to make sure it's the same.
func ReadWrite(ctx context.Context, t *testing.T, store bsdrive.Store, data []byte) {
	t1 := time.Now()
	ref, err := split.Write(ctx, store, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("wrote %d bytes in %s", len(data), time.Since(t1))

	buf := new(bytes.Buffer)
	t2 := time.Now()
	err = split.Read(ctx, store, ref, buf)
	if err != nil {
		t.Fatal(err)
	}
	got := buf.Bytes()
	t.Logf("read %d bytes in %s", len(got), time.Since(t2))

	if len(got) != len(data) {
		t.Errorf("got length %d, want %d", len(got), len(data))
	} else {
		for i := 0; i < len(got); i++ {
			if got[i] != data[i] {
				t.Fatalf("mismatch at position %d (of %d)", i, len(got))
			}
		}
	}

	ok, err := bsdrive.Has(ctx, store, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Errorf("store does not have root ref %s", ref)
	}
	ok, err = bsdrive.Has(ctx, store, bsdrive.Blob("never stored").Ref())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("store claims to have a blob that was never stored")
	}
}
