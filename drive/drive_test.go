package drive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/mirror"
	"github.com/bobg/bsdrive/store/mem"
	"github.com/bobg/bsdrive/testutil"
)

func TestParseKey(t *testing.T) {
	valid := strings.Repeat("0123456789abcdef", 4)
	k, err := ParseKey(valid)
	if err != nil {
		t.Fatal(err)
	}
	if k.String() != valid {
		t.Errorf("got %s, want %s", k, valid)
	}

	for _, s := range []string{"", "abc", valid[:63], valid + "0", strings.Repeat("zz", 32)} {
		_, err := ParseKey(s)
		var verr *bsdrive.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("ParseKey(%q): got error %v, want ValidationError", s, err)
		}
	}
}

func TestDiscoveryKey(t *testing.T) {
	k1, err := NewKey()
	if err != nil {
		t.Fatal(err)
	}
	k2, err := NewKey()
	if err != nil {
		t.Fatal(err)
	}
	if k1.DiscoveryKey() != k1.DiscoveryKey() {
		t.Error("discovery key is not deterministic")
	}
	if k1.DiscoveryKey() == k2.DiscoveryKey() {
		t.Error("distinct keys have the same discovery key")
	}
	if k1.DiscoveryKey() == [32]byte(k1) {
		t.Error("discovery key reveals the drive key")
	}
}

func TestIdentity(t *testing.T) {
	ctx := context.Background()
	st := mem.New()

	d1, err := Open(ctx, st, nil)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Open(ctx, st, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d1.Key() != d2.Key() {
		t.Errorf("reopened drive has key %s, want %s", d2.Key(), d1.Key())
	}

	d3, err := Open(ctx, mem.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if d3.Key() == d1.Key() {
		t.Error("drives in different stores share a key")
	}
}

// driveRemote serves a copy from the local store of another drive.
type driveRemote struct {
	d *Drive
}

func (r driveRemote) Get(ctx context.Context, ref bsdrive.Ref) (bsdrive.Blob, error) {
	return r.d.st.Get(ctx, ref)
}

func (r driveRemote) Head(ctx context.Context, dkey [32]byte) (bsdrive.Ref, error) {
	if dkey != r.d.DiscoveryKey() {
		return bsdrive.Zero, bsdrive.ErrNotFound
	}
	return r.d.LocalHead(ctx)
}

func TestReplicate(t *testing.T) {
	ctx := context.Background()

	srcdir := t.TempDir()
	data := testutil.Data(7, 300000)
	if err := os.MkdirAll(filepath.Join(srcdir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcdir, "sub", "big"), data, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcdir, "small"), []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	origin, err := Open(ctx, mem.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = origin.Ready(ctx); err != nil {
		t.Fatal(err)
	}
	for ev := range mirror.Run(ctx, mirror.Local(srcdir), origin, mirror.Options{}) {
		if ev.Type == mirror.EventError {
			t.Fatal(ev.Err)
		}
	}

	stats, err := origin.Stats(ctx, "/")
	if err != nil {
		t.Fatal(err)
	}
	for p, s := range stats {
		if s.DownloadedBlocks != s.Blocks {
			t.Errorf("origin file %s has %d of %d blocks", p, s.DownloadedBlocks, s.Blocks)
		}
	}

	key := origin.Key()
	cp, err := Open(ctx, mem.New(), &key)
	if err != nil {
		t.Fatal(err)
	}

	if _, err = cp.Stats(ctx, ""); !errors.Is(err, ErrNotReady) {
		t.Errorf("got error %v, want ErrNotReady", err)
	}
	if err = cp.Ready(ctx); err != nil {
		t.Fatal(err)
	}

	// Without a remote there is no head.
	if _, err = cp.Head(ctx); !errors.Is(err, bsdrive.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}

	cp.SetRemote(driveRemote{d: origin})

	stats, err = cp.Stats(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	big, ok := stats["sub/big"]
	if !ok {
		t.Fatalf("no stats for sub/big in %v", stats)
	}
	if big.Blocks < 2 {
		t.Errorf("sub/big has %d blocks, want several", big.Blocks)
	}
	if big.DownloadedBlocks != 0 {
		t.Errorf("sub/big has %d downloaded blocks before reading, want 0", big.DownloadedBlocks)
	}

	r, err := cp.Open(ctx, "sub/big")
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
	if !bytes.Equal(got, data) {
		t.Error("replicated content differs")
	}

	stats, err = cp.Stats(ctx, "sub")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]FileStats{"sub/big": {DownloadedBlocks: big.Blocks, Blocks: big.Blocks}}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	outdir := t.TempDir()
	for ev := range mirror.Run(ctx, cp, mirror.Local(outdir), mirror.Options{}) {
		if ev.Type == mirror.EventError {
			t.Fatal(ev.Err)
		}
	}
	small, err := os.ReadFile(filepath.Join(outdir, "small"))
	if err != nil {
		t.Fatal(err)
	}
	if string(small) != "0123456789" {
		t.Errorf("got %q", small)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	d, err := Open(ctx, mem.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = d.Ready(ctx); err != nil {
		t.Fatal(err)
	}
	if err = d.Put(ctx, mirror.File{Path: "a/b", Mode: 0644}, strings.NewReader("hello")); err != nil {
		t.Fatal(err)
	}
	f, err := d.Stat(ctx, "/a/b")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(mirror.File{Path: "a/b", Size: 5, Mode: 0644}, f); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if err = d.Delete(ctx, "a/b"); err != nil {
		t.Fatal(err)
	}
	if _, err = d.Stat(ctx, "a/b"); !errors.Is(err, bsdrive.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}

	// Committing an empty drive still produces a head.
	if err = d.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err = d.Head(ctx); err != nil {
		t.Fatal(err)
	}
}
