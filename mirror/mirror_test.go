package mirror

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/bsdrive"
)

func collect(ch <-chan Event) []Event {
	var result []Event
	for ev := range ch {
		result = append(result, ev)
	}
	return result
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	srcdir := t.TempDir()
	dstdir := t.TempDir()

	writeFiles(t, srcdir, map[string]string{
		"a":     "hello",
		"sub/b": "world",
		"same":  "unchanged",
	})
	writeFiles(t, dstdir, map[string]string{
		"sub/b": "WORLD",
		"same":  "unchanged",
		"extra": "stale",
	})

	src, dst := Local(srcdir), Local(dstdir)

	got := collect(Run(ctx, src, dst, Options{}))
	want := []Event{
		{Type: EventPut, Path: "a"},
		{Type: EventPut, Path: "sub/b"},
		{Type: EventEnd},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("first run mismatch (-want +got):\n%s", diff)
	}

	b, err := os.ReadFile(filepath.Join(dstdir, "sub", "b"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "world" {
		t.Errorf("got %q, want world", b)
	}
	if _, err = os.Stat(filepath.Join(dstdir, "extra")); err != nil {
		t.Errorf("extra file removed without Delete option: %v", err)
	}

	got = collect(Run(ctx, src, dst, Options{Delete: true}))
	want = []Event{
		{Type: EventDelete, Path: "extra"},
		{Type: EventEnd},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("second run mismatch (-want +got):\n%s", diff)
	}
	if _, err = os.Stat(filepath.Join(dstdir, "extra")); !os.IsNotExist(err) {
		t.Errorf("extra file still present: %v", err)
	}
}

func TestRunMissingDest(t *testing.T) {
	srcdir := t.TempDir()
	writeFiles(t, srcdir, map[string]string{"x/y/z": "0123456789"})

	dstdir := filepath.Join(t.TempDir(), "new")
	got := collect(Run(context.Background(), Local(srcdir), Local(dstdir), Options{}))
	if len(got) != 2 || got[1].Type != EventEnd {
		t.Fatalf("got events %v", got)
	}
	b, err := os.ReadFile(filepath.Join(dstdir, "x", "y", "z"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "0123456789" {
		t.Errorf("got %q", b)
	}
}

type failingTree struct {
	*LocalTree
}

var errOpen = errors.New("open failed")

func (failingTree) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errOpen
}

func TestRunError(t *testing.T) {
	srcdir := t.TempDir()
	writeFiles(t, srcdir, map[string]string{"a": "a", "b": "b"})

	got := collect(Run(context.Background(), failingTree{Local(srcdir)}, Local(t.TempDir()), Options{}))
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Type != EventPut || got[0].Path != "a" {
		t.Errorf("got first event %v", got[0])
	}
	if got[1].Type != EventError || !errors.Is(got[1].Err, errOpen) {
		t.Errorf("got last event %v", got[1])
	}
}

func TestRunCanceled(t *testing.T) {
	srcdir := t.TempDir()
	writeFiles(t, srcdir, map[string]string{"a": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	ch := Run(ctx, Local(srcdir), Local(t.TempDir()), Options{})
	cancel()

	// The channel closes even though nobody reads the pending event.
	for range ch {
	}
}

func TestDigest(t *testing.T) {
	var (
		ctx  = context.Background()
		dir1 = t.TempDir()
		dir2 = t.TempDir()
	)
	writeFiles(t, dir1, map[string]string{"f": "same content", "g": "other content"})
	writeFiles(t, dir2, map[string]string{"f": "same content"})

	digest := func(dir, p string) bsdrive.Ref {
		ref, err := Local(dir).Digest(ctx, p)
		if err != nil {
			t.Fatal(err)
		}
		return ref
	}
	if digest(dir1, "f") != digest(dir2, "f") {
		t.Error("identical files have different digests")
	}
	if digest(dir1, "f") == digest(dir1, "g") {
		t.Error("different files have the same digest")
	}
}
