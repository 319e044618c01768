// Package mirror reconciles a destination tree with a source tree,
// reporting its progress as a stream of events.
package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
)

// File describes a regular file in a tree.
type File struct {
	Path string // slash-separated, relative to the tree root
	Size int64
	Mode os.FileMode
}

// Tree is a source of files.
type Tree interface {
	// Walk calls f for each regular file in the tree, in path order.
	Walk(ctx context.Context, f func(File) error) error

	// Open opens the file at path for reading.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Digest produces the ref that split.Write assigns to the file's content.
	// Two files have the same digest iff they have the same content.
	Digest(ctx context.Context, path string) (bsdrive.Ref, error)
}

// WritableTree is a Tree that can be modified.
type WritableTree interface {
	Tree

	// Put creates or replaces the file at f.Path with the content of r.
	Put(ctx context.Context, f File, r io.Reader) error

	// Delete removes the file at path.
	Delete(ctx context.Context, path string) error

	// Commit makes the changes since the last Commit durable and visible.
	Commit(ctx context.Context) error
}

type EventType int

const (
	EventPut EventType = iota + 1
	EventDelete
	EventEnd
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventPut:
		return "put"
	case EventDelete:
		return "delete"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is a step in a mirror operation.
// A Put event is sent before the file's content is copied.
type Event struct {
	Type EventType
	Path string // for Put and Delete
	Err  error  // for Error
}

// Options control Run.
type Options struct {
	// Delete removes destination files that are absent from the source.
	Delete bool
}

// Run makes dst match src,
// copying each source file whose content differs from the destination's
// and then committing dst.
//
// The returned channel produces a Put or Delete event for each change,
// followed by exactly one End or Error event,
// after which it is closed.
// If ctx is canceled and the caller stops reading,
// Run abandons pending events and closes the channel.
func Run(ctx context.Context, src Tree, dst WritableTree, opts Options) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)

		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if err := run(ctx, src, dst, opts, send); err != nil {
			send(Event{Type: EventError, Err: err})
			return
		}
		send(Event{Type: EventEnd})
	}()
	return ch
}

func run(ctx context.Context, src Tree, dst WritableTree, opts Options, send func(Event) bool) error {
	have := make(map[string]File)
	err := dst.Walk(ctx, func(f File) error {
		have[f.Path] = f
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "walking destination")
	}

	err = src.Walk(ctx, func(f File) error {
		old, ok := have[f.Path]
		delete(have, f.Path)
		if ok && old.Size == f.Size {
			same, err := sameContent(ctx, src, dst, f.Path)
			if err != nil {
				return err
			}
			if same {
				return nil
			}
		}
		if !send(Event{Type: EventPut, Path: f.Path}) {
			return ctx.Err()
		}
		return copyFile(ctx, src, dst, f)
	})
	if err != nil {
		return errors.Wrap(err, "walking source")
	}

	if opts.Delete {
		var stale []string
		for p := range have {
			stale = append(stale, p)
		}
		sort.Strings(stale)
		for _, p := range stale {
			if !send(Event{Type: EventDelete, Path: p}) {
				return ctx.Err()
			}
			if err = dst.Delete(ctx, p); err != nil {
				return errors.Wrapf(err, "deleting %s", p)
			}
		}
	}

	return errors.Wrap(dst.Commit(ctx), "committing")
}

func sameContent(ctx context.Context, src Tree, dst WritableTree, path string) (bool, error) {
	srcDigest, err := src.Digest(ctx, path)
	if err != nil {
		return false, errors.Wrapf(err, "computing source digest of %s", path)
	}
	dstDigest, err := dst.Digest(ctx, path)
	if err != nil {
		return false, errors.Wrapf(err, "computing destination digest of %s", path)
	}
	return srcDigest == dstDigest, nil
}

func copyFile(ctx context.Context, src Tree, dst WritableTree, f File) error {
	r, err := src.Open(ctx, f.Path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", f.Path)
	}
	defer r.Close()

	return errors.Wrapf(dst.Put(ctx, f, r), "writing %s", f.Path)
}
