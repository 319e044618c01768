package fs

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
)

// ErrNotDir is the error for a path that traverses a file.
var ErrNotDir = errors.New("not a directory")

// SplitPath splits a slash-separated path into its components.
// The path is cleaned and treated as relative to the root,
// so "", "/" and "." all produce nil.
func SplitPath(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Find resolves the path p in the tree rooted at the Dir with ref root.
// An empty path produces an entry for the root itself.
// A missing entry produces bsdrive.ErrNotFound.
func Find(ctx context.Context, g bsdrive.Getter, root bsdrive.Ref, p string) (*Dirent, error) {
	parts := SplitPath(p)
	if len(parts) == 0 {
		return &Dirent{Mode: uint32(os.ModeDir | 0755), Ref: root}, nil
	}
	ref := root
	for i, name := range parts {
		d, err := LoadDir(ctx, g, ref)
		if err != nil {
			return nil, err
		}
		e := d.Lookup(name)
		if e == nil {
			return nil, errors.Wrapf(bsdrive.ErrNotFound, "finding %s", p)
		}
		if i == len(parts)-1 {
			return e, nil
		}
		if !e.IsDir() {
			return nil, errors.Wrapf(ErrNotDir, "resolving %s", path.Join(parts[:i+1]...))
		}
		ref = e.Ref
	}
	panic("unreachable")
}

// Walk calls f for every entry in the tree rooted at the Dir with ref root,
// depth first and in name order.
// Each path is slash-separated and relative to root.
// A directory's entry is visited before its contents.
// A zero root is an empty tree.
func Walk(ctx context.Context, g bsdrive.Getter, root bsdrive.Ref, f func(p string, e *Dirent) error) error {
	if root.IsZero() {
		return nil
	}
	return walk(ctx, g, root, "", f)
}

func walk(ctx context.Context, g bsdrive.Getter, ref bsdrive.Ref, prefix string, f func(string, *Dirent) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := LoadDir(ctx, g, ref)
	if err != nil {
		return err
	}
	for i := range d.Entries {
		e := &d.Entries[i]
		p := path.Join(prefix, e.Name)
		if err = f(p, e); err != nil {
			return err
		}
		if e.IsDir() {
			if err = walk(ctx, g, e.Ref, p, f); err != nil {
				return errors.Wrapf(err, "walking %s", p)
			}
		}
	}
	return nil
}

// Update stores a new version of the tree rooted at the Dir with ref root,
// with the entry at path p replaced by e
// (or removed, if e is nil),
// and returns the ref of the new root.
// Missing intermediate directories are created.
// Directories left empty by a removal are pruned.
// A zero root means an empty tree.
func Update(ctx context.Context, st bsdrive.Store, root bsdrive.Ref, p string, e *Dirent) (bsdrive.Ref, error) {
	parts := SplitPath(p)
	if len(parts) == 0 {
		return bsdrive.Zero, errors.New("cannot update the root entry")
	}
	d, err := update(ctx, st, root, parts, e)
	if err != nil {
		return bsdrive.Zero, err
	}
	return d.Store(ctx, st)
}

func update(ctx context.Context, st bsdrive.Store, ref bsdrive.Ref, parts []string, e *Dirent) (*Dir, error) {
	d := new(Dir)
	if !ref.IsZero() {
		var err error
		d, err = LoadDir(ctx, st, ref)
		if err != nil {
			return nil, err
		}
	}

	name := parts[0]
	if len(parts) == 1 {
		if e == nil {
			d.Remove(name)
		} else {
			entry := *e
			entry.Name = name
			d.Set(entry)
		}
		return d, nil
	}

	var subref bsdrive.Ref
	if sub := d.Lookup(name); sub != nil {
		if !sub.IsDir() {
			if e == nil {
				return d, nil
			}
			return nil, errors.Wrapf(ErrNotDir, "updating %s", name)
		}
		subref = sub.Ref
	} else if e == nil {
		return d, nil
	}

	subdir, err := update(ctx, st, subref, parts[1:], e)
	if err != nil {
		return nil, errors.Wrapf(err, "updating %s", name)
	}
	if len(subdir.Entries) == 0 {
		d.Remove(name)
		return d, nil
	}
	subref, err = subdir.Store(ctx, st)
	if err != nil {
		return nil, err
	}
	d.Set(Dirent{Name: name, Mode: uint32(os.ModeDir | 0755), Ref: subref})
	return d, nil
}
