package mirror

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/split"
)

var _ WritableTree = (*LocalTree)(nil)

// LocalTree is a directory in the local filesystem.
// Only regular files are mirrored.
type LocalTree struct {
	dir string
}

// Local produces a LocalTree rooted at dir.
// The directory need not exist until something is written to it.
func Local(dir string) *LocalTree {
	return &LocalTree{dir: dir}
}

func (t *LocalTree) Dir() string {
	return t.dir
}

func (t *LocalTree) path(p string) string {
	return filepath.Join(t.dir, filepath.FromSlash(path.Clean("/"+p)))
}

// Walk implements Tree.
// A nonexistent root directory is an empty tree.
func (t *LocalTree) Walk(ctx context.Context, f func(File) error) error {
	if _, err := os.Stat(t.dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(t.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return errors.Wrapf(err, "statting %s", p)
		}
		rel, err := filepath.Rel(t.dir, p)
		if err != nil {
			return err
		}
		return f(File{
			Path: filepath.ToSlash(rel),
			Size: info.Size(),
			Mode: info.Mode(),
		})
	})
}

// Open implements Tree.
func (t *LocalTree) Open(_ context.Context, p string) (io.ReadCloser, error) {
	return os.Open(t.path(p))
}

// Digest implements Tree.
func (t *LocalTree) Digest(ctx context.Context, p string) (bsdrive.Ref, error) {
	f, err := os.Open(t.path(p))
	if err != nil {
		return bsdrive.Zero, err
	}
	defer f.Close()
	return split.Digest(ctx, f)
}

// Put implements WritableTree.
// The content is written to a temporary file that is renamed into place.
func (t *LocalTree) Put(_ context.Context, f File, r io.Reader) error {
	var (
		dest = t.path(f.Path)
		dir  = filepath.Dir(dest)
	)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".bsdrive-")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpname := tmp.Name()
	defer os.Remove(tmpname)

	if _, err = io.Copy(tmp, r); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing %s", tmpname)
	}

	perm := f.Mode.Perm()
	if perm == 0 {
		perm = 0644
	}
	if err = tmp.Chmod(perm); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "setting mode of %s", tmpname)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmpname)
	}
	return errors.Wrapf(os.Rename(tmpname, dest), "renaming %s to %s", tmpname, dest)
}

// Delete implements WritableTree.
func (t *LocalTree) Delete(_ context.Context, p string) error {
	err := os.Remove(t.path(p))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Commit implements WritableTree.
// Local writes are visible immediately, so it does nothing.
func (t *LocalTree) Commit(context.Context) error {
	return nil
}
