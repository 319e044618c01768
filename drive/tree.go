package drive

import (
	"context"
	"io"
	"path"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/fs"
	"github.com/bobg/bsdrive/mirror"
	"github.com/bobg/bsdrive/split"
)

var _ mirror.WritableTree = (*Drive)(nil)

// Number of blocks fetched concurrently by Open.
const fetchConcurrency = 8

// ErrNotReady is the error for queries made before Ready.
var ErrNotReady = errors.New("drive not ready")

// FileStats tells how much of a file is present locally.
type FileStats struct {
	DownloadedBlocks int64
	Blocks           int64
}

// Walk implements mirror.Tree.
func (d *Drive) Walk(ctx context.Context, f func(mirror.File) error) error {
	root, err := d.current(ctx)
	if err != nil {
		return err
	}
	return fs.Walk(ctx, d.Getter(), root, func(p string, e *fs.Dirent) error {
		if !e.FileMode().IsRegular() {
			return nil
		}
		return f(fileOf(p, e))
	})
}

func fileOf(p string, e *fs.Dirent) mirror.File {
	return mirror.File{
		Path: p,
		Size: int64(e.Size),
		Mode: e.FileMode(),
	}
}

func (d *Drive) find(ctx context.Context, p string) (*fs.Dirent, error) {
	root, err := d.current(ctx)
	if err != nil {
		return nil, err
	}
	return fs.Find(ctx, d.Getter(), root, p)
}

// Stat describes the file at p.
func (d *Drive) Stat(ctx context.Context, p string) (mirror.File, error) {
	e, err := d.find(ctx, p)
	if err != nil {
		return mirror.File{}, err
	}
	return fileOf(path.Join(fs.SplitPath(p)...), e), nil
}

// Open implements mirror.Tree.
// All of the file's blocks are fetched before Open returns.
func (d *Drive) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	e, err := d.find(ctx, p)
	if err != nil {
		return nil, err
	}
	if e.IsDir() {
		return nil, errors.Errorf("%s is a directory", p)
	}
	g := d.Getter()
	node, err := split.Load(ctx, g, e.Ref)
	if err != nil {
		return nil, err
	}
	if err = d.fetch(ctx, node.Chunks); err != nil {
		return nil, errors.Wrapf(err, "fetching blocks of %s", p)
	}
	return io.NopCloser(split.NewReader(ctx, g, node)), nil
}

func (d *Drive) fetch(ctx context.Context, chunks []split.Chunk) error {
	g := d.Getter()
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(fetchConcurrency)
	for _, c := range chunks {
		ref := c.Ref
		eg.Go(func() error {
			ok, err := bsdrive.Has(ctx, d.st, ref)
			if err != nil || ok {
				return err
			}
			_, err = g.Get(ctx, ref)
			return err
		})
	}
	return eg.Wait()
}

// Digest implements mirror.Tree.
// It is the ref recorded in the file's directory entry,
// so no content is read.
func (d *Drive) Digest(ctx context.Context, p string) (bsdrive.Ref, error) {
	e, err := d.find(ctx, p)
	if err != nil {
		return bsdrive.Zero, err
	}
	return e.Ref, nil
}

// Put implements mirror.WritableTree.
// The change is visible to readers of d at once,
// and to peers after Commit.
func (d *Drive) Put(ctx context.Context, f mirror.File, r io.Reader) error {
	if _, err := d.current(ctx); err != nil {
		return err
	}

	w := split.NewWriter(ctx, d.st)
	n, err := io.Copy(w, r)
	if err != nil {
		return errors.Wrapf(err, "splitting %s", f.Path)
	}
	if err = w.Close(); err != nil {
		return errors.Wrapf(err, "splitting %s", f.Path)
	}

	return d.update(ctx, f.Path, &fs.Dirent{
		Mode: uint32(f.Mode.Perm()),
		Ref:  w.Root,
		Size: uint64(n),
	})
}

// Delete implements mirror.WritableTree.
func (d *Drive) Delete(ctx context.Context, p string) error {
	if _, err := d.current(ctx); err != nil {
		return err
	}
	return d.update(ctx, p, nil)
}

func (d *Drive) update(ctx context.Context, p string, e *fs.Dirent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	root, err := fs.Update(ctx, d.st, d.root, p, e)
	if err != nil {
		return errors.Wrapf(err, "updating %s", p)
	}
	d.root = root
	return nil
}

// Stats reports, for each file at or beneath p,
// how many of its blocks are present in the local store.
func (d *Drive) Stats(ctx context.Context, p string) (map[string]FileStats, error) {
	d.mu.Lock()
	ready := d.ready
	d.mu.Unlock()
	if !ready {
		return nil, ErrNotReady
	}

	e, err := d.find(ctx, p)
	if err != nil {
		return nil, err
	}

	var (
		g      = d.Getter()
		prefix = path.Join(fs.SplitPath(p)...)
		result = make(map[string]FileStats)
	)

	visit := func(fp string, e *fs.Dirent) error {
		if !e.FileMode().IsRegular() {
			return nil
		}
		node, err := split.Load(ctx, g, e.Ref)
		if err != nil {
			return err
		}
		s := FileStats{Blocks: int64(len(node.Chunks))}
		for _, c := range node.Chunks {
			ok, err := bsdrive.Has(ctx, d.st, c.Ref)
			if err != nil {
				return err
			}
			if ok {
				s.DownloadedBlocks++
			}
		}
		result[fp] = s
		return nil
	}

	if !e.IsDir() {
		return result, visit(prefix, e)
	}
	err = fs.Walk(ctx, g, e.Ref, func(sub string, e *fs.Dirent) error {
		return visit(path.Join(prefix, sub), e)
	})
	return result, err
}
