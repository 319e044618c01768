// Package file implements a blob store as a file hierarchy.
package file

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/anchor"
	"github.com/bobg/bsdrive/store"
)

var _ anchor.Store = &Store{}

// Store is a file-based implementation of a blob store.
type Store struct {
	root    string
	flocker flock.Locker
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

// Root is the directory beneath which s stores its data.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) blobroot() string {
	return filepath.Join(s.root, "blobs")
}

func (s *Store) blobpath(ref bsdrive.Ref) string {
	h := ref.String()
	return filepath.Join(s.blobroot(), h[:2], h[:4], h)
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(_ context.Context, ref bsdrive.Ref) (bsdrive.Blob, error) {
	path := s.blobpath(ref)
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, bsdrive.ErrNotFound
	}
	return blob, errors.Wrapf(err, "reading %s", path)
}

// Has tells whether the store contains the blob with hash `ref`.
func (s *Store) Has(_ context.Context, ref bsdrive.Ref) (bool, error) {
	_, err := os.Stat(s.blobpath(ref))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// Put adds a blob to the store if it wasn't already present.
// The blob is written to a temporary file and renamed into place,
// so a concurrent reader never sees a partial blob.
func (s *Store) Put(_ context.Context, b bsdrive.Blob) (bsdrive.Ref, bool, error) {
	var (
		ref  = b.Ref()
		path = s.blobpath(ref)
		dir  = filepath.Dir(path)
	)

	if _, err := os.Stat(path); err == nil {
		return ref, false, nil
	}

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return ref, false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	f, err := os.CreateTemp(dir, "tmp-")
	if err != nil {
		return bsdrive.Zero, false, errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpname := f.Name()
	defer os.Remove(tmpname)

	_, err = f.Write(b)
	if err != nil {
		f.Close()
		return bsdrive.Zero, false, errors.Wrapf(err, "writing data to %s", tmpname)
	}
	if err = f.Close(); err != nil {
		return bsdrive.Zero, false, errors.Wrapf(err, "closing %s", tmpname)
	}
	if err = os.Rename(tmpname, path); err != nil {
		return bsdrive.Zero, false, errors.Wrapf(err, "renaming %s to %s", tmpname, path)
	}

	return ref, true, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start bsdrive.Ref, f func(bsdrive.Ref) error) error {
	err := os.MkdirAll(s.blobroot(), 0755)
	if err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.blobroot())
	}

	topLevel, err := os.ReadDir(s.blobroot())
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.blobroot())
	}

	startHex := start.String()
	topIndex := sort.Search(len(topLevel), func(n int) bool {
		return topLevel[n].Name() >= startHex[:2]
	})
	for i := topIndex; i < len(topLevel); i++ {
		topInfo := topLevel[i]
		if !topInfo.IsDir() {
			continue
		}
		topName := topInfo.Name()
		if len(topName) != 2 {
			continue
		}
		if _, err = strconv.ParseInt(topName, 16, 64); err != nil {
			continue
		}

		midLevel, err := os.ReadDir(filepath.Join(s.blobroot(), topName))
		if err != nil {
			return errors.Wrapf(err, "reading dir %s/%s", s.blobroot(), topName)
		}
		midIndex := sort.Search(len(midLevel), func(n int) bool {
			return midLevel[n].Name() >= startHex[:4]
		})
		for j := midIndex; j < len(midLevel); j++ {
			midInfo := midLevel[j]
			if !midInfo.IsDir() {
				continue
			}
			midName := midInfo.Name()
			if len(midName) != 4 {
				continue
			}
			if _, err = strconv.ParseInt(midName, 16, 64); err != nil {
				continue
			}

			blobInfos, err := os.ReadDir(filepath.Join(s.blobroot(), topName, midName))
			if err != nil {
				return errors.Wrapf(err, "reading dir %s/%s/%s", s.blobroot(), topName, midName)
			}

			index := sort.Search(len(blobInfos), func(n int) bool {
				return blobInfos[n].Name() > startHex
			})
			for k := index; k < len(blobInfos); k++ {
				blobInfo := blobInfos[k]
				if blobInfo.IsDir() {
					continue
				}

				ref, err := bsdrive.RefFromHex(blobInfo.Name())
				if err != nil {
					continue
				}

				err = f(ref)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Store) anchorpath(name string) string {
	return filepath.Join(s.root, "anchors", hex.EncodeToString([]byte(name)))
}

// GetAnchor implements anchor.Getter.
func (s *Store) GetAnchor(_ context.Context, name string, at time.Time) (bsdrive.Ref, error) {
	path := s.anchorpath(name)

	// The lock file lives beside the anchor file,
	// whose directory exists only after the first PutAnchor.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return bsdrive.Zero, bsdrive.ErrNotFound
	}

	if err := s.flocker.Lock(path); err != nil {
		return bsdrive.Zero, errors.Wrapf(err, "locking %s", path)
	}
	defer s.flocker.Unlock(path)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return bsdrive.Zero, bsdrive.ErrNotFound
	}
	if err != nil {
		return bsdrive.Zero, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var pairs []bsdrive.TimeRef
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue // xxx partial write?
		}
		nanos, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return bsdrive.Zero, errors.Wrapf(err, "parsing time in %s", path)
		}
		ref, err := bsdrive.RefFromHex(fields[1])
		if err != nil {
			return bsdrive.Zero, errors.Wrapf(err, "parsing ref in %s", path)
		}
		pairs = append(pairs, bsdrive.TimeRef{T: time.Unix(0, nanos), R: ref})
	}
	if err = sc.Err(); err != nil {
		return bsdrive.Zero, errors.Wrapf(err, "reading %s", path)
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].T.Before(pairs[j].T) })
	return bsdrive.FindAnchor(pairs, at)
}

// PutAnchor implements anchor.Store.
func (s *Store) PutAnchor(_ context.Context, name string, ref bsdrive.Ref, at time.Time) error {
	path := s.anchorpath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", filepath.Dir(path))
	}

	if err := s.flocker.Lock(path); err != nil {
		return errors.Wrapf(err, "locking %s", path)
	}
	defer s.flocker.Unlock(path)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%d %s\n", at.UnixNano(), ref)
	return errors.Wrapf(err, "writing anchor to %s", path)
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (bsdrive.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
