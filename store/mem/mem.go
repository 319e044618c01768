// Package mem implements an in-memory blob store.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/anchor"
	"github.com/bobg/bsdrive/store"
)

var _ anchor.Store = &Store{}

// Store is a memory-based implementation of a blob store.
type Store struct {
	mu      sync.Mutex
	blobs   map[bsdrive.Ref]bsdrive.Blob
	anchors map[string][]bsdrive.TimeRef
}

// New produces a new Store.
func New() *Store {
	return &Store{
		blobs:   make(map[bsdrive.Ref]bsdrive.Blob),
		anchors: make(map[string][]bsdrive.TimeRef),
	}
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(_ context.Context, ref bsdrive.Ref) (bsdrive.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.blobs[ref]; ok {
		return b, nil
	}
	return nil, bsdrive.ErrNotFound
}

// Has tells whether the store contains the blob with hash `ref`.
func (s *Store) Has(_ context.Context, ref bsdrive.Ref) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.blobs[ref]
	return ok, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b bsdrive.Blob) (bsdrive.Ref, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		ref   = b.Ref()
		added bool
	)
	if _, ok := s.blobs[ref]; !ok {
		s.blobs[ref] = append(bsdrive.Blob(nil), b...)
		added = true
	}
	return ref, added, nil
}

// Len is the number of blobs in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// GetAnchor gets the latest blob ref for a given anchor as of a given time.
func (s *Store) GetAnchor(_ context.Context, a string, at time.Time) (bsdrive.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return bsdrive.FindAnchor(s.anchors[a], at)
}

// PutAnchor adds a new ref for a given anchor as of a given time.
func (s *Store) PutAnchor(_ context.Context, a string, ref bsdrive.Ref, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.anchors[a] = append(s.anchors[a], bsdrive.TimeRef{T: at, R: ref})
	sort.SliceStable(s.anchors[a], func(i, j int) bool {
		return s.anchors[a][i].T.Before(s.anchors[a][j].T)
	})

	return nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start bsdrive.Ref, f func(bsdrive.Ref) error) error {
	s.mu.Lock()
	refs := make([]bsdrive.Ref, 0, len(s.blobs))
	for ref := range s.blobs {
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	index := sort.Search(len(refs), func(n int) bool {
		return start.Less(refs[n])
	})

	for i := index; i < len(refs); i++ {
		err := f(refs[i])
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (bsdrive.Store, error) {
		return New(), nil
	})
}
