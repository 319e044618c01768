// Package lru implements a blob store that acts as a least-recently-used cache for a nested blob store.
package lru

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/anchor"
	"github.com/bobg/bsdrive/store"
)

var _ anchor.Store = &Store{}

// Store implements a memory-based least-recently-used cache for a blob store.
// It caches only blobs, not anchors.
// Writes pass through to the underlying blob store.
type Store struct {
	c *lru.Cache // Ref->Blob
	s anchor.Store
}

// New produces a new Store backed by `s` and caching up to `size` blobs.
func New(s anchor.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, err
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(ctx context.Context, ref bsdrive.Ref) (bsdrive.Blob, error) {
	if got, ok := s.c.Get(ref); ok {
		return got.(bsdrive.Blob), nil
	}
	blob, err := s.s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.c.Add(ref, blob)
	return blob, nil
}

// Has tells whether the store contains the blob with hash `ref`.
func (s *Store) Has(ctx context.Context, ref bsdrive.Ref) (bool, error) {
	if s.c.Contains(ref) {
		return true, nil
	}
	return bsdrive.Has(ctx, s.s, ref)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b bsdrive.Blob) (bsdrive.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		return ref, added, err
	}
	s.c.Add(ref, b)
	return ref, added, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start bsdrive.Ref, f func(bsdrive.Ref) error) error {
	return s.s.ListRefs(ctx, start, f)
}

func (s *Store) GetAnchor(ctx context.Context, name string, at time.Time) (bsdrive.Ref, error) {
	return s.s.GetAnchor(ctx, name, at)
}

func (s *Store) PutAnchor(ctx context.Context, name string, ref bsdrive.Ref, at time.Time) error {
	return s.s.PutAnchor(ctx, name, ref, at)
}

// Close purges the cache and closes the nested store.
func (s *Store) Close() error {
	s.c.Purge()
	return bsdrive.Close(s.s)
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (bsdrive.Store, error) {
		var size int
		switch v := conf["size"].(type) {
		case int:
			size = v
		case float64: // from JSON
			size = int(v)
		case json.Number: // from JSON with UseNumber
			n, err := v.Int64()
			if err != nil {
				return nil, errors.Wrap(err, `parsing "size" parameter`)
			}
			size = int(n)
		default:
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedStore, err := store.FromConfig(ctx, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		a, ok := nestedStore.(anchor.Store)
		if !ok {
			return nil, errors.Errorf("nested store is a %T and not an anchor.Store", nestedStore)
		}
		return New(a, size)
	})
}
