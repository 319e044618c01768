// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/anchor"
	"github.com/bobg/bsdrive/store"
)

var _ anchor.Store = &Store{}

type Store struct {
	s      anchor.Store
	logger *log.Logger
}

// New wraps s, logging to the standard logger.
func New(s anchor.Store) *Store {
	return &Store{s: s, logger: log.Default()}
}

// NewWithLogger is like New but logs to l.
func NewWithLogger(s anchor.Store, l *log.Logger) *Store {
	return &Store{s: s, logger: l}
}

func (s *Store) Get(ctx context.Context, ref bsdrive.Ref) (bsdrive.Blob, error) {
	b, err := s.s.Get(ctx, ref)
	if err != nil {
		s.logger.Printf("ERROR Get %s: %s", ref, err)
	} else {
		s.logger.Printf("Get %s", ref)
	}
	return b, err
}

func (s *Store) Has(ctx context.Context, ref bsdrive.Ref) (bool, error) {
	ok, err := bsdrive.Has(ctx, s.s, ref)
	if err != nil {
		s.logger.Printf("ERROR Has %s: %s", ref, err)
	} else {
		s.logger.Printf("Has %s: %v", ref, ok)
	}
	return ok, err
}

func (s *Store) ListRefs(ctx context.Context, start bsdrive.Ref, f func(bsdrive.Ref) error) error {
	s.logger.Printf("ListRefs, start=%s", start)
	return s.s.ListRefs(ctx, start, func(ref bsdrive.Ref) error {
		err := f(ref)
		if err != nil {
			s.logger.Printf("  ERROR in ListRefs: %s: %s", ref, err)
		} else {
			s.logger.Printf("  ListRefs: %s", ref)
		}
		return err
	})
}

func (s *Store) Put(ctx context.Context, b bsdrive.Blob) (bsdrive.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		s.logger.Printf("ERROR in Put: %s", err)
	} else {
		s.logger.Printf("Put %s, added=%v", ref, added)
	}
	return ref, added, err
}

func (s *Store) GetAnchor(ctx context.Context, name string, at time.Time) (bsdrive.Ref, error) {
	ref, err := s.s.GetAnchor(ctx, name, at)
	if err != nil {
		s.logger.Printf("ERROR in GetAnchor(%s, %s): %s", name, at, err)
	} else {
		s.logger.Printf("GetAnchor(%s, %s): %s", name, at, ref)
	}
	return ref, err
}

func (s *Store) PutAnchor(ctx context.Context, name string, ref bsdrive.Ref, at time.Time) error {
	err := s.s.PutAnchor(ctx, name, ref, at)
	if err != nil {
		s.logger.Printf("ERROR in PutAnchor(%s, %s, %s): %s", name, ref, at, err)
	} else {
		s.logger.Printf("PutAnchor(%s, %s, %s)", name, ref, at)
	}
	return err
}

func (s *Store) Close() error {
	err := bsdrive.Close(s.s)
	if err != nil {
		s.logger.Printf("ERROR in Close: %s", err)
	} else {
		s.logger.Print("Close")
	}
	return err
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (bsdrive.Store, error) {
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedStore, err := store.FromConfig(ctx, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		if a, ok := nestedStore.(anchor.Store); ok {
			return New(a), nil
		}
		return nil, errors.Errorf("nested store is a %T and not an anchor.Store", nestedStore)
	})
}
