package bsdrive

import (
	"context"
	"errors"
	"io"
)

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets a blob by its ref.
	Get(context.Context, Ref) (Blob, error)

	// ListRefs calls a function for each blob ref in the store in lexicographic order,
	// beginning with the first ref _after_ the specified one.
	//
	// The calls reflect at least the set of refs
	// known at the moment ListRefs was called.
	// It is unspecified whether later changes,
	// that happen concurrently with ListRefs,
	// are reflected.
	//
	// If the callback function returns an error,
	// ListRefs exits with that error.
	ListRefs(context.Context, Ref, func(r Ref) error) error
}

// Store is a blob store.
// It stores byte sequences - "blobs" - of arbitrary length.
// Each blob can be retrieved using its "ref" as a lookup key.
// A ref is simply the SHA2-256 hash of the blob's content.
type Store interface {
	Getter

	// Put adds b to the store if it was not already present.
	// It returns b's ref and a boolean that is true iff the blob had to be added.
	Put(ctx context.Context, b Blob) (ref Ref, added bool, err error)
}

// Haver is a Getter that can report the presence of a blob
// without fetching it.
type Haver interface {
	Has(context.Context, Ref) (bool, error)
}

// Has tells whether g contains the blob with the given ref.
// If g implements Haver, its Has method is used.
// Otherwise this is a call to Get.
func Has(ctx context.Context, g Getter, ref Ref) (bool, error) {
	if h, ok := g.(Haver); ok {
		return h.Has(ctx, ref)
	}
	_, err := g.Get(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Close closes s if it implements io.Closer.
// Stores holding no resources need not.
func Close(s Getter) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ErrNotFound is the error returned
// when a Getter tries to access a non-existent ref.
var ErrNotFound = errors.New("not found")
