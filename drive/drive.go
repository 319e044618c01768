// Package drive implements a versioned file tree in a blob store,
// identified by a Key and replicated from peers on demand.
//
// The drive's current root is recorded in the store
// under the anchor "drive:" followed by the hex key.
// Reading a blob tries the local store first
// and falls back to the drive's Remote,
// saving what it fetches locally.
package drive

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/anchor"
	"github.com/bobg/bsdrive/fs"
)

// Remote is a source of blobs and heads other than the local store,
// typically the peer network.
type Remote interface {
	Get(context.Context, bsdrive.Ref) (bsdrive.Blob, error)
	Head(ctx context.Context, discoveryKey [32]byte) (bsdrive.Ref, error)
}

// Drive is a file tree in a blob store.
type Drive struct {
	st   anchor.Store
	key  Key
	dkey [32]byte

	// owner is true when the drive was created or reopened from its own storage
	// (as opposed to being a copy of someone else's drive).
	owner bool

	mu     sync.Mutex
	remote Remote
	root   bsdrive.Ref // working root; zero is the empty tree
	loaded bool        // root is known
	ready  bool
}

const identityAnchor = "identity"

// Open opens a drive in st.
// If key is nil,
// Open reuses the identity recorded in st by an earlier call,
// or generates and records a new one.
func Open(ctx context.Context, st anchor.Store, key *Key) (*Drive, error) {
	d := &Drive{st: st}
	if key != nil {
		d.key = *key
	} else {
		k, err := identity(ctx, st)
		if err != nil {
			return nil, err
		}
		d.key = k
		d.owner = true
	}
	d.dkey = d.key.DiscoveryKey()
	return d, nil
}

func identity(ctx context.Context, st anchor.Store) (Key, error) {
	ref, err := anchor.Latest(ctx, st, identityAnchor)
	if errors.Is(err, bsdrive.ErrNotFound) {
		k, err := NewKey()
		if err != nil {
			return Key{}, err
		}
		ref, _, err := st.Put(ctx, k[:])
		if err != nil {
			return Key{}, errors.Wrap(err, "storing drive identity")
		}
		err = st.PutAnchor(ctx, identityAnchor, ref, time.Now())
		return k, errors.Wrap(err, "recording drive identity")
	}
	if err != nil {
		return Key{}, errors.Wrap(err, "looking up drive identity")
	}
	b, err := st.Get(ctx, ref)
	if err != nil {
		return Key{}, errors.Wrap(err, "getting drive identity")
	}
	var k Key
	if len(b) != len(k) {
		return Key{}, errors.Errorf("drive identity has length %d", len(b))
	}
	copy(k[:], b)
	return k, nil
}

func (d *Drive) Key() Key {
	return d.key
}

func (d *Drive) DiscoveryKey() [32]byte {
	return d.dkey
}

func (d *Drive) anchorName() string {
	return "drive:" + d.key.String()
}

// SetRemote sets the source for blobs missing from the local store.
func (d *Drive) SetRemote(r Remote) {
	d.mu.Lock()
	d.remote = r
	d.mu.Unlock()
}

func (d *Drive) getRemote() Remote {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.remote
}

// Ready loads the drive's locally recorded root.
// A drive that is a copy of someone else's, with nothing recorded locally,
// resolves its root from the remote on first use.
func (d *Drive) Ready(ctx context.Context) error {
	ref, err := d.LocalHead(ctx)
	if err != nil && !errors.Is(err, bsdrive.ErrNotFound) {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil {
		d.root = ref
		d.loaded = true
	} else if d.owner {
		d.loaded = true
	}
	d.ready = true
	return nil
}

// LocalHead is the latest committed root in the local store.
func (d *Drive) LocalHead(ctx context.Context) (bsdrive.Ref, error) {
	ref, err := anchor.Latest(ctx, d.st, d.anchorName())
	if err != nil && !errors.Is(err, bsdrive.ErrNotFound) {
		return bsdrive.Zero, errors.Wrapf(err, "getting anchor %s", d.anchorName())
	}
	return ref, err
}

// Head is the latest committed root,
// from the local store if it has one
// and otherwise from the remote.
// A root found remotely is recorded locally.
func (d *Drive) Head(ctx context.Context) (bsdrive.Ref, error) {
	ref, err := d.LocalHead(ctx)
	if !errors.Is(err, bsdrive.ErrNotFound) {
		return ref, err
	}
	remote := d.getRemote()
	if remote == nil {
		return bsdrive.Zero, err
	}
	ref, err = remote.Head(ctx, d.dkey)
	if err != nil {
		return bsdrive.Zero, errors.Wrap(err, "getting head from remote")
	}
	err = d.st.PutAnchor(ctx, d.anchorName(), ref, time.Now())
	return ref, errors.Wrap(err, "recording head")
}

// current is the working root, resolving it if necessary.
func (d *Drive) current(ctx context.Context) (bsdrive.Ref, error) {
	d.mu.Lock()
	if d.loaded {
		defer d.mu.Unlock()
		return d.root, nil
	}
	d.mu.Unlock()

	ref, err := d.Head(ctx)
	if err != nil {
		return bsdrive.Zero, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		d.root = ref
		d.loaded = true
	}
	return d.root, nil
}

// Commit records the working root as the drive's head.
func (d *Drive) Commit(ctx context.Context) error {
	root, err := d.current(ctx)
	if err != nil {
		return err
	}
	if root.IsZero() {
		root, err = new(fs.Dir).Store(ctx, d.st)
		if err != nil {
			return err
		}
	}
	if err = d.st.PutAnchor(ctx, d.anchorName(), root, time.Now()); err != nil {
		return errors.Wrap(err, "recording head")
	}

	d.mu.Lock()
	d.root = root
	d.mu.Unlock()
	return nil
}

// Getter is the drive's view of blobs:
// the local store, backed by the remote.
func (d *Drive) Getter() bsdrive.Getter {
	return fetcher{d: d}
}

type fetcher struct {
	d *Drive
}

func (f fetcher) Get(ctx context.Context, ref bsdrive.Ref) (bsdrive.Blob, error) {
	b, err := f.d.st.Get(ctx, ref)
	if !errors.Is(err, bsdrive.ErrNotFound) {
		return b, err
	}
	remote := f.d.getRemote()
	if remote == nil {
		return nil, err
	}
	b, err = remote.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if got := bsdrive.Blob(b).Ref(); got != ref {
		return nil, errors.Errorf("remote blob %s has ref %s", ref, got)
	}
	if _, _, err = f.d.st.Put(ctx, b); err != nil {
		return nil, errors.Wrapf(err, "storing blob %s", ref)
	}
	return b, nil
}

func (f fetcher) ListRefs(ctx context.Context, start bsdrive.Ref, fn func(bsdrive.Ref) error) error {
	return f.d.st.ListRefs(ctx, start, fn)
}
