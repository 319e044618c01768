package swarm

import (
	"context"
	"sync"
)

// JoinOpts says how to take part in a topic.
type JoinOpts struct {
	Announce bool // advertise this node as a peer
	Lookup   bool // look for other peers
}

// Discovery finds the addresses of peers sharing a discovery key.
type Discovery interface {
	// Join begins advertising addr under dkey (if opts.Announce)
	// and reporting the addresses of other peers under dkey to found (if opts.Lookup).
	// Both continue until ctx is canceled.
	// Join does not block for the lifetime of ctx,
	// but found may be called from other goroutines until then.
	Join(ctx context.Context, dkey [32]byte, addr string, opts JoinOpts, found func(addr string)) error

	Close() error
}

// Static is a fixed list of peer addresses,
// reported for every lookup.
type Static []string

func (s Static) Join(_ context.Context, _ [32]byte, addr string, opts JoinOpts, found func(string)) error {
	if !opts.Lookup {
		return nil
	}
	for _, a := range s {
		if a != addr {
			found(a)
		}
	}
	return nil
}

func (Static) Close() error { return nil }

// Registry is an in-process discovery service.
// Networks sharing a Registry find one another.
type Registry struct {
	mu    sync.Mutex
	addrs map[[32]byte]map[string]int // refcounted
	subs  map[[32]byte]map[int]*subscriber
	next  int
}

type subscriber struct {
	self  string
	found func(string)
}

func NewRegistry() *Registry {
	return &Registry{
		addrs: make(map[[32]byte]map[string]int),
		subs:  make(map[[32]byte]map[int]*subscriber),
	}
}

func (r *Registry) Join(ctx context.Context, dkey [32]byte, addr string, opts JoinOpts, found func(string)) error {
	var (
		existing []string
		notify   []func(string)
		id       = -1
	)

	r.mu.Lock()
	if opts.Lookup {
		id = r.next
		r.next++
		if r.subs[dkey] == nil {
			r.subs[dkey] = make(map[int]*subscriber)
		}
		r.subs[dkey][id] = &subscriber{self: addr, found: found}
		for a := range r.addrs[dkey] {
			if a != addr {
				existing = append(existing, a)
			}
		}
	}
	if opts.Announce {
		if r.addrs[dkey] == nil {
			r.addrs[dkey] = make(map[string]int)
		}
		r.addrs[dkey][addr]++
		for sid, sub := range r.subs[dkey] {
			if sid != id && sub.self != addr {
				notify = append(notify, sub.found)
			}
		}
	}
	r.mu.Unlock()

	for _, a := range existing {
		found(a)
	}
	for _, fn := range notify {
		fn(addr)
	}

	go func() {
		<-ctx.Done()

		r.mu.Lock()
		defer r.mu.Unlock()

		if id >= 0 {
			delete(r.subs[dkey], id)
		}
		if opts.Announce {
			r.addrs[dkey][addr]--
			if r.addrs[dkey][addr] <= 0 {
				delete(r.addrs[dkey], addr)
			}
		}
	}()

	return nil
}

// Close does nothing.
// Registrations end when the contexts passed to Join are canceled.
func (r *Registry) Close() error { return nil }

// Multi combines several Discovery mechanisms.
type Multi []Discovery

func (m Multi) Join(ctx context.Context, dkey [32]byte, addr string, opts JoinOpts, found func(string)) error {
	for _, d := range m {
		if err := d.Join(ctx, dkey, addr, opts, found); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var firstErr error
	for _, d := range m {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
