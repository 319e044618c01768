package swarm

import (
	"context"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/anacrolix/dht/v2"
	"github.com/pkg/errors"
)

var _ Discovery = (*DHT)(nil)

// DHT is discovery through the BitTorrent mainline DHT.
// The first 20 bytes of a discovery key serve as the infohash.
type DHT struct {
	s *dht.Server

	// Interval is the time between successive announces/lookups for a topic.
	Interval time.Duration
}

// NewDHT starts a DHT node.
// If conf is nil, dht.NewDefaultServerConfig is used.
func NewDHT(conf *dht.ServerConfig) (*DHT, error) {
	if conf == nil {
		conf = dht.NewDefaultServerConfig()
	}
	s, err := dht.NewServer(conf)
	if err != nil {
		return nil, errors.Wrap(err, "starting DHT node")
	}
	return &DHT{s: s, Interval: 5 * time.Minute}, nil
}

func (d *DHT) Join(ctx context.Context, dkey [32]byte, addr string, opts JoinOpts, found func(string)) error {
	if !opts.Announce && !opts.Lookup {
		return nil
	}

	// Port 0 (with no implied port) traverses without announcing.
	var port int
	if opts.Announce {
		_, portstr, err := net.SplitHostPort(addr)
		if err != nil {
			return errors.Wrapf(err, "parsing address %s", addr)
		}
		port, err = strconv.Atoi(portstr)
		if err != nil {
			return errors.Wrapf(err, "parsing port in %s", addr)
		}
	}

	var infohash [20]byte
	copy(infohash[:], dkey[:])

	go func() {
		ticker := time.NewTicker(d.Interval)
		defer ticker.Stop()

		for {
			d.traverse(ctx, infohash, port, opts.Lookup, found)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return nil
}

func (d *DHT) traverse(ctx context.Context, infohash [20]byte, port int, lookup bool, found func(string)) {
	a, err := d.s.Announce(infohash, port, false)
	if err != nil {
		log.Printf("DHT traversal for %x: %s", infohash[:4], err)
		return
	}
	defer a.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case pv, ok := <-a.Peers:
			if !ok {
				return
			}
			if !lookup {
				continue
			}
			for _, p := range pv.Peers {
				found(p.String())
			}
		}
	}
}

func (d *DHT) Close() error {
	d.s.Close()
	return nil
}
