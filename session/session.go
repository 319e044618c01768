// Package session sets up and runs one invocation:
// a copy of a drive into a local directory,
// or the creation of a drive from a local directory, seeded to peers.
package session

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/anchor"
	"github.com/bobg/bsdrive/drive"
	"github.com/bobg/bsdrive/store"
	"github.com/bobg/bsdrive/store/logging"
	"github.com/bobg/bsdrive/store/lru"
	"github.com/bobg/bsdrive/swarm"

	_ "github.com/bobg/bsdrive/store/file"
)

type Mode int

const (
	// ModeCopy downloads a drive.
	ModeCopy Mode = iota

	// ModeCreate publishes a directory as a drive and seeds it.
	ModeCreate
)

func (m Mode) String() string {
	if m == ModeCreate {
		return "create"
	}
	return "copy"
}

type Config struct {
	Mode Mode

	// Key is the hex key of the drive to copy.
	// It is ignored in create mode.
	Key string

	// StoragePath is a directory for the store that outlives the session.
	// If empty, a temporary directory is created beneath TempDir
	// and removed when the session ends
	// (unless the transfer failed).
	StoragePath string
	TempDir     string

	// StoreConfig selects the store, as for store.FromConfig.
	// If nil, a file store is used.
	// A "file" store with no root,
	// or a "sqlite3" store with no conn,
	// is placed in the storage directory.
	StoreConfig map[string]interface{}

	// CacheSize, if positive, puts an LRU cache of that many blobs in front of the store.
	CacheSize int

	// Verbose logs each store operation.
	Verbose bool

	Network swarm.Config
}

// Session is the state of one invocation.
type Session struct {
	Mode    Mode
	Drive   *drive.Drive
	Store   anchor.Store
	Network *swarm.Network

	// ScratchPath is the directory backing Store.
	ScratchPath string

	// Ephemeral is true when ScratchPath was created for this session
	// and may be deleted at its end.
	Ephemeral bool
}

// Bootstrap validates conf and brings up the store, drive and network,
// returning once the drive is ready and the network is listening.
// A malformed key is reported as a *bsdrive.ValidationError before anything is allocated.
// Other failures are reported as a *BootstrapError,
// after releasing whatever was set up.
func Bootstrap(ctx context.Context, conf Config) (_ *Session, err error) {
	var key *drive.Key
	if conf.Mode == ModeCopy {
		k, perr := drive.ParseKey(conf.Key)
		if perr != nil {
			return nil, perr
		}
		key = &k
	}

	s := &Session{Mode: conf.Mode}
	defer func() {
		if err != nil {
			s.close(true)
			err = &BootstrapError{Err: err}
		}
	}()

	if conf.StoragePath != "" {
		if err = os.MkdirAll(conf.StoragePath, 0755); err != nil {
			return nil, errors.Wrapf(err, "creating %s", conf.StoragePath)
		}
		s.ScratchPath = conf.StoragePath
	} else {
		s.ScratchPath, err = os.MkdirTemp(conf.TempDir, "bsdrive-")
		if err != nil {
			return nil, errors.Wrap(err, "creating scratch dir")
		}
		s.Ephemeral = true
	}

	s.Store, err = openStore(ctx, conf, s.ScratchPath)
	if err != nil {
		return nil, err
	}

	s.Drive, err = drive.Open(ctx, s.Store, key)
	if err != nil {
		return nil, errors.Wrap(err, "opening drive")
	}

	s.Network = swarm.New(s.Store, conf.Network)
	s.Drive.SetRemote(s.Network)

	if err = s.Drive.Ready(ctx); err != nil {
		return nil, errors.Wrap(err, "readying drive")
	}
	if err = s.Network.Listen(ctx); err != nil {
		return nil, errors.Wrap(err, "starting network")
	}

	return s, nil
}

func openStore(ctx context.Context, conf Config, dir string) (anchor.Store, error) {
	sconf := make(map[string]interface{})
	for k, v := range conf.StoreConfig {
		sconf[k] = v
	}
	if _, ok := sconf["type"]; !ok {
		sconf["type"] = "file"
	}
	switch sconf["type"] {
	case "file":
		if _, ok := sconf["root"]; !ok {
			sconf["root"] = dir
		}
	case "sqlite3":
		if _, ok := sconf["conn"]; !ok {
			sconf["conn"] = filepath.Join(dir, "bsdrive.db")
		}
	}

	st, err := store.FromConfig(ctx, sconf)
	if err != nil {
		return nil, errors.Wrap(err, "creating store")
	}
	a, ok := st.(anchor.Store)
	if !ok {
		bsdrive.Close(st)
		return nil, errors.Errorf("%s store does not support anchors", sconf["type"])
	}

	if conf.CacheSize > 0 {
		c, err := lru.New(a, conf.CacheSize)
		if err != nil {
			bsdrive.Close(a)
			return nil, errors.Wrap(err, "creating cache")
		}
		a = c
	}
	if conf.Verbose {
		a = logging.New(a)
	}
	return a, nil
}

// Close closes the network and the store,
// leaving the storage directory in place.
// It is for sessions that are not Run.
func (s *Session) Close() error {
	return s.close(false)
}

func (s *Session) close(removeScratch bool) error {
	var result error
	if s.Network != nil {
		result = s.Network.Close()
	}
	if s.Store != nil {
		if err := bsdrive.Close(s.Store); err != nil && result == nil {
			result = err
		}
	}
	if removeScratch && s.Ephemeral && s.ScratchPath != "" {
		if err := os.RemoveAll(s.ScratchPath); err != nil && result == nil {
			result = err
		}
	}
	return result
}
