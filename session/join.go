package session

import (
	"context"

	"github.com/bobg/bsdrive/swarm"
)

type JoinOptions struct {
	// Announce advertises this node as a source for the drive.
	Announce bool

	// Lookup searches for other nodes with the drive.
	Lookup bool

	// WaitForPeer blocks Join until a peer connects.
	WaitForPeer bool
}

// DefaultJoinOptions are the options for mode:
// copies look for peers and wait for one,
// creations only announce.
func DefaultJoinOptions(mode Mode) JoinOptions {
	if mode == ModeCreate {
		return JoinOptions{Announce: true}
	}
	return JoinOptions{Lookup: true, WaitForPeer: true}
}

// Join joins the swarm of the session's drive.
// Joining again is a no-op.
// The wait for a peer ends early, with ctx's error, if ctx is canceled.
// Failures are reported as a *JoinError.
func Join(ctx context.Context, s *Session, opts JoinOptions) error {
	err := s.Network.Join(ctx, s.Drive, swarm.JoinOpts{Announce: opts.Announce, Lookup: opts.Lookup})
	if err != nil {
		return &JoinError{Err: err}
	}
	if opts.WaitForPeer {
		if err = s.Network.WaitForPeer(ctx, s.Drive.DiscoveryKey()); err != nil {
			return &JoinError{Err: err}
		}
	}

	if s.Mode == ModeCopy {
		// Learn the head now so that the first stats query has something to count.
		// Failure here resurfaces, if it persists, when the transfer begins.
		s.Drive.Head(ctx)
	}
	return nil
}
