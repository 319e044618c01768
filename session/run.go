package session

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/bsdrive/lifecycle"
	"github.com/bobg/bsdrive/mirror"
	"github.com/bobg/bsdrive/progress"
)

type RunOptions struct {
	// Dir is the output directory in copy mode
	// and the input directory in create mode.
	Dir string

	Join JoinOptions

	// Delete removes files from the destination that are not in the source.
	Delete bool

	// Indicator displays transfer progress.
	// If nil, nothing is displayed.
	Indicator progress.Indicator

	// Interval is the time between progress updates.
	// If zero, the progress default is used.
	Interval time.Duration
}

// Run joins the swarm and mirrors the drive to or from opts.Dir,
// then tears the session down.
// In create mode it keeps seeding after the transfer
// until ctx is canceled.
// Cancellation of ctx is an interrupt.
//
// The result is the process exit code,
// and the error (a *JoinError or *TransferError) if the run failed.
// An interrupt is not an error.
func (s *Session) Run(ctx context.Context, opts RunOptions) (int, error) {
	ind := opts.Indicator
	if ind == nil {
		ind = progress.Nop{}
	}
	var monOpts []progress.Option
	if opts.Interval > 0 {
		monOpts = append(monOpts, progress.Interval(opts.Interval))
	}
	mon := progress.NewMonitor(s.Drive, ind, monOpts...)

	ctrl := lifecycle.New(lifecycle.Config{
		Seed:        s.Mode == ModeCreate,
		Network:     s.Network,
		Store:       s.Store,
		ScratchPath: s.ScratchPath,
		Ephemeral:   s.Ephemeral,
		Progress:    mon,
	})

	if err := ctrl.Enter(lifecycle.Joining); err != nil {
		return lifecycle.ExitFailure, err
	}
	if err := Join(ctx, s, opts.Join); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			ctrl.Handle(ctx, lifecycle.Interrupt{})
			<-ctrl.Done()
			return ctrl.ExitCode(), nil
		}
		ctrl.Handle(ctx, lifecycle.Error{Err: err})
		<-ctrl.Done()
		return ctrl.ExitCode(), err
	}

	var (
		src mirror.Tree
		dst mirror.WritableTree
	)
	if s.Mode == ModeCreate {
		src, dst = mirror.Local(opts.Dir), s.Drive
	} else {
		src, dst = s.Drive, mirror.Local(opts.Dir)
	}

	// The mirror and the progress monitor stop when the controller is done,
	// so an interrupt reaches the controller before them.
	mctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mon.Run(mctx)

	events := mirror.Run(mctx, src, dst, mirror.Options{Delete: opts.Delete})
	code := ctrl.Run(ctx, events)
	if err := ctrl.Err(); err != nil {
		return code, &TransferError{Err: err}
	}
	return code, nil
}
