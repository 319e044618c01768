// Package lifecycle drives a run from its transfer to its teardown.
//
// A Controller consumes the events of a mirror operation,
// and cancellation of the context given to Run (an interrupt),
// as messages to a single state-transition function, Handle.
// Whichever message ends the run triggers Shutdown,
// which closes the network, then the store,
// then optionally deletes the scratch directory,
// exactly once.
package lifecycle

import (
	"context"
	"io"
	"log"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/mirror"
	"github.com/bobg/bsdrive/progress"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// Progress is the display a Controller updates.
// Stop may be called more than once.
// *progress.Monitor is a Progress.
type Progress interface {
	Label(path string)
	Refresh(context.Context) (progress.Sample, error)
	Stop()
}

// Config is the set of resources a Controller owns.
type Config struct {
	// Seed is true in create mode,
	// where the run continues serving peers after the transfer completes
	// until it is interrupted.
	Seed bool

	Network io.Closer
	Store   bsdrive.Getter

	// ScratchPath is the directory backing Store.
	// It is deleted only when Ephemeral is true.
	ScratchPath string
	Ephemeral   bool

	// Progress may be nil.
	Progress Progress

	// RemoveAll deletes the scratch directory.
	// The default is os.RemoveAll.
	RemoveAll func(string) error
}

type (
	// Msg is a message to Handle.
	Msg interface{ isMsg() }

	// Put reports a file being copied.
	Put struct{ Path string }

	// Delete reports a file being removed.
	Delete struct{ Path string }

	// End reports that the transfer completed.
	End struct{}

	// Error reports a failure.
	Error struct{ Err error }

	// Interrupt requests that the run stop.
	Interrupt struct{}
)

func (Put) isMsg()       {}
func (Delete) isMsg()    {}
func (End) isMsg()       {}
func (Error) isMsg()     {}
func (Interrupt) isMsg() {}

// Outcome tells Shutdown how the run ended.
type Outcome struct {
	Code          int
	DeleteScratch bool
}

// Controller is the state machine for one run.
type Controller struct {
	conf Config

	mu       sync.Mutex
	state    State
	cause    error
	code     int
	shutting bool
	shutErr  error
	done     chan struct{}
}

func New(conf Config) *Controller {
	if conf.RemoveAll == nil {
		conf.RemoveAll = os.RemoveAll
	}
	return &Controller{
		conf: conf,
		done: make(chan struct{}),
	}
}

// State is the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Enter moves the controller to the given state.
func (c *Controller) Enter(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enter(to)
}

func (c *Controller) enter(to State) error {
	if !c.state.CanTransition(to) {
		return &TransitionError{From: c.state, To: to}
	}
	c.state = to
	return nil
}

// Err is the error that failed the run, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Done is closed when Shutdown has finished.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// ExitCode is the process exit status.
// It is meaningful once Done is closed.
func (c *Controller) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// Run delivers the events of a mirror operation to Handle
// until the run is over,
// then waits for Shutdown to finish and returns the exit code.
// Cancellation of ctx is delivered as Interrupt.
func (c *Controller) Run(ctx context.Context, events <-chan mirror.Event) int {
	if err := c.Enter(Transferring); err != nil {
		log.Printf("starting transfer: %s", err)
		c.Shutdown(Outcome{Code: ExitFailure})
		return c.ExitCode()
	}

	for !c.over() {
		select {
		case <-ctx.Done():
			c.Handle(ctx, Interrupt{})

		case ev, ok := <-events:
			if !ok {
				events = nil
				if c.State() == Transferring {
					c.Handle(ctx, Error{Err: errors.New("transfer stopped without a result")})
				}
				continue
			}
			msg := msgFor(ev)
			if e, isErr := msg.(Error); isErr && interrupted(ctx, e.Err) {
				// The mirror saw the interrupt first.
				msg = Interrupt{}
			}
			c.Handle(ctx, msg)
		}
	}

	<-c.done
	return c.ExitCode()
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}

func (c *Controller) over() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutting
}

func msgFor(ev mirror.Event) Msg {
	switch ev.Type {
	case mirror.EventPut:
		return Put{Path: ev.Path}
	case mirror.EventDelete:
		return Delete{Path: ev.Path}
	case mirror.EventEnd:
		return End{}
	default:
		return Error{Err: ev.Err}
	}
}

// Handle is the state-transition function.
// Messages that arrive after the run is decided are ignored.
func (c *Controller) Handle(ctx context.Context, msg Msg) {
	switch msg := msg.(type) {
	case Put:
		if p := c.conf.Progress; p != nil && c.State() == Transferring {
			p.Label(msg.Path)
		}

	case Delete:
		// Not shown.

	case End:
		c.handleEnd(ctx)

	case Error:
		c.handleError(msg.Err)

	case Interrupt:
		c.handleInterrupt()
	}
}

func (c *Controller) handleEnd(ctx context.Context) {
	if c.State() != Transferring {
		return
	}

	if p := c.conf.Progress; p != nil {
		if _, err := p.Refresh(ctx); err != nil {
			log.Printf("final progress refresh: %s", err)
		}
		p.Stop()
	}

	c.mu.Lock()
	err := c.enter(Completed)
	c.mu.Unlock()
	if err != nil {
		return
	}

	if c.conf.Seed {
		return
	}
	c.Shutdown(Outcome{Code: ExitOK, DeleteScratch: true})
}

func (c *Controller) handleError(err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	c.mu.Lock()
	from := c.state
	if c.enter(Failed) != nil {
		c.mu.Unlock()
		return
	}
	c.cause = err
	c.mu.Unlock()

	// Partial transfers are kept for diagnosis.
	c.Shutdown(Outcome{Code: ExitFailure, DeleteScratch: from != Transferring})
}

func (c *Controller) handleInterrupt() {
	c.mu.Lock()
	from := c.state
	if from >= ShuttingDown || from == Failed || (from == Completed && !c.conf.Seed) {
		// Already on its way down.
		c.mu.Unlock()
		return
	}
	if from < Completed {
		c.enter(Failed)
	}
	c.mu.Unlock()

	switch {
	case c.conf.Seed && from == Completed:
		c.Shutdown(Outcome{Code: ExitOK, DeleteScratch: true})
	case c.conf.Seed:
		c.Shutdown(Outcome{Code: ExitInterrupted, DeleteScratch: true})
	case from == Transferring:
		c.Shutdown(Outcome{Code: ExitInterrupted})
	default:
		c.Shutdown(Outcome{Code: ExitInterrupted, DeleteScratch: true})
	}
}

// Shutdown stops the progress display,
// closes the network,
// closes the store,
// deletes the scratch directory if requested and allowed,
// and records the exit code.
// Only the first call does this.
// Later and concurrent calls wait for it to finish and return its result.
func (c *Controller) Shutdown(o Outcome) error {
	c.mu.Lock()
	if c.shutting {
		c.mu.Unlock()
		<-c.done
		return c.shutErr
	}
	c.shutting = true
	if err := c.enter(ShuttingDown); err != nil {
		log.Printf("shutting down: %s", err)
		c.state = ShuttingDown
	}
	c.mu.Unlock()

	if p := c.conf.Progress; p != nil {
		p.Stop()
	}
	log.Print(outcomeMessage(o.Code, c.conf.Seed))

	var result error
	if c.conf.Network != nil {
		log.Print("Closing network...")
		if err := c.conf.Network.Close(); err != nil {
			log.Printf("closing network: %s", err)
			result = errors.Wrap(err, "closing network")
		}
	}
	if c.conf.Store != nil {
		log.Print("Closing store...")
		if err := bsdrive.Close(c.conf.Store); err != nil {
			log.Printf("closing store: %s", err)
			if result == nil {
				result = errors.Wrap(err, "closing store")
			}
		}
	}
	if o.DeleteScratch && c.conf.Ephemeral && c.conf.ScratchPath != "" {
		log.Printf("Removing %s...", c.conf.ScratchPath)
		if err := c.conf.RemoveAll(c.conf.ScratchPath); err != nil {
			log.Printf("removing %s: %s", c.conf.ScratchPath, err)
			if result == nil {
				result = errors.Wrapf(err, "removing %s", c.conf.ScratchPath)
			}
		}
	}

	c.mu.Lock()
	c.code = o.Code
	if result != nil && c.code == ExitOK {
		c.code = ExitFailure
	}
	c.shutErr = result
	c.state = Closed
	c.mu.Unlock()

	close(c.done)
	return result
}

func outcomeMessage(code int, seed bool) string {
	switch {
	case code == ExitInterrupted:
		return "Interrupted, shutting down"
	case code != ExitOK:
		return "Transfer failed, shutting down"
	case seed:
		return "Stopped seeding"
	default:
		return "Transfer complete!"
	}
}
