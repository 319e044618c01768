package lifecycle

import "fmt"

// State is the phase of a run.
type State int

const (
	Initializing State = iota
	Joining
	Transferring
	Completed
	Failed
	ShuttingDown
	Closed
)

var stateNames = [...]string{
	Initializing: "initializing",
	Joining:      "joining",
	Transferring: "transferring",
	Completed:    "completed",
	Failed:       "failed",
	ShuttingDown: "shutting-down",
	Closed:       "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CanTransition tells whether a run in state s may move to state to.
// States advance in order, possibly skipping some,
// except that Completed and Failed are mutually exclusive,
// ShuttingDown may be entered from any state before it,
// and Closed only follows ShuttingDown.
func (s State) CanTransition(to State) bool {
	switch to {
	case ShuttingDown:
		return s < ShuttingDown
	case Closed:
		return s == ShuttingDown
	case Failed:
		return s < Completed
	}
	return s < to && s < Completed
}

// TransitionError is returned for a disallowed state change.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot go from %s to %s", e.From, e.To)
}
