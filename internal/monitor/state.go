// Package monitor implements per-session turn detection.
//
// A session's state is driven by two inputs that arrive on independent
// paths: bounded output captures from the poll loop, and keypress hook
// notifications from hook-capable backends. The Machine merges both into
// one totally-ordered sequence of transitions per session, with hook
// updates taking precedence over polls that observed the terminal
// earlier.
package monitor

import "time"

// State is the observed lifecycle state of a session.
type State string

const (
	// StateUnknown is the initial state before the first capture.
	StateUnknown State = "unknown"

	// StateIdle means the session is observed with no active work.
	StateIdle State = "idle"

	// StateWorking means the assistant is producing output.
	StateWorking State = "working"

	// StateWaitingInput means output has been stable long enough that
	// the assistant is assumed blocked on a human.
	StateWaitingInput State = "waiting_input"

	// StateDead means the backend confirmed the session is gone.
	// Terminal: a reused native slot becomes a new session.
	StateDead State = "dead"
)

// Terminal reports whether the state permits no further transitions.
func (s State) Terminal() bool { return s == StateDead }

// Source records which path produced a transition.
type Source string

const (
	SourcePoll Source = "poll"
	SourceHook Source = "hook"
)

// edges is the allowed transition graph. Death is reachable from every
// non-dead state; everything else follows the turn cycle.
var edges = map[State][]State{
	StateUnknown:      {StateIdle, StateDead},
	StateIdle:         {StateWorking, StateDead},
	StateWorking:      {StateWaitingInput, StateDead},
	StateWaitingInput: {StateWorking, StateDead},
}

// CanTransition reports whether from → to is an allowed edge.
func CanTransition(from, to State) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is one committed state change, stamped with the session's
// monotonic sequence number.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Source Source    `json:"source"`
	Seq    uint64    `json:"seq"`
	At     time.Time `json:"at"`
}
