package monitor

import (
	"hash/fnv"
	"time"
)

// Default detection thresholds.
const (
	// DefaultStableThreshold is K: the number of consecutive polls with
	// an unchanged fingerprint before working becomes waiting_input.
	// A long silent computation can false-positive here; that is a known
	// heuristic limit, tunable per deployment.
	DefaultStableThreshold = 2

	// DefaultDeathThreshold is the number of consecutive failed
	// existence checks before a session is declared dead. One miss is
	// never enough: transient scan errors must not kill sessions.
	DefaultDeathThreshold = 2
)

// Machine is the turn detector for a single session. It is not
// concurrency-safe on its own; the owning registry record serializes
// access under its lock.
type Machine struct {
	state            State
	source           Source
	seq              uint64
	lastTransitionAt time.Time

	fingerprint    uint64
	hasFingerprint bool
	stablePolls    int
	existMisses    int
	lastHookAt     time.Time

	stableThreshold int
	deathThreshold  int
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithStableThreshold sets K, the stable-poll count for waiting_input.
func WithStableThreshold(k int) MachineOption {
	return func(m *Machine) {
		if k > 0 {
			m.stableThreshold = k
		}
	}
}

// WithDeathThreshold sets the existence-miss count for death.
func WithDeathThreshold(n int) MachineOption {
	return func(m *Machine) {
		if n > 0 {
			m.deathThreshold = n
		}
	}
}

// NewMachine creates a Machine in StateUnknown.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		state:           StateUnknown,
		source:          SourcePoll,
		stableThreshold: DefaultStableThreshold,
		deathThreshold:  DefaultDeathThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Seq returns the sequence number of the latest transition.
func (m *Machine) Seq() uint64 { return m.seq }

// Source returns the source of the latest transition.
func (m *Machine) Source() Source { return m.source }

// LastTransitionAt returns when the latest transition was committed.
func (m *Machine) LastTransitionAt() time.Time { return m.lastTransitionAt }

// transition commits a state change and returns it. Callers must have
// validated the edge; transition panics on an invalid one to surface
// detector bugs in tests rather than corrupt live state silently.
func (m *Machine) transition(to State, src Source, at time.Time) Transition {
	if !CanTransition(m.state, to) {
		panic("monitor: invalid transition " + string(m.state) + " -> " + string(to))
	}
	tr := Transition{From: m.state, To: to, Source: src, At: at}
	m.state = to
	m.source = src
	m.seq++
	m.lastTransitionAt = at
	tr.Seq = m.seq
	return tr
}

// ObserveCapture feeds one poll capture into the machine. Returns the
// committed transition, if any.
//
// A capture taken before the most recent hook-sourced update is stale:
// it observed the terminal before the turn started and must not demote
// the session, so it is rejected outright.
func (m *Machine) ObserveCapture(text string, capturedAt time.Time) (Transition, bool) {
	if m.state.Terminal() {
		return Transition{}, false
	}
	if capturedAt.Before(m.lastHookAt) {
		return Transition{}, false
	}

	// A successful capture proves the session exists.
	m.existMisses = 0

	fp := Fingerprint(text)
	changed := !m.hasFingerprint || fp != m.fingerprint
	m.fingerprint = fp
	m.hasFingerprint = true

	switch m.state {
	case StateUnknown:
		// First successful capture: the session is observed.
		m.stablePolls = 0
		return m.transition(StateIdle, SourcePoll, capturedAt), true

	case StateIdle, StateWaitingInput:
		if changed {
			m.stablePolls = 0
			return m.transition(StateWorking, SourcePoll, capturedAt), true
		}

	case StateWorking:
		if changed {
			m.stablePolls = 0
			return Transition{}, false
		}
		m.stablePolls++
		if m.stablePolls >= m.stableThreshold && capturedAt.After(m.lastHookAt) {
			m.stablePolls = 0
			return m.transition(StateWaitingInput, SourcePoll, capturedAt), true
		}
	}
	return Transition{}, false
}

// ObserveHook feeds a keypress hook notification into the machine. The
// fast path: the session goes working immediately instead of waiting up
// to one poll interval for the diff to land.
func (m *Machine) ObserveHook(at time.Time) (Transition, bool) {
	if m.state.Terminal() {
		return Transition{}, false
	}

	m.lastHookAt = at
	m.stablePolls = 0

	switch m.state {
	case StateIdle, StateWaitingInput:
		return m.transition(StateWorking, SourceHook, at), true
	}
	// Unknown: the session has never been captured; record the hook so
	// the next poll cannot demote, but let the poll path establish the
	// session first. Working: already there, nothing to commit.
	return Transition{}, false
}

// ObserveExistence feeds one existence-check result into the machine.
// Death is debounced: only consecutive misses count.
func (m *Machine) ObserveExistence(exists bool, at time.Time) (Transition, bool) {
	if m.state.Terminal() {
		return Transition{}, false
	}
	if exists {
		m.existMisses = 0
		return Transition{}, false
	}
	m.existMisses++
	if m.existMisses < m.deathThreshold {
		return Transition{}, false
	}
	return m.transition(StateDead, SourcePoll, at), true
}

// Fingerprint hashes a capture window for cheap change detection.
func Fingerprint(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}
