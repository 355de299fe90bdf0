package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/agentwatch/agentwatch/internal/backend"
	"github.com/agentwatch/agentwatch/internal/monitor"
)

// excerptLines bounds the output excerpt kept on each record for
// snapshot readers.
const excerptLines = 10

// Session is a copied, read-only view of one session. All registry
// readers get these, never live records.
type Session struct {
	ID        ID                    `json:"id"`
	Kind      backend.Kind          `json:"backend"`
	NativeID  string                `json:"native_id"`
	TTY       string                `json:"tty,omitempty"`
	Title     string                `json:"title,omitempty"`
	Project   string                `json:"project,omitempty"`
	Unmanaged bool                  `json:"unmanaged,omitempty"`
	Caps      backend.CapabilitySet `json:"capabilities"`

	State            monitor.State  `json:"state"`
	Source           monitor.Source `json:"transition_source"`
	Seq              uint64         `json:"seq"`
	LastTransitionAt time.Time      `json:"last_transition_at,omitzero"`

	CreatedAt    time.Time `json:"created_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	LastOutput   string    `json:"last_output_excerpt,omitempty"`
	TransientErr bool      `json:"transient_error,omitempty"`
}

// Record is the live state for one session. The scanner and the ingest
// path both mutate records; each call takes the record's own lock, so a
// hook update for session A never waits on a poll touching session B.
type Record struct {
	mu sync.Mutex

	id       ID
	kind     backend.Kind
	nativeID string
	tty      string
	title    string
	project  string
	unmanage bool
	caps     backend.CapabilitySet

	createdAt    time.Time
	lastSeenAt   time.Time
	lastOutput   string
	transientErr bool

	machine *monitor.Machine
}

func newRecord(id ID, kind backend.Kind, ns backend.NativeSession, caps backend.CapabilitySet, now time.Time, stableThreshold, deathThreshold int) *Record {
	return &Record{
		id:        id,
		kind:      kind,
		nativeID:  ns.NativeID,
		tty:       ns.TTY,
		title:     ns.Title,
		caps:      caps,
		createdAt: now,
		machine: monitor.NewMachine(
			monitor.WithStableThreshold(stableThreshold),
			monitor.WithDeathThreshold(deathThreshold),
		),
	}
}

// ID returns the session id.
func (rec *Record) ID() ID { return rec.id }

// Kind returns the owning backend kind.
func (rec *Record) Kind() backend.Kind { return rec.kind }

// NativeID returns the backend-native identity.
func (rec *Record) NativeID() string { return rec.nativeID }

// Caps returns the capability set captured at discovery.
func (rec *Record) Caps() backend.CapabilitySet { return rec.caps }

// touch refreshes discovery-time metadata on every poll cycle. The
// project association follows the stable title, re-evaluated each cycle
// in case the user renames the tab.
func (rec *Record) touch(ns backend.NativeSession, now time.Time, matcher ProjectMatcher) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.lastSeenAt = now
	if ns.Title != "" {
		rec.title = ns.Title
	}
	if ns.TTY != "" {
		rec.tty = ns.TTY
	}
	if matcher != nil {
		if project, ok := matcher.Match(rec.title); ok {
			rec.project = project
			rec.unmanage = false
		} else {
			rec.project = ""
			rec.unmanage = true
		}
	}
}

// ApplyCapture feeds a poll capture into the session's detector and
// clears the transient-error flag. Returns the committed transition, if
// any.
func (rec *Record) ApplyCapture(res backend.CaptureResult) (monitor.Transition, bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.transientErr = false
	rec.lastOutput = tailLines(res.Text, excerptLines)
	return rec.machine.ObserveCapture(res.Text, res.CapturedAt)
}

// ApplyHook feeds a hook notification into the session's detector.
// This is the ingest fast path; it holds only this record's lock.
func (rec *Record) ApplyHook(at time.Time) (monitor.Transition, bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.machine.ObserveHook(at)
}

// ApplyExistence feeds an existence-check result into the detector.
// Death commits only after the debounce threshold of consecutive misses.
func (rec *Record) ApplyExistence(exists bool, at time.Time) (monitor.Transition, bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.machine.ObserveExistence(exists, at)
}

// MarkTransient flags the session after a timed-out or failed backend
// call. Slowness is never death; the flag clears on the next successful
// capture.
func (rec *Record) MarkTransient() {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.transientErr = true
}

// State returns the session's current detector state.
func (rec *Record) State() monitor.State {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.machine.State()
}

// Snapshot returns a copied view of the record.
func (rec *Record) Snapshot() Session {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return Session{
		ID:               rec.id,
		Kind:             rec.kind,
		NativeID:         rec.nativeID,
		TTY:              rec.tty,
		Title:            rec.title,
		Project:          rec.project,
		Unmanaged:        rec.unmanage,
		Caps:             rec.caps,
		State:            rec.machine.State(),
		Source:           rec.machine.Source(),
		Seq:              rec.machine.Seq(),
		LastTransitionAt: rec.machine.LastTransitionAt(),
		CreatedAt:        rec.createdAt,
		LastSeenAt:       rec.lastSeenAt,
		LastOutput:       rec.lastOutput,
		TransientErr:     rec.transientErr,
	}
}

// tailLines returns the last n non-empty-trimmed lines of text.
func tailLines(text string, n int) string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
