// Package ingest receives asynchronous keypress hook notifications and
// fast-paths session state updates.
//
// Hook emitters are fire-and-forget shell one-liners inside the user's
// terminal config; they know only their backend-native pane id, not the
// registry's id scheme. Resolution happens here against the current
// registry. Unresolvable events are dropped and counted — never queued,
// since a queued event could act on a stale session after the registry
// moves on.
package ingest

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/agentwatch/agentwatch/internal/eventbus"
	"github.com/agentwatch/agentwatch/internal/registry"
)

// ErrResolutionFailure means a hook event's pane id mapped to no live
// session: not yet discovered, unmanaged by any hook-capable backend,
// or already retired.
var ErrResolutionFailure = errors.New("hook event did not resolve to a session")

// HookEvent is one inbound notification.
type HookEvent struct {
	// PaneID is the backend-native pane identity as the emitting
	// environment knows it.
	PaneID string `json:"pane_id"`

	// Type is the emitter's event label; informational only.
	Type string `json:"type,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// Ingest resolves hook events against the registry and applies the
// fast-path state update. It never blocks on the poll loop: the only
// lock it takes is the resolved session's own record lock.
type Ingest struct {
	reg *registry.Registry
	bus *eventbus.Bus

	received uint64
	applied  uint64
	dropped  uint64
}

// New creates an Ingest over the registry.
func New(reg *registry.Registry, bus *eventbus.Bus) *Ingest {
	return &Ingest{reg: reg, bus: bus}
}

// Handle processes one hook event. Returns ErrResolutionFailure when
// the pane id maps to no session; the event is dropped and counted, and
// it never fabricates a registry entry.
func (in *Ingest) Handle(ev HookEvent) error {
	atomic.AddUint64(&in.received, 1)

	at := ev.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}

	rec, ok := in.reg.ResolveNative(ev.PaneID)
	if !ok {
		atomic.AddUint64(&in.dropped, 1)
		return fmt.Errorf("pane %q: %w", ev.PaneID, ErrResolutionFailure)
	}

	atomic.AddUint64(&in.applied, 1)
	if tr, changed := rec.ApplyHook(at); changed {
		in.bus.PublishTransition(rec.ID(), tr)
	}
	return nil
}

// Stats reports ingest counters.
type Stats struct {
	Received uint64 `json:"received"`
	Applied  uint64 `json:"applied"`
	Dropped  uint64 `json:"dropped"`
}

// Stats returns a snapshot of the counters.
func (in *Ingest) Stats() Stats {
	return Stats{
		Received: atomic.LoadUint64(&in.received),
		Applied:  atomic.LoadUint64(&in.applied),
		Dropped:  atomic.LoadUint64(&in.dropped),
	}
}
