package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/agentwatch/agentwatch/internal/backend"
	"github.com/agentwatch/agentwatch/internal/eventbus"
	"github.com/agentwatch/agentwatch/internal/monitor"
	"github.com/agentwatch/agentwatch/internal/registry"
)

func newIngest(t *testing.T) (*Ingest, *registry.Registry, *eventbus.Bus) {
	t.Helper()
	reg := registry.New()
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	return New(reg, bus), reg, bus
}

func hookCaps() backend.CapabilitySet {
	return backend.CapabilitySet{Read: true, Write: true, Focus: true, Hook: true}
}

// seedIdle registers a session and walks it to idle via one capture.
func seedIdle(t *testing.T, reg *registry.Registry, paneID string) *registry.Record {
	t.Helper()
	rec, _ := reg.Upsert(backend.KindWezTerm, backend.NativeSession{NativeID: paneID}, hookCaps())
	rec.ApplyCapture(backend.CaptureResult{Text: "ready", CapturedAt: time.Now()})
	return rec
}

// ---------------------------------------------------------------------------
// fast path
// ---------------------------------------------------------------------------

// A hook on an idle session flips it to working immediately; a read in
// the same instant already observes working, without waiting for the
// next poll.
func TestHookFastPath(t *testing.T) {
	in, reg, bus := newIngest(t)
	rec := seedIdle(t, reg, "42")

	events, unsub := bus.Subscribe()
	defer unsub()

	if err := in.Handle(HookEvent{PaneID: "42", Type: "keypress"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if st := rec.State(); st != monitor.StateWorking {
		t.Errorf("state after hook = %s, want working", st)
	}

	select {
	case ev := <-events:
		if ev.Type != eventbus.EventStateChanged {
			t.Errorf("event type = %s, want state_changed", ev.Type)
		}
		if ev.Transition.Source != monitor.SourceHook {
			t.Errorf("transition source = %s, want hook", ev.Transition.Source)
		}
	default:
		t.Error("no transition event published")
	}
}

// A second hook while already working applies but commits nothing.
func TestDuplicateHookIsQuiet(t *testing.T) {
	in, reg, bus := newIngest(t)
	seedIdle(t, reg, "42")

	in.Handle(HookEvent{PaneID: "42"})

	events, unsub := bus.Subscribe()
	defer unsub()
	if err := in.Handle(HookEvent{PaneID: "42"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(events) != 0 {
		t.Error("duplicate hook published an event")
	}

	st := in.Stats()
	if st.Applied != 2 {
		t.Errorf("applied = %d, want 2", st.Applied)
	}
}

// ---------------------------------------------------------------------------
// resolution failures
// ---------------------------------------------------------------------------

// Events for panes the registry has never seen are dropped and counted,
// never queued and never fabricated into sessions.
func TestUnresolvableEventIsDropped(t *testing.T) {
	in, reg, _ := newIngest(t)

	err := in.Handle(HookEvent{PaneID: "ghost"})
	if !errors.Is(err, ErrResolutionFailure) {
		t.Fatalf("err = %v, want ErrResolutionFailure", err)
	}
	if reg.Len() != 0 {
		t.Error("drop fabricated a registry entry")
	}

	st := in.Stats()
	if st.Received != 1 || st.Dropped != 1 || st.Applied != 0 {
		t.Errorf("stats = %+v, want received=1 dropped=1 applied=0", st)
	}
}

func TestHookAfterRetireIsDropped(t *testing.T) {
	in, reg, _ := newIngest(t)
	rec := seedIdle(t, reg, "42")
	reg.Retire(rec)

	if err := in.Handle(HookEvent{PaneID: "42"}); !errors.Is(err, ErrResolutionFailure) {
		t.Errorf("err = %v, want ErrResolutionFailure for retired session", err)
	}
}

// With both a hook-capable and a poll-only record claiming the same
// native pane, the hook lands on the hook-capable one.
func TestHookResolvesToHookCapableRecord(t *testing.T) {
	in, reg, _ := newIngest(t)

	tmux, _ := reg.Upsert(backend.KindTmux, backend.NativeSession{NativeID: "42"},
		backend.CapabilitySet{Read: true, Write: true, Focus: true})
	tmux.ApplyCapture(backend.CaptureResult{Text: "ready", CapturedAt: time.Now()})
	wez := seedIdle(t, reg, "42")

	if err := in.Handle(HookEvent{PaneID: "42"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if st := wez.State(); st != monitor.StateWorking {
		t.Errorf("hook-capable record state = %s, want working", st)
	}
	if st := tmux.State(); st != monitor.StateIdle {
		t.Errorf("poll-only record state = %s, want untouched idle", st)
	}
}
