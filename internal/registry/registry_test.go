package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/agentwatch/agentwatch/internal/backend"
	"github.com/agentwatch/agentwatch/internal/monitor"
)

func rwCaps() backend.CapabilitySet {
	return backend.CapabilitySet{Read: true, Write: true, Focus: true}
}

func hookCaps() backend.CapabilitySet {
	return backend.CapabilitySet{Read: true, Write: true, Focus: true, Hook: true}
}

// prefixMatcher associates titles starting with a prefix to one project.
type prefixMatcher struct {
	prefix  string
	project string
}

func (m prefixMatcher) Match(title string) (string, bool) {
	if strings.HasPrefix(title, m.prefix) {
		return m.project, true
	}
	return "", false
}

// ---------------------------------------------------------------------------
// registry.go — identity
// ---------------------------------------------------------------------------

func TestMakeID(t *testing.T) {
	tests := []struct {
		kind   backend.Kind
		native string
		want   ID
	}{
		{backend.KindTmux, "%3", "tmux:%3"},
		{backend.KindWezTerm, "12", "wezterm:12"},
		{backend.KindTerminalApp, "/dev/ttys004", "terminalapp:/dev/ttys004"},
	}
	for _, tt := range tests {
		if got := MakeID(tt.kind, tt.native); got != tt.want {
			t.Errorf("MakeID(%s, %s) = %s, want %s", tt.kind, tt.native, got, tt.want)
		}
	}
}

// Repeated discovery of an unchanged physical session yields the same
// session id every time.
func TestUpsertIsStable(t *testing.T) {
	reg := New()
	ns := backend.NativeSession{NativeID: "%1", Title: "proj-main"}

	rec1, created := reg.Upsert(backend.KindTmux, ns, rwCaps())
	if !created {
		t.Fatal("first upsert did not create")
	}
	for i := 0; i < 3; i++ {
		rec, created := reg.Upsert(backend.KindTmux, ns, rwCaps())
		if created {
			t.Fatalf("upsert %d created a duplicate", i)
		}
		if rec.ID() != rec1.ID() {
			t.Fatalf("upsert %d returned id %s, want %s", i, rec.ID(), rec1.ID())
		}
	}
	if reg.Len() != 1 {
		t.Errorf("registry has %d sessions, want 1", reg.Len())
	}
}

// The same native id under two backends is two sessions: identity is
// never merged across backends.
func TestNoCrossBackendMerge(t *testing.T) {
	reg := New()
	ns := backend.NativeSession{NativeID: "7"}

	reg.Upsert(backend.KindTmux, ns, rwCaps())
	reg.Upsert(backend.KindWezTerm, ns, hookCaps())

	if reg.Len() != 2 {
		t.Fatalf("registry has %d sessions, want 2", reg.Len())
	}
	if _, ok := reg.Get(ID("tmux:7")); !ok {
		t.Error("tmux:7 missing")
	}
	if _, ok := reg.Get(ID("wezterm:7")); !ok {
		t.Error("wezterm:7 missing")
	}
}

// ---------------------------------------------------------------------------
// registry.go — native id resolution
// ---------------------------------------------------------------------------

func TestResolveNativePrefersHookCapable(t *testing.T) {
	reg := New()
	ns := backend.NativeSession{NativeID: "5"}
	reg.Upsert(backend.KindTmux, ns, rwCaps())
	wez, _ := reg.Upsert(backend.KindWezTerm, ns, hookCaps())

	rec, ok := reg.ResolveNative("5")
	if !ok {
		t.Fatal("resolution failed")
	}
	if rec.ID() != wez.ID() {
		t.Errorf("resolved %s, want hook-capable %s", rec.ID(), wez.ID())
	}
}

func TestResolveNativeUnknownPane(t *testing.T) {
	reg := New()
	if _, ok := reg.ResolveNative("nope"); ok {
		t.Error("resolved a pane that was never discovered")
	}
}

func TestResolveNativeSkipsRetired(t *testing.T) {
	reg := New()
	rec, _ := reg.Upsert(backend.KindWezTerm, backend.NativeSession{NativeID: "9"}, hookCaps())
	reg.Retire(rec)

	if _, ok := reg.ResolveNative("9"); ok {
		t.Error("resolved a retired session")
	}
}

// ---------------------------------------------------------------------------
// registry.go — project association
// ---------------------------------------------------------------------------

func TestProjectAssociation(t *testing.T) {
	reg := New(WithProjectMatcher(prefixMatcher{prefix: "acme", project: "acme"}))

	reg.Upsert(backend.KindTmux, backend.NativeSession{NativeID: "%1", Title: "acme-api"}, rwCaps())
	reg.Upsert(backend.KindTmux, backend.NativeSession{NativeID: "%2", Title: "scratch"}, rwCaps())

	snap := reg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("raw enumeration has %d sessions, want 2", len(snap))
	}

	var managed, unmanaged int
	for _, s := range snap {
		if s.Unmanaged {
			unmanaged++
		} else {
			managed++
			if s.Project != "acme" {
				t.Errorf("managed session project = %q, want acme", s.Project)
			}
		}
	}
	if managed != 1 || unmanaged != 1 {
		t.Errorf("managed=%d unmanaged=%d, want 1/1", managed, unmanaged)
	}

	// Unmanaged sessions never appear in project-scoped queries.
	scoped := reg.SnapshotProject("acme")
	if len(scoped) != 1 {
		t.Fatalf("project query returned %d sessions, want 1", len(scoped))
	}
	if scoped[0].ID != "tmux:%1" {
		t.Errorf("project query returned %s", scoped[0].ID)
	}
}

// ---------------------------------------------------------------------------
// registry.go — death and retention
// ---------------------------------------------------------------------------

func TestRetireRemovesFromActiveButRetainsSnapshot(t *testing.T) {
	reg := New(WithRetainDead(time.Minute))
	rec, _ := reg.Upsert(backend.KindTmux, backend.NativeSession{NativeID: "%1"}, rwCaps())

	now := time.Now()
	rec.ApplyCapture(backend.CaptureResult{Text: "x", CapturedAt: now})
	rec.ApplyExistence(false, now.Add(time.Second))
	tr, ok := rec.ApplyExistence(false, now.Add(2*time.Second))
	if !ok || tr.To != monitor.StateDead {
		t.Fatal("expected death after two misses")
	}
	reg.Retire(rec)

	if reg.Len() != 0 {
		t.Errorf("active registry has %d sessions after retire, want 0", reg.Len())
	}

	// Raw enumeration still shows the dead session for continuity.
	snap := reg.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d sessions, want 1 retained", len(snap))
	}
	if snap[0].State != monitor.StateDead {
		t.Errorf("retained state = %s, want dead", snap[0].State)
	}
}

func TestRetainedDeadExpires(t *testing.T) {
	reg := New(WithRetainDead(time.Millisecond))
	rec, _ := reg.Upsert(backend.KindTmux, backend.NativeSession{NativeID: "%1"}, rwCaps())
	reg.Retire(rec)

	time.Sleep(5 * time.Millisecond)
	reg.PurgeExpired()
	if snap := reg.Snapshot(); len(snap) != 0 {
		t.Errorf("snapshot has %d sessions after purge, want 0", len(snap))
	}
}

// A reused native slot after death is a new session with a fresh
// detector, not a resurrection.
func TestReusedNativeSlotIsFreshSession(t *testing.T) {
	reg := New(WithRetainDead(time.Minute))
	ns := backend.NativeSession{NativeID: "%1"}
	rec, _ := reg.Upsert(backend.KindTmux, ns, rwCaps())

	now := time.Now()
	rec.ApplyCapture(backend.CaptureResult{Text: "old life", CapturedAt: now})
	rec.ApplyExistence(false, now.Add(time.Second))
	rec.ApplyExistence(false, now.Add(2*time.Second))
	reg.Retire(rec)

	fresh, created := reg.Upsert(backend.KindTmux, ns, rwCaps())
	if !created {
		t.Fatal("rediscovery of a retired slot did not create a fresh record")
	}
	if fresh.State() != monitor.StateUnknown {
		t.Errorf("fresh record state = %s, want unknown", fresh.State())
	}
}

// A reused native slot inside the retention window supersedes the dead
// predecessor's snapshot: ids stay unique in raw enumeration. Common on
// Terminal.app, where a closed tab's tty is reassigned within seconds.
func TestSlotReuseKeepsIDsUnique(t *testing.T) {
	reg := New(WithRetainDead(time.Minute))
	ns := backend.NativeSession{NativeID: "/dev/ttys001"}
	caps := backend.CapabilitySet{Read: true, Focus: true}

	rec, _ := reg.Upsert(backend.KindTerminalApp, ns, caps)
	now := time.Now()
	rec.ApplyCapture(backend.CaptureResult{Text: "old life", CapturedAt: now})
	rec.ApplyExistence(false, now.Add(time.Second))
	rec.ApplyExistence(false, now.Add(2*time.Second))
	reg.Retire(rec)

	// The slot comes back while the dead snapshot is still retained.
	reg.Upsert(backend.KindTerminalApp, ns, caps)

	snap := reg.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("raw enumeration has %d sessions, want 1", len(snap))
	}
	if snap[0].State == monitor.StateDead {
		t.Errorf("enumeration kept the dead predecessor, state = %s", snap[0].State)
	}

	seen := make(map[ID]int)
	for _, s := range snap {
		seen[s.ID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("id %s appears %d times", id, n)
		}
	}
}

// ---------------------------------------------------------------------------
// record.go — snapshots and excerpts
// ---------------------------------------------------------------------------

func TestSnapshotIsCopy(t *testing.T) {
	reg := New()
	rec, _ := reg.Upsert(backend.KindTmux, backend.NativeSession{NativeID: "%1", Title: "t"}, rwCaps())
	rec.ApplyCapture(backend.CaptureResult{Text: "hello", CapturedAt: time.Now()})

	snap := rec.Snapshot()
	if snap.State != monitor.StateIdle {
		t.Fatalf("snapshot state = %s, want idle", snap.State)
	}

	// Mutating the record afterwards must not affect the taken copy.
	rec.ApplyCapture(backend.CaptureResult{Text: "changed", CapturedAt: time.Now().Add(time.Second)})
	if snap.State != monitor.StateIdle {
		t.Error("snapshot mutated after record changed")
	}
}

func TestLastOutputExcerptIsBounded(t *testing.T) {
	reg := New()
	rec, _ := reg.Upsert(backend.KindTmux, backend.NativeSession{NativeID: "%1"}, rwCaps())

	long := strings.Repeat("line\n", 100) + "tail"
	rec.ApplyCapture(backend.CaptureResult{Text: long, CapturedAt: time.Now()})

	snap := rec.Snapshot()
	lines := strings.Split(snap.LastOutput, "\n")
	if len(lines) > excerptLines {
		t.Errorf("excerpt has %d lines, want <= %d", len(lines), excerptLines)
	}
	if !strings.HasSuffix(snap.LastOutput, "tail") {
		t.Error("excerpt lost the final line")
	}
}

func TestMarkTransientClearsOnCapture(t *testing.T) {
	reg := New()
	rec, _ := reg.Upsert(backend.KindTmux, backend.NativeSession{NativeID: "%1"}, rwCaps())

	rec.MarkTransient()
	if !rec.Snapshot().TransientErr {
		t.Fatal("transient flag not set")
	}
	rec.ApplyCapture(backend.CaptureResult{Text: "ok", CapturedAt: time.Now()})
	if rec.Snapshot().TransientErr {
		t.Error("transient flag survived a successful capture")
	}
}
