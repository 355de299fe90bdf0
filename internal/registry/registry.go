// Package registry provides the process-wide session registry.
//
// The registry maps session ids to live records across all backends.
// The map itself is guarded by one RWMutex, but every record carries its
// own lock: the hook fast path takes a short-lived exclusive write on a
// single record only and never blocks on the poll loop.
//
// Session identity is backend-scoped: id = kind + ":" + native id, never
// merged across backends even when two backends observe the same
// physical terminal. Dead records leave the active maps immediately and
// are retained as snapshots for a short window for UI continuity, so a
// reused native slot always produces a fresh record.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/agentwatch/agentwatch/internal/backend"
	"github.com/agentwatch/agentwatch/internal/monitor"
)

// ID is a stable cross-backend session identity.
type ID string

// MakeID builds a session id from a backend kind and native identity.
func MakeID(kind backend.Kind, nativeID string) ID {
	return ID(string(kind) + ":" + nativeID)
}

// ProjectMatcher associates a stable window/tab title with a project by
// the deployment's declared naming convention. Non-matching sessions are
// tracked as unmanaged.
type ProjectMatcher interface {
	Match(title string) (project string, ok bool)
}

// DefaultRetainDead is how long dead session snapshots stay visible in
// raw enumeration before purging.
const DefaultRetainDead = 30 * time.Second

// Registry is the process-wide concurrency-safe session map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[ID]*Record
	byNative map[backend.Kind]map[string]ID

	// retained holds snapshots of dead sessions until purgeAt.
	retained []retainedDead

	matcher         ProjectMatcher
	retainDead      time.Duration
	stableThreshold int
	deathThreshold  int
}

type retainedDead struct {
	snapshot Session
	purgeAt  time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithProjectMatcher sets the title → project association heuristic.
func WithProjectMatcher(m ProjectMatcher) Option {
	return func(r *Registry) { r.matcher = m }
}

// WithRetainDead sets the dead-snapshot retention window.
func WithRetainDead(d time.Duration) Option {
	return func(r *Registry) { r.retainDead = d }
}

// WithStableThreshold sets K for every session's detector.
func WithStableThreshold(k int) Option {
	return func(r *Registry) {
		if k > 0 {
			r.stableThreshold = k
		}
	}
}

// WithDeathThreshold sets the existence-miss debounce for every session.
func WithDeathThreshold(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.deathThreshold = n
		}
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions:        make(map[ID]*Record),
		byNative:        make(map[backend.Kind]map[string]ID),
		retainDead:      DefaultRetainDead,
		stableThreshold: monitor.DefaultStableThreshold,
		deathThreshold:  monitor.DefaultDeathThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert creates or refreshes the record for a discovered native
// session. Returns the record and whether it was newly created.
func (r *Registry) Upsert(kind backend.Kind, ns backend.NativeSession, caps backend.CapabilitySet) (*Record, bool) {
	id := MakeID(kind, ns.NativeID)
	now := time.Now()

	r.mu.Lock()
	rec, ok := r.sessions[id]
	if !ok {
		rec = newRecord(id, kind, ns, caps, now, r.stableThreshold, r.deathThreshold)
		r.sessions[id] = rec
		if r.byNative[kind] == nil {
			r.byNative[kind] = make(map[string]ID)
		}
		r.byNative[kind][ns.NativeID] = id

		// A reused native slot supersedes its dead predecessor: drop the
		// retained snapshot so enumeration never serves one id twice.
		kept := r.retained[:0]
		for _, rd := range r.retained {
			if rd.snapshot.ID != id {
				kept = append(kept, rd)
			}
		}
		r.retained = kept
	}
	r.mu.Unlock()

	rec.touch(ns, now, r.matcher)
	return rec, !ok
}

// Get returns a copied snapshot of one session.
func (r *Registry) Get(id ID) (Session, bool) {
	r.mu.RLock()
	rec, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	return rec.Snapshot(), true
}

// Lookup returns the live record for a session id.
func (r *Registry) Lookup(id ID) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[id]
	return rec, ok
}

// Records returns the live records, optionally filtered by kind.
// The slice is a copy; the records are shared.
func (r *Registry) Records(kind backend.Kind) []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := make([]*Record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		if kind == "" || rec.kind == kind {
			recs = append(recs, rec)
		}
	}
	return recs
}

// ResolveNative maps a backend-native pane identity to its live record.
// Hook notifications carry only the native id, so hook-capable sessions
// are preferred when the same native id exists under several kinds.
func (r *Registry) ResolveNative(nativeID string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fallback *Record
	for _, ids := range r.byNative {
		id, ok := ids[nativeID]
		if !ok {
			continue
		}
		rec := r.sessions[id]
		if rec == nil {
			continue
		}
		if rec.caps.Hook {
			return rec, true
		}
		if fallback == nil {
			fallback = rec
		}
	}
	return fallback, fallback != nil
}

// Retire removes a dead record from the active maps and retains its
// snapshot for the retention window.
func (r *Registry) Retire(rec *Record) {
	snap := rec.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, rec.id)
	if ids := r.byNative[rec.kind]; ids != nil {
		delete(ids, rec.nativeID)
	}
	if r.retainDead > 0 {
		r.retained = append(r.retained, retainedDead{
			snapshot: snap,
			purgeAt:  time.Now().Add(r.retainDead),
		})
	}
}

// Snapshot returns copied snapshots of every session, live and recently
// dead, sorted by id. Slow consumers hold copies, never the registry.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	live := make([]*Record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		live = append(live, rec)
	}
	now := time.Now()
	var dead []Session
	for _, rd := range r.retained {
		if now.Before(rd.purgeAt) {
			dead = append(dead, rd.snapshot)
		}
	}
	r.mu.RUnlock()

	out := make([]Session, 0, len(live)+len(dead))
	for _, rec := range live {
		out = append(out, rec.Snapshot())
	}
	out = append(out, dead...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SnapshotProject returns snapshots of live sessions associated with the
// given project. Unmanaged sessions never appear here.
func (r *Registry) SnapshotProject(project string) []Session {
	var out []Session
	for _, s := range r.Snapshot() {
		if s.Unmanaged || s.State == monitor.StateDead {
			continue
		}
		if s.Project == project {
			out = append(out, s)
		}
	}
	return out
}

// PurgeExpired drops retained dead snapshots past their window.
func (r *Registry) PurgeExpired() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.retained[:0]
	for _, rd := range r.retained {
		if now.Before(rd.purgeAt) {
			kept = append(kept, rd)
		}
	}
	r.retained = kept
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
