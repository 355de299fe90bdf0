// Package scanner runs the periodic poll loop that merges every
// backend's session list into the registry and feeds captures to the
// turn detector.
package scanner

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/agentwatch/agentwatch/internal/backend"
	"github.com/agentwatch/agentwatch/internal/eventbus"
	"github.com/agentwatch/agentwatch/internal/registry"
)

// Defaults for the poll loop.
const (
	DefaultInterval     = 2 * time.Second
	DefaultCaptureLines = 120

	// defaultParallelism bounds concurrent backend scans within one
	// cycle. Calls to a single backend stay sequential; backends that
	// are not reentrant additionally serialize internally.
	defaultParallelism = 4
)

// Scanner polls all enabled backends on a fixed cadence. There is one
// scanner per process.
type Scanner struct {
	backends     []backend.Backend
	reg          *registry.Registry
	bus          *eventbus.Bus
	interval     time.Duration
	captureLines int
	parallelism  int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithCaptureLines sets the bounded capture window.
func WithCaptureLines(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.captureLines = n
		}
	}
}

// WithParallelism bounds concurrent backend scans per cycle.
func WithParallelism(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// New creates a Scanner over the enabled backends.
func New(backends []backend.Backend, reg *registry.Registry, bus *eventbus.Bus, opts ...Option) *Scanner {
	s := &Scanner{
		backends:     backends,
		reg:          reg,
		bus:          bus,
		interval:     DefaultInterval,
		captureLines: DefaultCaptureLines,
		parallelism:  defaultParallelism,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls until the context is cancelled. The first cycle runs
// immediately so the registry is populated before the daemon serves
// reads.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle runs one poll pass: every backend is scanned (bounded
// parallelism across distinct backends), results are diffed against the
// registry, live sessions are captured, and missing sessions are
// existence-checked toward the death debounce.
func (s *Scanner) Cycle(ctx context.Context) {
	sem := make(chan struct{}, s.parallelism)
	var wg sync.WaitGroup

	for _, b := range s.backends {
		wg.Add(1)
		sem <- struct{}{}
		go func(b backend.Backend) {
			defer wg.Done()
			defer func() { <-sem }()
			s.scanBackend(ctx, b)
		}(b)
	}
	wg.Wait()

	s.reg.PurgeExpired()
}

// scanBackend handles one backend within a cycle. All failures degrade
// this backend or a single session; nothing here is fatal.
func (s *Scanner) scanBackend(ctx context.Context, b backend.Backend) {
	listed, err := b.ListSessions(ctx)
	if err != nil {
		if backend.IsUnavailable(err) {
			// Tool or bridge gone: contributes zero sessions this cycle.
			log.Printf("scanner: %s unavailable: %v", b.Kind(), err)
		} else {
			log.Printf("scanner: %s list failed: %v", b.Kind(), err)
		}
		// Listing failed, so nothing was "missing" either; existing
		// sessions keep their state until a cycle produces evidence.
		return
	}

	caps := b.Capabilities()
	seen := make(map[string]bool, len(listed))

	for _, ns := range listed {
		seen[ns.NativeID] = true
		rec, created := s.reg.Upsert(b.Kind(), ns, caps)
		if created {
			s.bus.PublishDiscovered(rec.ID())
		}
		if caps.Read {
			s.capture(ctx, b, rec)
		}
	}

	// Sessions the backend no longer lists: existence-check toward the
	// death debounce. Listing is authoritative enough to count a miss,
	// but death still needs two consecutive misses.
	for _, rec := range s.reg.Records(b.Kind()) {
		if seen[rec.NativeID()] {
			continue
		}
		s.checkMissing(ctx, b, rec)
	}
}

// capture captures one session's output and feeds the detector.
func (s *Scanner) capture(ctx context.Context, b backend.Backend, rec *registry.Record) {
	res, err := b.CaptureOutput(ctx, rec.NativeID(), s.captureLines)
	if err != nil {
		// Timeout or race: keep the last successful capture as stale
		// data and flag the session. The next cycle self-heals.
		rec.MarkTransient()
		log.Printf("scanner: capture %s: %v", rec.ID(), err)
		return
	}
	if tr, ok := rec.ApplyCapture(res); ok {
		s.bus.PublishTransition(rec.ID(), tr)
	}
}

// checkMissing runs the existence check for a session that vanished
// from its backend's listing and retires it once death is confirmed.
func (s *Scanner) checkMissing(ctx context.Context, b backend.Backend, rec *registry.Record) {
	exists, err := b.SessionExists(ctx, rec.NativeID())
	if err != nil {
		// A failed check is not a miss: death requires an explicit
		// negative, not an error.
		rec.MarkTransient()
		log.Printf("scanner: existence check %s: %v", rec.ID(), err)
		return
	}
	tr, ok := rec.ApplyExistence(exists, time.Now())
	if !ok {
		return
	}
	s.reg.Retire(rec)
	s.bus.PublishTransition(rec.ID(), tr)
	log.Printf("scanner: session %s dead after debounce", rec.ID())
}
