// Package daemon runs the watcher process: the poll loop, the event
// ingest endpoint, and the read/control HTTP API for collaborators.
//
// Network exposure is localhost-only; the ingest endpoint is
// unauthenticated by design and must stay off non-loopback interfaces.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/agentwatch/agentwatch/internal/backend"
	"github.com/agentwatch/agentwatch/internal/config"
	"github.com/agentwatch/agentwatch/internal/eventbus"
	"github.com/agentwatch/agentwatch/internal/ingest"
	"github.com/agentwatch/agentwatch/internal/registry"
	"github.com/agentwatch/agentwatch/internal/scanner"
)

// Server wires the registry, scanner, ingest, and HTTP API together.
type Server struct {
	cfg      config.Config
	reg      *registry.Registry
	bus      *eventbus.Bus
	ingest   *ingest.Ingest
	scanner  *scanner.Scanner
	backends map[backend.Kind]backend.Backend

	httpSrv  *http.Server
	listener net.Listener
	lock     *flock.Flock
	lockPath string
	streamID string
	startAt  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLockPath overrides the single-instance lock file location.
func WithLockPath(path string) Option {
	return func(s *Server) { s.lockPath = path }
}

// NewServer assembles a Server from configuration and the enabled
// (already probed) backends.
func NewServer(cfg config.Config, enabled []backend.Backend, matcher registry.ProjectMatcher, opts ...Option) *Server {
	reg := registry.New(
		registry.WithProjectMatcher(matcher),
		registry.WithStableThreshold(cfg.StablePolls),
		registry.WithRetainDead(cfg.RetainDeadDuration()),
	)
	bus := eventbus.New()

	byKind := make(map[backend.Kind]backend.Backend, len(enabled))
	for _, b := range enabled {
		byKind[b.Kind()] = b
	}

	s := &Server{
		cfg:      cfg,
		reg:      reg,
		bus:      bus,
		ingest:   ingest.New(reg, bus),
		backends: byKind,
		streamID: uuid.NewString(),
		lockPath: defaultLockPath(),
	}
	s.scanner = scanner.New(enabled, reg, bus,
		scanner.WithInterval(cfg.PollIntervalDuration()),
		scanner.WithCaptureLines(cfg.CaptureLines),
	)
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.healthHandler)
	mux.HandleFunc("/v1/event", s.eventHandler)
	mux.HandleFunc("/v1/sessions", s.sessionsHandler)
	mux.HandleFunc("/v1/send", s.sendHandler)
	mux.HandleFunc("/v1/focus", s.focusHandler)
	mux.HandleFunc("/v1/watch", s.watchHandler)
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Registry exposes the live registry for in-process collaborators.
func (s *Server) Registry() *registry.Registry { return s.reg }

// Handler returns the HTTP handler (used by tests).
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

func defaultLockPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "agentwatch.lock")
	}
	return filepath.Join(home, ".local", "state", "agentwatch", "agentwatch.lock")
}

// Start acquires the single-instance lock, binds the listener, and runs
// the poll loop and HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	s.lock = flock.New(s.lockPath)
	held, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !held {
		return fmt.Errorf("another agentwatch instance holds %s", s.lockPath)
	}

	s.listener, err = net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		s.lock.Unlock() //nolint:errcheck
		return fmt.Errorf("listen on %s: %w", s.cfg.Listen, err)
	}

	s.startAt = time.Now()
	log.Printf("daemon: listening on %s (stream %s)", s.listener.Addr(), s.streamID)

	scanCtx, cancelScan := context.WithCancel(ctx)
	defer cancelScan()
	go s.scanner.Run(scanCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		s.shutdown() //nolint:errcheck
		return err
	}
}

// shutdown tears the daemon down, releasing backend-held resources and
// the instance lock.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpSrv.Shutdown(ctx)
	s.bus.Close()
	if s.lock != nil {
		s.lock.Unlock() //nolint:errcheck
	}
	log.Printf("daemon: stopped")
	return err
}

// --- JSON envelope helpers ---

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// writeBackendError maps the backend error taxonomy onto HTTP statuses.
func writeBackendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backend.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, backend.ErrUnsupported):
		writeError(w, http.StatusBadRequest, "unsupported", err.Error())
	case errors.Is(err, backend.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.Is(err, backend.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "backend_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
