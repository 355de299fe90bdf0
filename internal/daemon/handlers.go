package daemon

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentwatch/agentwatch/internal/eventbus"
	"github.com/agentwatch/agentwatch/internal/ingest"
	"github.com/agentwatch/agentwatch/internal/registry"
)

type healthResponse struct {
	Status   string              `json:"status"`
	StreamID string              `json:"stream_id"`
	Uptime   string              `json:"uptime"`
	Sessions int                 `json:"sessions"`
	Ingest   ingest.Stats        `json:"ingest"`
	Bus      busMetrics          `json:"bus"`
	Backends map[string]capsJSON `json:"backends"`
}

type busMetrics struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

type capsJSON struct {
	Read  bool `json:"read"`
	Write bool `json:"write"`
	Focus bool `json:"focus"`
	Hook  bool `json:"hook"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method)
		return
	}
	m := s.bus.Metrics()
	backends := make(map[string]capsJSON, len(s.backends))
	for kind, b := range s.backends {
		c := b.Capabilities()
		backends[string(kind)] = capsJSON{Read: c.Read, Write: c.Write, Focus: c.Focus, Hook: c.Hook}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		StreamID: s.streamID,
		Uptime:   time.Since(s.startAt).Round(time.Second).String(),
		Sessions: s.reg.Len(),
		Ingest:   s.ingest.Stats(),
		Bus:      busMetrics{Published: m.EventsPublished, Delivered: m.EventsDelivered, Dropped: m.EventsDropped},
		Backends: backends,
	})
}

// eventHandler is the hook ingest endpoint. Emitters are fire-and-forget
// with short client timeouts, so the response is always fast and a
// resolution failure is still acknowledged: the drop counter is the
// observable, not the status code.
func (s *Server) eventHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method)
		return
	}
	var ev ingest.HookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid event payload")
		return
	}
	if ev.PaneID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "pane_id is required")
		return
	}
	ev.ReceivedAt = time.Now()

	resolved := true
	if err := s.ingest.Handle(ev); err != nil {
		resolved = false
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true, "resolved": resolved})
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method)
		return
	}
	var sessions []registry.Session
	if project := r.URL.Query().Get("project"); project != "" {
		sessions = s.reg.SnapshotProject(project)
	} else {
		sessions = s.reg.Snapshot()
	}
	if sessions == nil {
		sessions = []registry.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type sendRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Submit    bool   `json:"submit"`
}

func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method)
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid send payload")
		return
	}
	rec, b, ok := s.resolveControl(w, req.SessionID)
	if !ok {
		return
	}
	if err := b.SendInput(r.Context(), rec.NativeID(), req.Text, req.Submit); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type focusRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) focusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method)
		return
	}
	var req focusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid focus payload")
		return
	}
	rec, b, ok := s.resolveControl(w, req.SessionID)
	if !ok {
		return
	}
	if err := b.Focus(r.Context(), rec.NativeID()); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// resolveControl maps a session id to its live record and owning
// backend, writing the error response on failure.
func (s *Server) resolveControl(w http.ResponseWriter, id string) (*registry.Record, controlBackend, bool) {
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "session_id is required")
		return nil, nil, false
	}
	rec, ok := s.reg.Lookup(registry.ID(id))
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found", "no session "+id)
		return nil, nil, false
	}
	b, ok := s.backends[rec.Kind()]
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "backend_unavailable", "backend "+string(rec.Kind())+" is disabled")
		return nil, nil, false
	}
	return rec, b, true
}

// controlBackend is the subset of backend.Backend the control handlers
// dispatch through.
type controlBackend interface {
	SendInput(ctx context.Context, nativeID, text string, submit bool) error
	Focus(ctx context.Context, nativeID string) error
}

// --- watch stream ---

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Localhost-only service; collaborators connect from local tools.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	watchWriteTimeout = 5 * time.Second
	watchPingInterval = 30 * time.Second
)

type watchMessage struct {
	Type     string             `json:"type"`
	Sessions []registry.Session `json:"sessions,omitempty"`
	Event    *eventbus.Event    `json:"event,omitempty"`
}

// watchHandler streams bus events over a websocket, prefixed with a
// full snapshot so the client starts consistent.
func (s *Server) watchHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Subscribe before the snapshot so no transition between snapshot
	// and stream start is lost. A duplicate is fine, a gap is not.
	events, unsub := s.bus.Subscribe()
	defer unsub()

	snap := s.reg.Snapshot()
	conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout)) //nolint:errcheck
	if err := conn.WriteJSON(watchMessage{Type: "snapshot", Sessions: snap}); err != nil {
		return
	}

	// Reader goroutine: detect client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(watchPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout)) //nolint:errcheck
			if err := conn.WriteJSON(watchMessage{Type: "event", Event: &ev}); err != nil {
				log.Printf("daemon: watch write failed: %v", err)
				return
			}
		}
	}
}
