// Package backend provides the capability contract for terminal-emulator
// integrations and its implementations.
//
// Each backend wraps one terminal environment (a tmux server, the wezterm
// CLI, or Terminal.app automation) and reports the subset of operations it
// actually supports. Callers dispatch through the Backend interface and
// check Capabilities rather than type-switching on the concrete backend.
package backend

import (
	"context"
	"time"
)

// Kind identifies a backend implementation.
type Kind string

const (
	KindTmux        Kind = "tmux"
	KindWezTerm     Kind = "wezterm"
	KindTerminalApp Kind = "terminalapp"
)

// CapabilitySet reports which operations a backend supports.
// Read-only backends set Read (and usually Focus) but not Write;
// hook-capable backends additionally set Hook.
type CapabilitySet struct {
	Read  bool `json:"read"`
	Write bool `json:"write"`
	Focus bool `json:"focus"`
	Hook  bool `json:"hook"`
}

// NativeSession is one terminal surface as enumerated by a backend,
// identified by the backend's own handle (tmux pane id, wezterm pane id,
// Terminal.app tab id).
type NativeSession struct {
	// NativeID is the backend-scoped identity. It is stable for the
	// lifetime of the underlying surface but may be reused by the
	// terminal after the surface closes.
	NativeID string

	// Title is the stable window/tab title, used for project
	// association. The pane title is deliberately not used here: the
	// monitored process commonly overwrites it every turn.
	Title string

	// TTY is the controlling terminal device, when the backend knows it.
	TTY string
}

// CaptureResult is a bounded window of terminal output.
type CaptureResult struct {
	Text       string
	Truncated  bool
	CapturedAt time.Time
}

// DefaultCallTimeout bounds every backend subprocess call. A call that
// exceeds it is abandoned; the session is flagged transient-error, never
// declared dead on slowness alone.
const DefaultCallTimeout = 1 * time.Second

// Backend is the common contract over terminal environments.
//
// Implementations must be safe for concurrent use; backends whose
// underlying automation is not reentrant (Terminal.app) serialize
// internally.
type Backend interface {
	// Kind returns the backend's identity namespace.
	Kind() Kind

	// Capabilities returns the operations this backend supports.
	Capabilities() CapabilitySet

	// Available reports whether the underlying tool or bridge is
	// present. Probed once at startup; an unavailable backend
	// contributes zero sessions and is otherwise ignored.
	Available(ctx context.Context) bool

	// ListSessions enumerates the backend's terminal surfaces.
	// Returns ErrUnavailable if the underlying tool is absent.
	ListSessions(ctx context.Context) ([]NativeSession, error)

	// CaptureOutput returns up to maxLines of recent output for the
	// surface. Returns ErrCaptureTimeout if the call exceeds its
	// deadline; callers retain the previous capture as stale data.
	CaptureOutput(ctx context.Context, nativeID string, maxLines int) (CaptureResult, error)

	// SendInput injects text into the surface, optionally submitting it
	// with Enter. Returns ErrUnsupported on read-only backends and
	// ErrSessionNotFound if the surface vanished since discovery.
	SendInput(ctx context.Context, nativeID, text string, submit bool) error

	// SessionExists reports whether the surface still exists. Used for
	// dead-debouncing; a false result is only trusted after two
	// consecutive polls agree.
	SessionExists(ctx context.Context, nativeID string) (bool, error)

	// Focus brings the surface to the foreground, best-effort. Backends
	// without focus support return nil (no-op success).
	Focus(ctx context.Context, nativeID string) error
}
