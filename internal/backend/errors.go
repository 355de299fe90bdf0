package backend

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the backend contract. Callers classify failures
// with errors.Is; none of these is fatal to the host process.
var (
	// ErrUnavailable means the backend's tool or bridge is absent.
	// The backend is disabled; other backends are unaffected.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrTimeout means a backend call exceeded its deadline.
	ErrTimeout = errors.New("backend call timed out")

	// ErrCaptureTimeout is a timeout on the capture path specifically:
	// the previous capture is retained as stale data and the next poll
	// retries. Matches ErrTimeout under errors.Is.
	ErrCaptureTimeout = fmt.Errorf("capture: %w", ErrTimeout)

	// ErrSessionNotFound means the native identity vanished between
	// discovery and action. Callers rescan before retrying.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnsupported means the backend lacks the requested capability.
	// Surfaced to the caller, never retried.
	ErrUnsupported = errors.New("operation not supported by backend")
)

// isNotFound reports whether err is a vanished-identity failure.
func isNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// IsUnavailable reports whether err means the backend's tool or bridge
// is absent; callers treat this as zero sessions from that backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// timeoutErr wraps a subprocess failure as ErrTimeout when the context
// deadline expired, otherwise returns the original error wrapped with
// the backend kind for context.
func timeoutErr(ctx context.Context, kind Kind, op string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s %s: %w", kind, op, ErrTimeout)
	}
	return fmt.Errorf("%s %s: %w", kind, op, err)
}

// asCaptureTimeout upgrades a generic timeout coming off the capture
// path to the capture-specific sentinel. Other errors pass through.
func asCaptureTimeout(err error) error {
	if errors.Is(err, ErrTimeout) && !errors.Is(err, ErrCaptureTimeout) {
		return fmt.Errorf("%w (%v)", ErrCaptureTimeout, err)
	}
	return err
}
