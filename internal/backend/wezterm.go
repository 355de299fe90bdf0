package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// WezTermBackend is the hybrid backend: pane capture and input via the
// wezterm CLI, plus a keypress hook wired in the user's wezterm config
// that POSTs the pane id to the ingest endpoint on every turn start.
// The hook gives near-zero-latency working detection; the poll path
// remains the fallback when a hook notification is missed.
type WezTermBackend struct {
	binaryPath  string
	callTimeout time.Duration
}

// WezTermOption configures a WezTermBackend.
type WezTermOption func(*WezTermBackend)

// WithWezTermBinary overrides the wezterm binary path (used by tests).
func WithWezTermBinary(path string) WezTermOption {
	return func(b *WezTermBackend) { b.binaryPath = path }
}

// WithWezTermCallTimeout overrides the per-call timeout.
func WithWezTermCallTimeout(d time.Duration) WezTermOption {
	return func(b *WezTermBackend) { b.callTimeout = d }
}

// NewWezTermBackend creates a wezterm-backed Backend.
func NewWezTermBackend(opts ...WezTermOption) *WezTermBackend {
	b := &WezTermBackend{
		binaryPath:  "wezterm",
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *WezTermBackend) Kind() Kind { return KindWezTerm }

func (b *WezTermBackend) Capabilities() CapabilitySet {
	return CapabilitySet{Read: true, Write: true, Focus: true, Hook: true}
}

func (b *WezTermBackend) Available(ctx context.Context) bool {
	if _, err := exec.LookPath(b.binaryPath); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	// cli list fails when no mux server is reachable; that still counts
	// as unavailable since every other call would fail the same way.
	cmd := exec.CommandContext(ctx, b.binaryPath, "cli", "list", "--format", "json")
	return cmd.Run() == nil
}

// run executes a wezterm CLI command with the backend's call timeout.
func (b *WezTermBackend) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "no pane with id") ||
			strings.Contains(msg, "could not resolve pane") {
			return "", fmt.Errorf("wezterm %s: %s: %w", args[1], msg, ErrSessionNotFound)
		}
		return "", timeoutErr(ctx, KindWezTerm, strings.Join(args[:2], " "), err)
	}
	return stdout.String(), nil
}

// wezTermPane mirrors the fields of `wezterm cli list --format json`
// this backend reads.
type wezTermPane struct {
	PaneID   int    `json:"pane_id"`
	TabID    int    `json:"tab_id"`
	TabTitle string `json:"tab_title"`
	Title    string `json:"title"`
	TTYName  string `json:"tty_name"`
}

func (b *WezTermBackend) ListSessions(ctx context.Context) ([]NativeSession, error) {
	out, err := b.run(ctx, "cli", "list", "--format", "json")
	if err != nil {
		return nil, err
	}
	return parseWezTermPanes([]byte(out))
}

// parseWezTermPanes converts the CLI's JSON pane list to NativeSessions.
// The tab title is preferred over the pane title: the pane title tracks
// whatever the foreground process last set, the tab title is what the
// user (or session launcher) named the tab.
func parseWezTermPanes(data []byte) ([]NativeSession, error) {
	var panes []wezTermPane
	if err := json.Unmarshal(data, &panes); err != nil {
		return nil, fmt.Errorf("parse wezterm pane list: %w", err)
	}
	sessions := make([]NativeSession, 0, len(panes))
	for _, p := range panes {
		title := p.TabTitle
		if title == "" {
			title = p.Title
		}
		sessions = append(sessions, NativeSession{
			NativeID: strconv.Itoa(p.PaneID),
			Title:    title,
			TTY:      p.TTYName,
		})
	}
	return sessions, nil
}

func (b *WezTermBackend) CaptureOutput(ctx context.Context, nativeID string, maxLines int) (CaptureResult, error) {
	args := []string{"cli", "get-text", "--pane-id", nativeID}
	if maxLines > 0 {
		// Negative start-line counts back from the end of scrollback.
		args = append(args, "--start-line", strconv.Itoa(-maxLines))
	}
	out, err := b.run(ctx, args...)
	if err != nil {
		return CaptureResult{}, asCaptureTimeout(err)
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	truncated := false
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
		truncated = true
	}

	return CaptureResult{
		Text:       strings.Join(lines, "\n"),
		Truncated:  truncated,
		CapturedAt: time.Now(),
	}, nil
}

func (b *WezTermBackend) SendInput(ctx context.Context, nativeID, text string, submit bool) error {
	// --no-paste sends the payload as keystrokes rather than a bracketed
	// paste, which interactive assistants handle more predictably.
	if _, err := b.run(ctx, "cli", "send-text", "--pane-id", nativeID, "--no-paste", text); err != nil {
		return err
	}
	if submit {
		if _, err := b.run(ctx, "cli", "send-text", "--pane-id", nativeID, "--no-paste", "\n"); err != nil {
			return err
		}
	}
	return nil
}

func (b *WezTermBackend) SessionExists(ctx context.Context, nativeID string) (bool, error) {
	sessions, err := b.ListSessions(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range sessions {
		if s.NativeID == nativeID {
			return true, nil
		}
	}
	return false, nil
}

func (b *WezTermBackend) Focus(ctx context.Context, nativeID string) error {
	_, err := b.run(ctx, "cli", "activate-pane", "--pane-id", nativeID)
	return err
}
