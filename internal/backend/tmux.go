package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// TmuxBackend drives a local tmux server through its command protocol.
// It is the only backend with the full capability set minus hooks:
// tmux panes can be listed, captured, written to, and focused.
type TmuxBackend struct {
	binaryPath  string
	callTimeout time.Duration
}

// TmuxOption configures a TmuxBackend.
type TmuxOption func(*TmuxBackend)

// WithTmuxBinary overrides the tmux binary path (used by tests).
func WithTmuxBinary(path string) TmuxOption {
	return func(b *TmuxBackend) { b.binaryPath = path }
}

// WithTmuxCallTimeout overrides the per-call timeout.
func WithTmuxCallTimeout(d time.Duration) TmuxOption {
	return func(b *TmuxBackend) { b.callTimeout = d }
}

// NewTmuxBackend creates a tmux-backed Backend.
func NewTmuxBackend(opts ...TmuxOption) *TmuxBackend {
	b := &TmuxBackend{
		binaryPath:  "tmux",
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *TmuxBackend) Kind() Kind { return KindTmux }

func (b *TmuxBackend) Capabilities() CapabilitySet {
	return CapabilitySet{Read: true, Write: true, Focus: true}
}

func (b *TmuxBackend) Available(ctx context.Context) bool {
	if _, err := exec.LookPath(b.binaryPath); err != nil {
		return false
	}
	// A missing server is fine: tmux is present, just no sessions yet.
	return true
}

// run executes a tmux command with the backend's call timeout.
func (b *TmuxBackend) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("tmux %s: %w", args[0], ErrTimeout)
		}
		msg := strings.TrimSpace(stderr.String())
		switch {
		case strings.Contains(msg, "no server running"),
			strings.Contains(msg, "error connecting to"):
			return "", fmt.Errorf("tmux %s: %s: %w", args[0], msg, ErrUnavailable)
		case strings.Contains(msg, "can't find pane"),
			strings.Contains(msg, "can't find session"),
			strings.Contains(msg, "can't find window"):
			return "", fmt.Errorf("tmux %s: %s: %w", args[0], msg, ErrSessionNotFound)
		}
		return "", fmt.Errorf("tmux %s: %w (stderr: %s)", args[0], err, msg)
	}
	return stdout.String(), nil
}

// paneListFormat enumerates every pane with tab-separated fields:
// pane id, session name, pane tty. The session name serves as the
// stable title; window and pane titles are rewritten by the monitored
// process and are useless for identity.
const paneListFormat = "#{pane_id}\t#{session_name}\t#{pane_tty}"

func (b *TmuxBackend) ListSessions(ctx context.Context) ([]NativeSession, error) {
	out, err := b.run(ctx, "list-panes", "-a", "-F", paneListFormat)
	if err != nil {
		return nil, err
	}
	return parseTmuxPanes(out), nil
}

// parseTmuxPanes parses list-panes output in paneListFormat.
func parseTmuxPanes(out string) []NativeSession {
	var sessions []NativeSession
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) < 2 {
			continue
		}
		s := NativeSession{NativeID: fields[0], Title: fields[1]}
		if len(fields) == 3 {
			s.TTY = fields[2]
		}
		sessions = append(sessions, s)
	}
	return sessions
}

func (b *TmuxBackend) CaptureOutput(ctx context.Context, nativeID string, maxLines int) (CaptureResult, error) {
	args := []string{"capture-pane", "-p", "-J", "-t", nativeID}
	if maxLines > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", maxLines))
	}
	out, err := b.run(ctx, args...)
	if err != nil {
		return CaptureResult{}, asCaptureTimeout(err)
	}

	// capture-pane -J can leave trailing spaces after a resize.
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}

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

func (b *TmuxBackend) SendInput(ctx context.Context, nativeID, text string, submit bool) error {
	// -l sends the text literally so tmux key names in the payload are
	// not interpreted.
	if _, err := b.run(ctx, "send-keys", "-t", nativeID, "-l", "--", text); err != nil {
		return err
	}
	if submit {
		if _, err := b.run(ctx, "send-keys", "-t", nativeID, "Enter"); err != nil {
			return err
		}
	}
	return nil
}

func (b *TmuxBackend) SessionExists(ctx context.Context, nativeID string) (bool, error) {
	_, err := b.run(ctx, "display-message", "-p", "-t", nativeID, "#{pane_id}")
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *TmuxBackend) Focus(ctx context.Context, nativeID string) error {
	// switch-client accepts a pane target and selects its session,
	// window, and pane for the attached client.
	_, err := b.run(ctx, "switch-client", "-t", nativeID)
	return err
}
