package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// TerminalAppBackend observes macOS Terminal.app tabs through osascript.
// It is read + focus only: keystroke injection via System Events is too
// unreliable to offer as a contract, so SendInput returns ErrUnsupported.
//
// Apple Events automation is not reentrant; every call is serialized
// behind a single mutex.
type TerminalAppBackend struct {
	binaryPath  string
	callTimeout time.Duration

	// mu serializes all osascript calls.
	mu sync.Mutex
}

// TerminalAppOption configures a TerminalAppBackend.
type TerminalAppOption func(*TerminalAppBackend)

// WithOsascriptBinary overrides the osascript binary path (used by tests).
func WithOsascriptBinary(path string) TerminalAppOption {
	return func(b *TerminalAppBackend) { b.binaryPath = path }
}

// WithTerminalAppCallTimeout overrides the per-call timeout.
func WithTerminalAppCallTimeout(d time.Duration) TerminalAppOption {
	return func(b *TerminalAppBackend) { b.callTimeout = d }
}

// NewTerminalAppBackend creates a Terminal.app-backed Backend.
func NewTerminalAppBackend(opts ...TerminalAppOption) *TerminalAppBackend {
	b := &TerminalAppBackend{
		binaryPath:  "osascript",
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *TerminalAppBackend) Kind() Kind { return KindTerminalApp }

func (b *TerminalAppBackend) Capabilities() CapabilitySet {
	return CapabilitySet{Read: true, Focus: true}
}

func (b *TerminalAppBackend) Available(ctx context.Context) bool {
	_, err := exec.LookPath(b.binaryPath)
	return err == nil
}

// runScript executes an AppleScript under the serialization mutex.
func (b *TerminalAppBackend) runScript(ctx context.Context, script string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.binaryPath, "-e", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "tab not found") {
			return "", fmt.Errorf("terminalapp: %s: %w", msg, ErrSessionNotFound)
		}
		return "", timeoutErr(ctx, KindTerminalApp, "osascript", err)
	}
	return stdout.String(), nil
}

// listScript emits one line per tab: tty, a tab character, custom title.
// The custom title is the stable user-assigned name; the computed window
// title changes with the foreground process.
const listScript = `set out to ""
tell application "Terminal"
	repeat with w in windows
		repeat with t in tabs of w
			set out to out & (tty of t) & tab & (custom title of t) & linefeed
		end repeat
	end repeat
end tell
return out`

func (b *TerminalAppBackend) ListSessions(ctx context.Context) ([]NativeSession, error) {
	out, err := b.runScript(ctx, listScript)
	if err != nil {
		return nil, err
	}
	return parseTerminalAppTabs(out), nil
}

// parseTerminalAppTabs parses listScript output. The tty device doubles
// as the native id: unlike the window/tab index it survives tab
// reordering and is unique per live tab.
func parseTerminalAppTabs(out string) []NativeSession {
	var sessions []NativeSession
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		tty := strings.TrimSpace(fields[0])
		if tty == "" {
			continue
		}
		s := NativeSession{NativeID: tty, TTY: tty}
		if len(fields) == 2 {
			s.Title = strings.TrimSpace(fields[1])
		}
		sessions = append(sessions, s)
	}
	return sessions
}

// tabScript builds a script that locates the tab owning a tty and runs
// one statement against it.
func tabScript(tty, stmt string) string {
	return fmt.Sprintf(`tell application "Terminal"
	repeat with w in windows
		repeat with t in tabs of w
			if tty of t is equal to %q then
				%s
			end if
		end repeat
	end repeat
end tell
error "tab not found"`, tty, stmt)
}

func (b *TerminalAppBackend) CaptureOutput(ctx context.Context, nativeID string, maxLines int) (CaptureResult, error) {
	out, err := b.runScript(ctx, tabScript(nativeID, "return history of t"))
	if err != nil {
		return CaptureResult{}, asCaptureTimeout(err)
	}

	// history returns the full scrollback; bound it here.
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

func (b *TerminalAppBackend) SendInput(ctx context.Context, nativeID, text string, submit bool) error {
	return fmt.Errorf("terminalapp send: %w", ErrUnsupported)
}

func (b *TerminalAppBackend) SessionExists(ctx context.Context, nativeID string) (bool, error) {
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

func (b *TerminalAppBackend) Focus(ctx context.Context, nativeID string) error {
	stmt := `set selected of t to true
				set frontmost of w to true
				activate
				return "ok"`
	_, err := b.runScript(ctx, tabScript(nativeID, stmt))
	return err
}
