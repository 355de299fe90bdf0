package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---------------------------------------------------------------------------
// loading
// ---------------------------------------------------------------------------

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("listen = %s, want %s", cfg.Listen, DefaultListen)
	}
	if cfg.PollIntervalDuration() != DefaultPollInterval {
		t.Errorf("poll interval = %s, want %s", cfg.PollIntervalDuration(), DefaultPollInterval)
	}
	if cfg.StablePolls != DefaultStablePolls {
		t.Errorf("stable polls = %d, want %d", cfg.StablePolls, DefaultStablePolls)
	}
	if !cfg.Backends.Tmux || !cfg.Backends.WezTerm || !cfg.Backends.TerminalApp {
		t.Errorf("backends = %+v, want all enabled by default", cfg.Backends)
	}
}

func TestLoadOverridesLayerOverDefaults(t *testing.T) {
	path := writeConfig(t, `
listen = "127.0.0.1:9999"
poll_interval = "500ms"
stable_polls = 3

[backends]
terminalapp = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9999" {
		t.Errorf("listen = %s", cfg.Listen)
	}
	if cfg.PollIntervalDuration() != 500*time.Millisecond {
		t.Errorf("poll interval = %s, want 500ms", cfg.PollIntervalDuration())
	}
	if cfg.StablePolls != 3 {
		t.Errorf("stable polls = %d, want 3", cfg.StablePolls)
	}
	if cfg.Backends.TerminalApp {
		t.Error("terminalapp not disabled")
	}
	// Untouched fields keep their defaults.
	if cfg.CaptureLines != DefaultCaptureLines {
		t.Errorf("capture lines = %d, want default %d", cfg.CaptureLines, DefaultCaptureLines)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed duration", `poll_interval = "fast"`, "parsing"},
		{"zero interval", `poll_interval = "0s"`, "poll_interval"},
		{"negative capture lines", `capture_lines = -1`, "capture_lines"},
		{"zero stable polls", `stable_polls = 0`, "stable_polls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
