// Package config loads the daemon configuration (TOML) and the project
// naming manifest (YAML).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when a field is absent from the config file.
const (
	DefaultListen         = "127.0.0.1:7600"
	DefaultPollInterval   = 2 * time.Second
	DefaultCaptureLines   = 120
	DefaultCaptureTimeout = 1 * time.Second
	DefaultStablePolls    = 2
	DefaultRetainDead     = 30 * time.Second
)

// Backends toggles individual backend integrations. All default to
// enabled; the startup probe still disables any whose tool is absent.
type Backends struct {
	Tmux        bool `toml:"tmux"`
	WezTerm     bool `toml:"wezterm"`
	TerminalApp bool `toml:"terminalapp"`
}

// Config is the daemon configuration.
type Config struct {
	// Listen is the HTTP bind address. Localhost only: the ingest
	// endpoint is unauthenticated by design.
	Listen string `toml:"listen"`

	PollInterval   duration `toml:"poll_interval"`
	CaptureLines   int      `toml:"capture_lines"`
	CaptureTimeout duration `toml:"capture_timeout"`

	// StablePolls is K: consecutive unchanged captures before a working
	// session is considered waiting for input.
	StablePolls int `toml:"stable_polls"`

	// RetainDead is how long dead sessions stay visible in raw
	// enumeration.
	RetainDead duration `toml:"retain_dead"`

	// ProjectsFile points at the YAML project naming manifest.
	ProjectsFile string `toml:"projects_file"`

	Backends Backends `toml:"backends"`
}

// duration lets TOML carry Go duration strings ("2s", "500ms").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:         DefaultListen,
		PollInterval:   duration{DefaultPollInterval},
		CaptureLines:   DefaultCaptureLines,
		CaptureTimeout: duration{DefaultCaptureTimeout},
		StablePolls:    DefaultStablePolls,
		RetainDead:     duration{DefaultRetainDead},
		Backends:       Backends{Tmux: true, WezTerm: true, TerminalApp: true},
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "agentwatch", "config.toml")
}

// Load reads a TOML config file, layering it over the defaults. A
// missing file is not an error: the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.CaptureLines <= 0 {
		return fmt.Errorf("capture_lines must be positive")
	}
	if c.StablePolls <= 0 {
		return fmt.Errorf("stable_polls must be positive")
	}
	return nil
}

// PollIntervalDuration returns the poll interval as a time.Duration.
func (c *Config) PollIntervalDuration() time.Duration { return c.PollInterval.Duration }

// CaptureTimeoutDuration returns the capture timeout as a time.Duration.
func (c *Config) CaptureTimeoutDuration() time.Duration { return c.CaptureTimeout.Duration }

// RetainDeadDuration returns the dead-retention window as a time.Duration.
func (c *Config) RetainDeadDuration() time.Duration { return c.RetainDead.Duration }
