package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentwatch/agentwatch/internal/backend"
	"github.com/agentwatch/agentwatch/internal/config"
	"github.com/agentwatch/agentwatch/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the watcher daemon",
	Long: `Run the watcher daemon: the poll loop, the hook ingest endpoint,
and the read/control HTTP API.

Backends are probed once at startup; a backend whose tool is absent is
disabled without affecting the others.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manifest, err := config.LoadManifest(cfg.ProjectsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enabled := backend.Probe(ctx, configuredBackends(cfg))
	srv := daemon.NewServer(cfg, enabled, manifest)
	return srv.Start(ctx)
}

// configuredBackends builds the backend set the config enables, before
// the availability probe.
func configuredBackends(cfg config.Config) []backend.Backend {
	var backends []backend.Backend
	if cfg.Backends.Tmux {
		backends = append(backends, backend.NewTmuxBackend(
			backend.WithTmuxCallTimeout(cfg.CaptureTimeoutDuration())))
	}
	if cfg.Backends.WezTerm {
		backends = append(backends, backend.NewWezTermBackend(
			backend.WithWezTermCallTimeout(cfg.CaptureTimeoutDuration())))
	}
	if cfg.Backends.TerminalApp {
		backends = append(backends, backend.NewTerminalAppBackend(
			backend.WithTerminalAppCallTimeout(cfg.CaptureTimeoutDuration())))
	}
	return backends
}
