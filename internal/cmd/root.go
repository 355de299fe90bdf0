// Package cmd implements the agentwatch CLI.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentwatch/agentwatch/internal/config"
)

// Persistent flags.
var (
	configPath string
	daemonAddr string
)

var rootCmd = &cobra.Command{
	Use:   "agentwatch",
	Short: "Watch and control terminal sessions running CLI assistants",
	Long: `agentwatch discovers terminal sessions running interactive CLI
assistants across tmux, wezterm, and Terminal.app, tracks each
session's turn state, and exposes a localhost API for dashboards and
automation.

Run the daemon with "agentwatch serve", then inspect sessions with
"agentwatch sessions" or drive them with "agentwatch send" and
"agentwatch focus".`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/agentwatch/config.toml)")
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "", "daemon address (default from config)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the config file honoring the --config flag.
func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// resolveAddr returns the daemon address: the --addr flag when set,
// otherwise the configured listen address.
func resolveAddr(cfg config.Config) string {
	if daemonAddr != "" {
		return daemonAddr
	}
	return cfg.Listen
}
