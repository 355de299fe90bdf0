package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentwatch/agentwatch/internal/backend"
	"github.com/agentwatch/agentwatch/internal/style"
)

var peekLines int

var peekCmd = &cobra.Command{
	Use:   "peek <session-id>",
	Short: "Capture a session's recent output",
	Long: `Capture a bounded window of a session's recent output directly
from its backend, without going through the daemon. The session id has
the form <backend>:<native-id>, e.g. "tmux:%3" or "wezterm:12".`,
	Args: cobra.ExactArgs(1),
	RunE: runPeek,
}

func init() {
	peekCmd.Flags().IntVar(&peekLines, "lines", 40, "lines of output to capture")
	rootCmd.AddCommand(peekCmd)
}

func runPeek(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	kindName, nativeID, ok := strings.Cut(args[0], ":")
	if !ok {
		return fmt.Errorf("session id must be <backend>:<native-id>, got %q", args[0])
	}

	var b backend.Backend
	switch backend.Kind(kindName) {
	case backend.KindTmux:
		b = backend.NewTmuxBackend(backend.WithTmuxCallTimeout(cfg.CaptureTimeoutDuration()))
	case backend.KindWezTerm:
		b = backend.NewWezTermBackend(backend.WithWezTermCallTimeout(cfg.CaptureTimeoutDuration()))
	case backend.KindTerminalApp:
		b = backend.NewTerminalAppBackend(backend.WithTerminalAppCallTimeout(cfg.CaptureTimeoutDuration()))
	default:
		return fmt.Errorf("unknown backend %q", kindName)
	}

	ctx := cmd.Context()
	if !b.Available(ctx) {
		return fmt.Errorf("backend %s: %w", kindName, backend.ErrUnavailable)
	}

	res, err := b.CaptureOutput(ctx, nativeID, peekLines)
	if err != nil {
		return err
	}
	if res.Truncated {
		fmt.Println(style.Dim(fmt.Sprintf("(last %d lines)", peekLines)))
	}
	fmt.Println(res.Text)
	return nil
}
