package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentwatch/agentwatch/internal/daemon"
	"github.com/agentwatch/agentwatch/internal/style"
)

var focusCmd = &cobra.Command{
	Use:   "focus <session-id>",
	Short: "Bring a session's terminal to the foreground",
	Args:  cobra.ExactArgs(1),
	RunE:  runFocus,
}

func init() {
	rootCmd.AddCommand(focusCmd)
}

func runFocus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := daemon.NewClient(resolveAddr(cfg))
	if err := client.Focus(args[0]); err != nil {
		return err
	}
	fmt.Println(style.Success("focused " + args[0]))
	return nil
}
