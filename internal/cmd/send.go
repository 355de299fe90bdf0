package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentwatch/agentwatch/internal/daemon"
	"github.com/agentwatch/agentwatch/internal/style"
)

var sendNoSubmit bool

var sendCmd = &cobra.Command{
	Use:   "send <session-id> <text>...",
	Short: "Inject text into a session",
	Long: `Inject text into a session through its backend, submitting it with
Enter unless --no-submit is given.

Fails with "unsupported" on read-only backends (Terminal.app) and with
"session_not_found" if the session vanished since discovery — rescan
with "agentwatch sessions" and retry.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().BoolVar(&sendNoSubmit, "no-submit", false, "type the text without pressing Enter")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := daemon.NewClient(resolveAddr(cfg))
	text := strings.Join(args[1:], " ")
	if err := client.Send(args[0], text, !sendNoSubmit); err != nil {
		return err
	}
	fmt.Println(style.Success("sent to " + args[0]))
	return nil
}
