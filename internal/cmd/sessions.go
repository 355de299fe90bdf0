package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentwatch/agentwatch/internal/daemon"
	"github.com/agentwatch/agentwatch/internal/style"
)

var (
	sessionsJSON    bool
	sessionsProject string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List watched sessions",
	Long: `List the daemon's current session snapshot.

Without --project this is the raw enumeration: every session on every
backend, including unmanaged ones and recently dead ones. With
--project, only live sessions associated with that project appear.`,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "output JSON")
	sessionsCmd.Flags().StringVar(&sessionsProject, "project", "", "limit to one project")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := daemon.NewClient(resolveAddr(cfg))
	sessions, err := client.Sessions(sessionsProject)
	if err != nil {
		return err
	}

	if sessionsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println(style.Dim("no sessions"))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, style.Bold("ID\tSTATE\tPROJECT\tTITLE\tLAST SEEN"))
	for _, s := range sessions {
		project := s.Project
		if s.Unmanaged {
			project = style.Dim("(unmanaged)")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, style.State(s.State), project, s.Title, humanAge(s.LastSeenAt))
	}
	return w.Flush()
}

// humanAge formats a timestamp as a coarse age for table output.
func humanAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
