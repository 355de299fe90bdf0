package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the build version, overridden at link time via
// -ldflags "-X .../internal/cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agentwatch version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("agentwatch " + Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
