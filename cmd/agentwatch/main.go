package main

import (
	"os"

	"github.com/agentwatch/agentwatch/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
