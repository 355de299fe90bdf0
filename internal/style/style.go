// Package style centralizes terminal styling for CLI output.
//
// Styles degrade to plain text when stdout is not a terminal or the
// terminal reports no color support.
package style

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/agentwatch/agentwatch/internal/monitor"
)

var enabled = term.IsTerminal(int(os.Stdout.Fd())) &&
	termenv.DefaultOutput().Profile != termenv.Ascii

var (
	boldStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

func render(s lipgloss.Style, text string) string {
	if !enabled {
		return text
	}
	return s.Render(text)
}

// Bold renders text in bold.
func Bold(text string) string { return render(boldStyle, text) }

// Dim renders text faint.
func Dim(text string) string { return render(dimStyle, text) }

// Success renders text in the success color.
func Success(text string) string { return render(successStyle, text) }

// Warning renders text in the warning color.
func Warning(text string) string { return render(warningStyle, text) }

// Error renders text in the error color.
func Error(text string) string { return render(errorStyle, text) }

// Info renders text in the info color.
func Info(text string) string { return render(infoStyle, text) }

// State renders a session state with its conventional color: working
// green, waiting yellow, dead red, the rest dim.
func State(s monitor.State) string {
	switch s {
	case monitor.StateWorking:
		return Success(string(s))
	case monitor.StateWaitingInput:
		return Warning(string(s))
	case monitor.StateDead:
		return Error(string(s))
	case monitor.StateIdle:
		return Info(string(s))
	default:
		return Dim(string(s))
	}
}
