// Package steps implements the phases of the coaching TUI: recording a
// call, following it through the pipeline and reading the report.
package steps

import (
	"strings"

	"github.com/alkime/callcoach/internal/tui/style"
	"github.com/charmbracelet/bubbles/key"
)

// Phase names.
const (
	PhaseRecording  = "Recording"
	PhaseProcessing = "Processing"
	PhaseReport     = "Report"
)

// KeyMap holds the bindings available in every phase.
type KeyMap struct {
	Quit      key.Binding
	ForceQuit key.Binding
}

// DefaultKeyMap returns the global bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
	}
}

func renderKeyHelp(keyBinding key.Binding, suffix ...string) string {
	s := style.Help.Render("[") + style.Key.Render(keyBinding.Help().Key) +
		style.Help.Render("] ") +
		style.Help.Render(keyBinding.Help().Desc)

	s += strings.Join(suffix, "")

	return s
}

func renderGlobalKeyHelp() string {
	km := DefaultKeyMap()
	s := renderKeyHelp(km.Quit, " ")
	s += renderKeyHelp(km.ForceQuit, "\n")
	return s
}
