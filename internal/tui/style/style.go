// Package style defines lipgloss styles for the coaching TUI.
package style

import (
	"github.com/alkime/callcoach/internal/analysis"
	"github.com/charmbracelet/lipgloss"
)

// Names omit a "Style" suffix: style.Title reads better than
// style.TitleStyle.
var (
	// Title is used for phase titles and section headers.
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	Subtitle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	Success = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	Warning = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	// Viewport frames the scrollable report.
	Viewport = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	// Help is used for keyboard shortcut hints.
	Help = lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	Key = lipgloss.NewStyle().
		Foreground(lipgloss.Color("205")).
		Bold(true)

	// Progress colours the level meter.
	Progress = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63"))

	// Label is used for inline labels such as "Asset:".
	Label = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("255"))

	Muted = lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	// Bullet marks feedback items.
	Bullet = lipgloss.NewStyle().
		Foreground(lipgloss.Color("205"))
)

var grades = map[analysis.Grade]lipgloss.Style{
	analysis.GradeStrong: Success.Bold(true),
	analysis.GradeFair:   lipgloss.NewStyle().Foreground(lipgloss.Color("148")).Bold(true),
	analysis.GradeWeak:   Warning.Bold(true),
	analysis.GradePoor:   Error.Bold(true),
}

// Score returns the style for a 0-10 score's band.
func Score(score float64) lipgloss.Style {
	if s, ok := grades[analysis.Band(score)]; ok {
		return s
	}
	return Label
}
