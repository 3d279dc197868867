// Package tui is the terminal front end: record a call, watch it move
// through the pipeline and read the coaching report.
package tui

import (
	"context"
	"strings"

	"github.com/alkime/callcoach/internal/tui/components/phases"
	"github.com/alkime/callcoach/internal/tui/steps"
	"github.com/alkime/callcoach/internal/tui/style"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Config configures the TUI.
type Config struct {
	// Context bounds device access and stage calls.
	Context context.Context //nolint:containedctx // passed through to phases
	// Cancel is called when the user quits.
	Cancel context.CancelFunc
	// Controller drives the pipeline for the signed-in user.
	Controller steps.Controller
	// Recorder enables the recording phase. Without it the TUI follows the
	// controller's current asset.
	Recorder steps.Recorder
}

type model struct {
	config Config
	keys   steps.KeyMap
	phases phases.Model
}

// New creates the TUI model.
func New(config Config) tea.Model {
	if config.Context == nil {
		config.Context = context.Background()
	}

	var list []phases.Phase
	if config.Recorder != nil {
		list = append(list, phases.NewPhase(steps.PhaseRecording,
			steps.NewRecording(config.Context, config.Recorder, config.Controller)))
	}
	list = append(list,
		phases.NewPhase(steps.PhaseProcessing, steps.NewProcessing(config.Context, config.Controller)),
		phases.NewPhase(steps.PhaseReport, steps.NewReport(config.Controller, config.Recorder != nil)),
	)

	return &model{
		config: config,
		keys:   steps.DefaultKeyMap(),
		phases: phases.New(list),
	}
}

func (m *model) Init() tea.Cmd {
	return m.phases.Init()
}

func (m *model) Update(teaMsg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := teaMsg.(tea.KeyMsg); ok {
		if key.Matches(km, m.keys.ForceQuit) || key.Matches(km, m.keys.Quit) {
			if m.config.Cancel != nil {
				m.config.Cancel()
			}

			return m, tea.Quit
		}
	}

	updatedPhases, cmd := m.phases.Update(teaMsg)
	m.phases = updatedPhases.(phases.Model) //nolint:forcetypeassert // phases.Model always returns phases.Model

	return m, cmd
}

func (m *model) View() string {
	var sb strings.Builder

	sb.WriteString(style.Subtitle.Render("Call Coach · " + m.phases.CurrentPhaseName() + " (" + m.phases.Position() + ")"))
	sb.WriteString("\n\n")
	sb.WriteString(m.phases.View())

	return sb.String()
}
