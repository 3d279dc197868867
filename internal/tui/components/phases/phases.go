// Package phases sequences tea.Models as named steps of a workflow. Only the
// current phase receives messages, and a phase is re-initialised every time
// it becomes current.
package phases

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// NextPhaseMsg advances to the following phase. It is ignored on the last one.
type NextPhaseMsg struct{}

// PrevPhaseMsg returns to the preceding phase. It is ignored on the first one.
type PrevPhaseMsg struct{}

// JumpMsg moves to the phase called Name. Unknown names are ignored.
type JumpMsg struct {
	Name string
}

func NextPhaseCmd() tea.Msg { return NextPhaseMsg{} }

func PrevPhaseCmd() tea.Msg { return PrevPhaseMsg{} }

func JumpCmd(name string) tea.Cmd {
	return func() tea.Msg { return JumpMsg{Name: name} }
}

// Phase is a named step.
type Phase struct {
	Name  string
	model tea.Model
}

func NewPhase(name string, model tea.Model) Phase {
	return Phase{Name: name, model: model}
}

// Model is the container. The zero Model is not usable; call New with at
// least one phase.
type Model struct {
	phases []Phase
	curr   int
}

func New(phases []Phase) Model {
	return Model{phases: phases}
}

func (m Model) Init() tea.Cmd {
	return m.phases[m.curr].model.Init()
}

func (m Model) Update(teaMsg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := teaMsg.(type) {
	case NextPhaseMsg:
		return m.goTo(m.curr + 1)
	case PrevPhaseMsg:
		return m.goTo(m.curr - 1)
	case JumpMsg:
		return m.goTo(m.indexOf(msg.Name))
	}

	ph := &m.phases[m.curr]
	var cmd tea.Cmd
	ph.model, cmd = ph.model.Update(teaMsg)

	return m, cmd
}

func (m Model) goTo(i int) (tea.Model, tea.Cmd) {
	if i < 0 || i >= len(m.phases) || i == m.curr {
		return m, nil
	}
	m.curr = i
	return m, m.Init()
}

func (m Model) indexOf(name string) int {
	for i, ph := range m.phases {
		if ph.Name == name {
			return i
		}
	}
	return -1
}

func (m Model) View() string {
	return m.phases[m.curr].model.View()
}

// CurrentPhaseName returns the name of the current phase.
func (m Model) CurrentPhaseName() string {
	return m.phases[m.curr].Name
}

// Position renders the current phase as "2/3".
func (m Model) Position() string {
	return fmt.Sprintf("%d/%d", m.curr+1, len(m.phases))
}
