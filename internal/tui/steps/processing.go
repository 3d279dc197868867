package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alkime/callcoach/internal/tui/components/labeledspinner"
	"github.com/alkime/callcoach/internal/tui/components/phases"
	"github.com/alkime/callcoach/internal/tui/style"
	"github.com/alkime/callcoach/internal/workflow"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const eventBuffer = 64

type processingKeyMap struct {
	Run key.Binding
}

func defaultProcessingKeyMap() processingKeyMap {
	return processingKeyMap{
		Run: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "run next stage"),
		),
	}
}

type stateMsg struct {
	state     workflow.State
	fromEvent bool
}

type eventsClosedMsg struct{}

type stageDoneMsg struct{ err error }

type processingPhase struct {
	ctx         context.Context //nolint:containedctx // bounds stages started from the UI
	ctrl        Controller
	keys        processingKeyMap
	spinner     labeledspinner.Model
	bar         progress.Model
	events      <-chan workflow.Event
	unsubscribe func()
	state       workflow.State
	notice      string
}

// NewProcessing creates the phase that follows the current asset through
// transcription and analysis and advances once it is analyzed.
func NewProcessing(ctx context.Context, ctrl Controller) tea.Model {
	return &processingPhase{
		ctx:  ctx,
		ctrl: ctrl,
		keys: defaultProcessingKeyMap(),
		spinner: labeledspinner.New(
			spinner.Dot,
			"Processing call...",
			"",
			"",
		),
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		unsubscribe: func() {},
	}
}

func (p *processingPhase) Init() tea.Cmd {
	p.unsubscribe()
	p.events, p.unsubscribe = p.ctrl.Subscribe(eventBuffer)
	p.notice = ""

	// The snapshot is taken after subscribing so no change is missed.
	snapshot := func() tea.Msg {
		return stateMsg{state: p.ctrl.State()}
	}

	return tea.Batch(p.spinner.Init(), snapshot, p.waitForEvent())
}

func (p *processingPhase) waitForEvent() tea.Cmd {
	events := p.events
	if events == nil {
		return nil
	}

	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return stateMsg{state: ev.State, fromEvent: true}
	}
}

func (p *processingPhase) Update(teaMsg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := teaMsg.(type) {
	case stateMsg:
		return p, p.apply(msg.state, msg.fromEvent)

	case eventsClosedMsg:
		p.events = nil
		return p, nil

	case stageDoneMsg:
		if errors.Is(msg.err, workflow.ErrBusy) {
			p.notice = msg.err.Error()
		}
		return p, nil

	case tea.KeyMsg:
		if key.Matches(msg, p.keys.Run) {
			return p, p.runNext()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		p.spinner, cmd = p.spinner.Update(msg)
		return p, cmd
	}

	return p, nil
}

// apply records a new state. Only one event wait is outstanding at a time,
// so only event-sourced states re-arm it.
func (p *processingPhase) apply(state workflow.State, fromEvent bool) tea.Cmd {
	p.state = state

	if state.Complete() && !state.Busy() {
		p.unsubscribe()
		p.unsubscribe = func() {}
		p.events = nil
		return phases.NextPhaseCmd
	}

	if !fromEvent {
		return nil
	}
	return p.waitForEvent()
}

// runNext clears the error slot and runs the first stage the asset still
// needs.
func (p *processingPhase) runNext() tea.Cmd {
	state := p.ctrl.State()
	if state.Busy() || state.Asset == nil {
		return nil
	}

	p.ctrl.ClearError()
	p.notice = ""

	switch {
	case state.Transcript == nil:
		return func() tea.Msg {
			_, err := p.ctrl.Transcribe(p.ctx)
			return stageDoneMsg{err: err}
		}
	case !state.Analyzed():
		return func() tea.Msg {
			_, err := p.ctrl.Analyze(p.ctx)
			return stageDoneMsg{err: err}
		}
	default:
		return nil
	}
}

func (p *processingPhase) View() string {
	var sb strings.Builder

	state := p.state

	switch {
	case state.Error != "" && !state.Busy():
		sb.WriteString(style.Error.Render("✗ Processing failed"))
		sb.WriteString("\n\n")
		sb.WriteString(style.Subtitle.Render(state.Error))
		sb.WriteString("\n\n")
	case state.Busy():
		sb.WriteString(p.spinner.WithLabels(runningTitle(state), assetLabel(state)).ViewWithHelp(""))
		sb.WriteString("\n")
	default:
		sb.WriteString(style.Title.Render("Waiting"))
		sb.WriteString("\n\n")
		sb.WriteString(style.Subtitle.Render(assetLabel(state)))
		sb.WriteString("\n\n")
	}

	for _, row := range []struct {
		label  string
		status workflow.StageStatus
		done   bool
	}{
		{"Upload", state.Upload, state.Asset != nil},
		{"Transcription", state.Transcription, state.Transcript != nil},
		{"Analysis", state.Analysis, state.Analyzed()},
	} {
		sb.WriteString(style.Label.Render(fmt.Sprintf("%-14s", row.label)))
		sb.WriteString(p.bar.ViewAs(stagePercent(row.status, row.done)))
		sb.WriteString(" ")
		sb.WriteString(stageText(row.status, row.done))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if p.notice != "" {
		sb.WriteString(style.Warning.Render(p.notice))
		sb.WriteString("\n\n")
	}

	if !state.Busy() {
		sb.WriteString(renderKeyHelp(p.keys.Run, "\n"))
	}
	sb.WriteString(renderGlobalKeyHelp())

	return sb.String()
}

func runningTitle(state workflow.State) string {
	switch {
	case state.Upload.Running:
		return "Uploading..."
	case state.Transcription.Running:
		return "Transcribing call..."
	case state.Analysis.Running:
		return "Analyzing call..."
	default:
		return "Processing call..."
	}
}

func assetLabel(state workflow.State) string {
	if state.Asset == nil {
		return "No call selected"
	}
	return state.Asset.Filename
}

func stagePercent(status workflow.StageStatus, done bool) float64 {
	switch {
	case status.Running:
		return float64(status.Progress) / 100
	case done:
		return 1
	default:
		return 0
	}
}

func stageText(status workflow.StageStatus, done bool) string {
	switch {
	case status.Running:
		return style.Subtitle.Render(fmt.Sprintf("%d%%", status.Progress))
	case done:
		return style.Success.Render("✓ done")
	default:
		return style.Muted.Render("pending")
	}
}
