package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/pipeline"
	"github.com/alkime/callcoach/internal/tui/components/levelmeter"
	"github.com/alkime/callcoach/internal/tui/components/phases"
	"github.com/alkime/callcoach/internal/tui/style"
	"github.com/alkime/callcoach/pkg/uictl"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type recordingKeyMap struct {
	Toggle  key.Binding
	Finish  key.Binding
	Discard key.Binding
}

func defaultRecordingKeyMap() recordingKeyMap {
	return recordingKeyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "start/pause/resume"),
		),
		Finish: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "stop and save"),
		),
		Discard: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "discard"),
		),
	}
}

type recorderStartedMsg struct{ err error }

type recordingSavedMsg struct {
	asset *domain.AudioAsset
	err   error
}

type recordingPhase struct {
	ctx      context.Context //nolint:containedctx // bounds device and save commands
	keys     recordingKeyMap
	rec      Recorder
	ctrl     Controller
	spinner  spinner.Model
	meter    levelmeter.Model
	progress progress.Model
	saving   bool
	err      error
}

// NewRecording creates the recording phase. Saving a clip hands it to ctrl,
// which then chains transcription and analysis.
func NewRecording(ctx context.Context, rec Recorder, ctrl Controller) tea.Model {
	s := spinner.New()
	s.Spinner = spinner.Points

	return &recordingPhase{
		ctx:     ctx,
		keys:    defaultRecordingKeyMap(),
		rec:     rec,
		ctrl:    ctrl,
		spinner: s,
		meter:   levelmeter.New(rec.Levels(), 40),
		progress: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
	}
}

func (r *recordingPhase) Init() tea.Cmd {
	r.saving = false
	r.err = nil

	return tea.Batch(r.spinner.Tick, r.meter.Init())
}

func (r *recordingPhase) Update(teaMsg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := teaMsg.(type) {
	case tea.KeyMsg:
		return r, r.handleKey(msg)

	case recorderStartedMsg:
		r.err = msg.err
		return r, nil

	case recordingSavedMsg:
		r.saving = false
		if msg.err != nil {
			r.err = msg.err
			return r, nil
		}
		return r, phases.NextPhaseCmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		r.spinner, cmd = r.spinner.Update(msg)
		return r, cmd

	case levelmeter.TickMsg:
		var cmd tea.Cmd
		r.meter, cmd = r.meter.Update(msg)
		return r, cmd
	}

	return r, nil
}

func (r *recordingPhase) handleKey(msg tea.KeyMsg) tea.Cmd {
	if r.saving {
		return nil
	}

	state := r.rec.State()

	switch {
	case key.Matches(msg, r.keys.Toggle):
		switch state {
		case pipeline.StateIdle:
			r.err = nil
			return r.startCmd()
		case pipeline.StateRecording, pipeline.StatePaused:
			r.rec.PauseKnob().Toggle()
		case pipeline.StateStopped:
		}

	case key.Matches(msg, r.keys.Finish):
		if state == pipeline.StateIdle {
			return nil
		}
		r.saving = true
		r.err = nil
		return r.saveCmd()

	case key.Matches(msg, r.keys.Discard):
		r.rec.Discard()
		r.err = nil
	}

	return nil
}

func (r *recordingPhase) startCmd() tea.Cmd {
	return func() tea.Msg {
		return recorderStartedMsg{err: r.rec.Start(r.ctx)}
	}
}

// saveCmd stops a running capture, then saves the clip. A clip that failed
// to save stays stopped so enter retries.
func (r *recordingPhase) saveCmd() tea.Cmd {
	return func() tea.Msg {
		if _, err := r.rec.Stop(); err != nil {
			return recordingSavedMsg{err: err}
		}
		asset, err := r.ctrl.SaveRecording(r.ctx, r.rec)
		return recordingSavedMsg{asset: asset, err: err}
	}
}

func (r *recordingPhase) View() string {
	var sb strings.Builder

	state := r.rec.State()
	elapsed := style.Subtitle.Render(formatElapsed(r.rec.Elapsed()))

	switch {
	case r.saving:
		sb.WriteString(r.spinner.View())
		sb.WriteString(" ")
		sb.WriteString(style.Title.Render("Saving recording..."))
	case state == pipeline.StateRecording:
		sb.WriteString(r.spinner.View())
		sb.WriteString(" ")
		sb.WriteString(style.Title.Render("Recording"))
		sb.WriteString(" ")
		sb.WriteString(elapsed)
	case state == pipeline.StatePaused:
		sb.WriteString(style.Warning.Render("Paused"))
		sb.WriteString(" ")
		sb.WriteString(elapsed)
	case state == pipeline.StateStopped:
		sb.WriteString(style.Success.Render("Stopped"))
		sb.WriteString(" ")
		sb.WriteString(elapsed)
		sb.WriteString(" ")
		sb.WriteString(style.Muted.Render("(not saved yet)"))
	default:
		sb.WriteString(style.Title.Render("Ready to record"))
		sb.WriteString("\n")
		sb.WriteString(style.Subtitle.Render("Press space to start capturing the call."))
	}
	sb.WriteString("\n\n")

	if state == pipeline.StateRecording || state == pipeline.StatePaused {
		sb.WriteString(r.meter.View())
		sb.WriteString("\n\n")
	}

	size := r.rec.Size()
	current, maxValue := size.Cap()
	sb.WriteString(r.progress.ViewAs(uictl.Ratio(size)))
	sb.WriteString("\n")
	sb.WriteString(style.Subtitle.Render(formatBytes(current, maxValue)))
	sb.WriteString("\n\n")

	if r.err != nil {
		sb.WriteString(style.Error.Render("✗ " + r.err.Error()))
		sb.WriteString("\n\n")
	}

	sb.WriteString(renderKeyHelp(r.keys.Toggle, " "))
	sb.WriteString(renderKeyHelp(r.keys.Finish, " "))
	sb.WriteString(renderKeyHelp(r.keys.Discard, "\n"))
	sb.WriteString(renderGlobalKeyHelp())

	return sb.String()
}

func formatElapsed(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// formatBytes formats encoded size against the upload limit.
func formatBytes(current, maxBytes int64) string {
	currentMB := float64(current) / (1024 * 1024)
	maxMB := float64(maxBytes) / (1024 * 1024)

	if maxBytes == 0 {
		return fmt.Sprintf("%.1f MB / unlimited", currentMB)
	}

	percent := int(float64(current) / float64(maxBytes) * 100)

	return fmt.Sprintf("%.1f MB / %.1f MB (%d%%)", currentMB, maxMB, percent)
}
