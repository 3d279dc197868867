package steps

import (
	"fmt"
	"strings"

	"github.com/alkime/callcoach/internal/analysis"
	"github.com/alkime/callcoach/internal/tui/components/phases"
	"github.com/alkime/callcoach/internal/tui/style"
	"github.com/alkime/callcoach/internal/workflow"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type reportKeyMap struct {
	Toggle  key.Binding
	Another key.Binding
}

func defaultReportKeyMap() reportKeyMap {
	return reportKeyMap{
		Toggle: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "report/transcript"),
		),
		Another: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "record another call"),
		),
	}
}

type reportPhase struct {
	ctrl           Controller
	keys           reportKeyMap
	viewport       viewport.Model
	allowAnother   bool
	showTranscript bool
	ready          bool
	width          int
	height         int
}

// NewReport creates the phase showing the current analysis. allowAnother
// enables jumping back to the recording phase.
func NewReport(ctrl Controller, allowAnother bool) tea.Model {
	return &reportPhase{
		ctrl:         ctrl,
		keys:         defaultReportKeyMap(),
		allowAnother: allowAnother,
	}
}

func (rp *reportPhase) Init() tea.Cmd {
	rp.showTranscript = false
	rp.ready = false

	return tea.WindowSize()
}

func (rp *reportPhase) Update(teaMsg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := teaMsg.(type) {
	case tea.WindowSizeMsg:
		rp.width = msg.Width
		rp.height = msg.Height
		rp.setupViewport()
		rp.ready = true

		return rp, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, rp.keys.Toggle):
			rp.showTranscript = !rp.showTranscript
			rp.setContent()
			return rp, nil
		case rp.allowAnother && key.Matches(msg, rp.keys.Another):
			return rp, phases.JumpCmd(PhaseRecording)
		}
	}

	if !rp.ready {
		return rp, nil
	}

	var cmd tea.Cmd
	rp.viewport, cmd = rp.viewport.Update(teaMsg)

	return rp, cmd
}

func (rp *reportPhase) View() string {
	if !rp.ready {
		return "Loading report..."
	}

	var sb strings.Builder

	if rp.showTranscript {
		sb.WriteString(style.Title.Render("=== Transcript ==="))
	} else {
		sb.WriteString(style.Title.Render("=== Coaching Report ==="))
	}
	sb.WriteString("\n\n")

	sb.WriteString(style.Viewport.Render(rp.viewport.View()))
	sb.WriteString("\n\n")

	sb.WriteString(renderKeyHelp(rp.keys.Toggle, " "))
	if rp.allowAnother {
		sb.WriteString(renderKeyHelp(rp.keys.Another, " "))
	}
	sb.WriteString("\n")
	sb.WriteString(renderGlobalKeyHelp())

	return sb.String()
}

func (rp *reportPhase) setupViewport() {
	const headerHeight, footerHeight = 3, 4

	viewportHeight := max(rp.height-headerHeight-footerHeight, 5)
	viewportWidth := max(rp.width-4, 10)

	rp.viewport = viewport.New(viewportWidth, viewportHeight)
	rp.setContent()
}

func (rp *reportPhase) setContent() {
	state := rp.ctrl.State()
	width := rp.viewport.Width

	if rp.showTranscript {
		rp.viewport.SetContent(renderTranscript(state, width))
	} else {
		rp.viewport.SetContent(renderReport(state, width))
	}
	rp.viewport.GotoTop()
}

// renderReport renders the current analysis: the scorecard for rubric
// results, the raw text for anything else.
func renderReport(state workflow.State, width int) string {
	if state.Result == nil {
		return style.Muted.Render("No analysis yet.")
	}

	var sb strings.Builder

	if card := state.Scorecard(); card != nil {
		renderScorecard(&sb, card, width)
	} else {
		sb.WriteString(style.Label.Render("Analysis: " + state.Result.AnalysisKind))
		sb.WriteString("\n\n")
		sb.WriteString(wrapText(state.Result.RawResponseText, width))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(style.Muted.Render(resultFooter(state)))

	return sb.String()
}

func renderScorecard(sb *strings.Builder, card *analysis.Scorecard, width int) {
	sb.WriteString(style.Label.Render("Overall score: "))
	sb.WriteString(style.Score(card.OverallScore).Render(fmt.Sprintf("%.1f/10", card.OverallScore)))
	sb.WriteString(style.Muted.Render(fmt.Sprintf(" (%s)", analysis.Band(card.OverallScore))))
	sb.WriteString("\n\n")

	for _, c := range card.Criteria.Ordered() {
		sb.WriteString(style.Label.Render(c.Label))
		sb.WriteString("  ")
		sb.WriteString(style.Score(c.Score).Render(fmt.Sprintf("%.1f", c.Score)))
		sb.WriteString("\n")
		writeBullets(sb, c.Feedback, width)
		sb.WriteString("\n")
	}

	if len(card.MissedTrainingPoints) > 0 {
		sb.WriteString(style.Title.Render("Missed training points"))
		sb.WriteString("\n")
		writeBullets(sb, card.MissedTrainingPoints, width)
		sb.WriteString("\n")
	}

	for _, section := range []struct{ title, text string }{
		{"Strengths", card.StrengthsSummary},
		{"Areas to improve", card.ImprovementSummary},
	} {
		if section.text == "" {
			continue
		}
		sb.WriteString(style.Title.Render(section.title))
		sb.WriteString("\n")
		sb.WriteString(wrapText(section.text, width))
		sb.WriteString("\n\n")
	}
}

func writeBullets(sb *strings.Builder, items []string, width int) {
	for _, item := range items {
		sb.WriteString(style.Bullet.Render("  • "))
		sb.WriteString(wrapText(item, max(width-4, 1)))
		sb.WriteString("\n")
	}
}

func resultFooter(state workflow.State) string {
	parts := []string{"model " + state.Result.ModelName}
	if state.Result.TokenCount != nil {
		parts = append(parts, fmt.Sprintf("%d tokens", *state.Result.TokenCount))
	}
	if state.Result.ProcessingTimeSeconds != nil {
		parts = append(parts, fmt.Sprintf("%.1fs", *state.Result.ProcessingTimeSeconds))
	}
	return strings.Join(parts, " · ")
}

func renderTranscript(state workflow.State, width int) string {
	if state.Transcript == nil {
		return style.Muted.Render("No transcript yet.")
	}

	var sb strings.Builder

	if state.Asset != nil {
		sb.WriteString(style.Label.Render("File: "))
		sb.WriteString(style.Muted.Render(state.Asset.Filename))
		sb.WriteString("\n")
	}
	if c := state.Transcript.Confidence; c != nil {
		sb.WriteString(style.Label.Render("Confidence: "))
		sb.WriteString(style.Muted.Render(fmt.Sprintf("%.0f%%", *c*100)))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(wrapText(state.Transcript.Text, width))

	return sb.String()
}

func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}

	return lipgloss.NewStyle().Width(width).Render(text)
}
