package steps

import (
	"testing"

	"github.com/alkime/callcoach/internal/analysis"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/tui/components/phases"
	"github.com/alkime/callcoach/internal/workflow"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func completedState(raw, kind string) workflow.State {
	return workflow.State{
		Asset: &domain.AudioAsset{Filename: "call.mp3"},
		Transcript: &domain.Transcript{
			ID:         "tr-1",
			Text:       "Hello, this is a test call.",
			Confidence: ptr(0.92),
		},
		Result: &domain.AnalysisResult{
			TranscriptID:          "tr-1",
			RawResponseText:       raw,
			AnalysisKind:          kind,
			ModelName:             "gemini-2.0-flash-exp",
			TokenCount:            ptr(321),
			ProcessingTimeSeconds: ptr(2.5),
		},
	}
}

func TestRenderReport_Scorecard(t *testing.T) {
	out := renderReport(completedState(rubricJSON, analysis.KindSalesCoaching), 80)

	for _, want := range []string{
		"Overall score: 7.0/10 (fair)",
		"Rapport Building & Introduction  8.5",
		"Warm opening.",
		"Objection Handling  4.5",
		"Closing & Call-to-Action  3.0",
		"Missed training points",
		"Confirm the decision maker.",
		"Strengths",
		"Good rapport.",
		"Areas to improve",
		"Handle objections.",
		"model gemini-2.0-flash-exp · 321 tokens · 2.5s",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRenderReport_FencedScorecard(t *testing.T) {
	raw := "Here is the evaluation:\n```json\n" + rubricJSON + "\n```"
	out := renderReport(completedState(raw, analysis.KindSalesCoaching), 80)

	assert.Contains(t, out, "Overall score: 7.0/10")
	assert.NotContains(t, out, "Here is the evaluation")
}

func TestRenderReport_FreeForm(t *testing.T) {
	out := renderReport(completedState("The rep was polite and clear.", "summary"), 80)

	assert.Contains(t, out, "Analysis: summary")
	assert.Contains(t, out, "The rep was polite and clear.")
	assert.NotContains(t, out, "Overall score")
}

func TestRenderReport_UnparsableRubricShowsRawText(t *testing.T) {
	out := renderReport(completedState("Sorry, I cannot score this call.", analysis.KindSalesCoaching), 80)

	assert.Contains(t, out, "Sorry, I cannot score this call.")
	assert.NotContains(t, out, "Overall score")
}

func TestRenderReport_Empty(t *testing.T) {
	assert.Contains(t, renderReport(workflow.State{}, 80), "No analysis yet.")
	assert.Contains(t, renderTranscript(workflow.State{}, 80), "No transcript yet.")
}

func TestRenderTranscript(t *testing.T) {
	out := renderTranscript(completedState(rubricJSON, analysis.KindSalesCoaching), 80)

	assert.Contains(t, out, "call.mp3")
	assert.Contains(t, out, "Confidence: 92%")
	assert.Contains(t, out, "Hello, this is a test call.")
}

func TestReportPhase_Toggle(t *testing.T) {
	h := newHarness(t)
	h.upload(t)
	h.ctrl.Wait()
	require.True(t, h.ctrl.State().Complete())

	tm := teatest.NewTestModel(t, NewReport(h.ctrl, false), teatest.WithInitialTermSize(100, 40))
	checker := defaultChecker()

	checker.checkStrings(t, tm, "=== Coaching Report ===", "Overall score: 7.0/10")

	tm.Send(keyRunes("t"))
	checker.checkStrings(t, tm, "=== Transcript ===", "Hello, this is a test call.")

	tm.Send(keyRunes("t"))
	checker.checkString(t, tm, "=== Coaching Report ===")

	require.NoError(t, tm.Quit())
}

func TestReportPhase_Another(t *testing.T) {
	h := newHarness(t)

	withAnother := NewReport(h.ctrl, true)
	withAnother.Init()
	_, cmd := withAnother.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	assert.Nil(t, cmd)
	assert.Contains(t, withAnother.View(), "record another call")

	_, cmd = withAnother.Update(keyRunes("n"))
	require.NotNil(t, cmd)
	assert.Equal(t, phases.JumpMsg{Name: PhaseRecording}, cmd())

	without := NewReport(h.ctrl, false)
	without.Init()
	without.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	assert.NotContains(t, without.View(), "record another call")

	_, cmd = without.Update(keyRunes("n"))
	assert.Nil(t, cmd)
}
