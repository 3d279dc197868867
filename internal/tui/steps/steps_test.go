package steps

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alkime/callcoach/internal/pipeline"
	"github.com/alkime/callcoach/internal/pipeline/pipelinetest"
	"github.com/alkime/callcoach/internal/workflow"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"
)

//nolint:gochecknoinits // recommend for CI by bubbletea folks
func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

const rubricJSON = `{
  "overall_score": 7,
  "criteria": {
    "rapport_building": {"score": 8.5, "feedback": ["Warm opening."]},
    "understanding_needs": {"score": 7, "feedback": ["Ask about budget."]},
    "product_knowledge": {"score": 7, "feedback": ["Clear feature walk-through."]},
    "objection_handling": {"score": 4.5, "feedback": ["Acknowledge before answering."]},
    "closing": {"score": 3, "feedback": ["Propose a concrete next step."]}
  },
  "missed_training_points": ["Confirm the decision maker."],
  "strengths_summary": "Good rapport.",
  "improvement_summary": "Handle objections."
}`

// outputChecker provides helpers for testing teatest output.
type outputChecker struct {
	intervl, timeout time.Duration
}

func defaultChecker() outputChecker {
	return outputChecker{
		intervl: 50 * time.Millisecond,
		timeout: 3 * time.Second,
	}
}

func (o outputChecker) check(t *testing.T, tm *teatest.TestModel, checkFunc func(buf []byte) bool) {
	t.Helper()
	teatest.WaitFor(t, tm.Output(), checkFunc,
		teatest.WithCheckInterval(o.intervl),
		teatest.WithDuration(o.timeout))
}

func (o outputChecker) checkString(t *testing.T, tm *teatest.TestModel, substr string) {
	t.Helper()
	o.check(t, tm, func(buf []byte) bool {
		return bytes.Contains(buf, []byte(substr))
	})
}

// checkStrings waits until every substring has been rendered.
func (o outputChecker) checkStrings(t *testing.T, tm *teatest.TestModel, substrs ...string) {
	t.Helper()
	o.check(t, tm, func(buf []byte) bool {
		for _, s := range substrs {
			if !bytes.Contains(buf, []byte(s)) {
				return false
			}
		}
		return true
	})
}

// harness wires a real recorder and controller to in-memory fakes.
type harness struct {
	store *pipelinetest.Store
	stt   *pipelinetest.STT
	llm   *pipelinetest.LLM
	src   *pipelinetest.Source
	rec   *pipeline.Recorder
	ctrl  *workflow.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store: pipelinetest.NewStore(),
		stt:   &pipelinetest.STT{Text: "Hello, this is a test call.", Confidence: 0.92},
		llm:   &pipelinetest.LLM{Text: rubricJSON},
		src:   &pipelinetest.Source{},
	}
	uploader := pipeline.NewUploader(h.store, h.store, nil)
	h.ctrl = workflow.New("rep-1", workflow.Stages{
		Uploader:    uploader,
		Transcriber: pipeline.NewTranscriber(h.store, h.store, h.store, h.stt, nil),
		Analyzer:    pipeline.NewAnalyzer(h.store, h.store, h.llm, nil),
	}, nil)
	h.rec = pipeline.NewRecorder(h.src, uploader, nil).WithTicker(pipelinetest.NewManualTicker().Ticker)

	t.Cleanup(h.rec.Discard)
	t.Cleanup(h.ctrl.Close)

	return h
}

// upload stores a small MP3 as the current asset.
func (h *harness) upload(t *testing.T) {
	t.Helper()

	data := make([]byte, 4096)
	copy(data, []byte{0xff, 0xfb, 0x90, 0x64})
	_, err := h.ctrl.Upload(context.Background(), pipeline.File{Name: "call.mp3", MimeType: "audio/mpeg", Data: data})
	require.NoError(t, err)
}

// waitRecording blocks until the recorder is capturing, then feeds it audio.
func (h *harness) waitRecording(t *testing.T) {
	t.Helper()

	require.Eventually(t, func() bool {
		return h.rec.State() == pipeline.StateRecording
	}, time.Second, 5*time.Millisecond)
	require.True(t, h.src.Feed(pipelinetest.Tone(16000)))
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}
