package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alkime/callcoach/internal/analysis"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/history"
	"github.com/alkime/callcoach/internal/pipeline"
	"github.com/alkime/callcoach/internal/pipeline/pipelinetest"
	"github.com/alkime/callcoach/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rubricJSON = `{
  "overall_score": 7,
  "criteria": {
    "rapport_building": {"score": 8, "feedback": ["Warm opening."]},
    "understanding_needs": {"score": 7, "feedback": ["Ask about budget."]},
    "product_knowledge": {"score": 7, "feedback": ["Clear feature walk-through."]},
    "objection_handling": {"score": 6, "feedback": ["Acknowledge before answering."]},
    "closing": {"score": 7, "feedback": ["Propose a concrete next step."]}
  },
  "missed_training_points": [],
  "strengths_summary": "Good rapport.",
  "improvement_summary": "Handle objections."
}`

type harness struct {
	store *pipelinetest.Store
	stt   *pipelinetest.STT
	llm   *pipelinetest.LLM
	ctrl  *workflow.Controller
}

func newHarness(t *testing.T, owner string) *harness {
	t.Helper()

	h := &harness{
		store: pipelinetest.NewStore(),
		stt:   &pipelinetest.STT{Text: "Hello, this is a test call.", Confidence: 0.92},
		llm:   &pipelinetest.LLM{Text: rubricJSON},
	}
	h.ctrl = workflow.New(owner, workflow.Stages{
		Uploader:    pipeline.NewUploader(h.store, h.store, nil),
		Transcriber: pipeline.NewTranscriber(h.store, h.store, h.store, h.stt, nil),
		Analyzer:    pipeline.NewAnalyzer(h.store, h.store, h.llm, nil),
	}, nil)
	t.Cleanup(h.ctrl.Close)

	return h
}

func callMP3() pipeline.File {
	data := make([]byte, 5*1000*1000)
	copy(data, []byte{0xff, 0xfb, 0x90, 0x64})
	return pipeline.File{Name: "call.mp3", MimeType: "audio/mpeg", Data: data}
}

func TestController_UploadChainsToComplete(t *testing.T) {
	h := newHarness(t, "user-1")
	ctx := context.Background()

	asset, err := h.ctrl.Upload(ctx, callMP3())
	require.NoError(t, err)
	h.ctrl.Wait()

	state := h.ctrl.State()
	require.Empty(t, state.Error)
	assert.Equal(t, asset.ID, state.Asset.ID)

	require.NotNil(t, state.Transcript)
	assert.Equal(t, "Hello, this is a test call.", state.Transcript.Text)
	require.NotNil(t, state.Transcript.Confidence)
	assert.InDelta(t, 0.92, *state.Transcript.Confidence, 1e-9)
	require.NotNil(t, state.Transcript.WordCount)
	assert.Equal(t, 6, *state.Transcript.WordCount)

	require.NotNil(t, state.Result)
	assert.Equal(t, rubricJSON, state.Result.RawResponseText)
	assert.True(t, state.Complete())
	assert.False(t, state.Busy())

	card := state.Scorecard()
	require.NotNil(t, card)
	assert.InDelta(t, 7.0, card.OverallScore, 1e-9)

	entries, err := history.NewBrowser(h.store, nil).List(ctx, "user-1", history.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.StatusComplete, entries[0].Status)
	assert.Equal(t, "call.mp3", entries[0].Asset.Filename)
}

func TestController_AutoTranscribesOnce(t *testing.T) {
	h := newHarness(t, "user-1")
	h.stt.Gate = make(chan struct{})

	_, err := h.ctrl.Upload(context.Background(), callMP3())
	require.NoError(t, err)

	for range 10 {
		h.ctrl.Reconcile()
	}
	assert.True(t, h.ctrl.State().Transcription.Running)

	close(h.stt.Gate)
	h.ctrl.Wait()
	for range 3 {
		h.ctrl.Reconcile()
	}
	h.ctrl.Wait()

	assert.Equal(t, int32(1), h.stt.Calls.Load())
	assert.Equal(t, int32(1), h.llm.Calls.Load())
	assert.Equal(t, 1, h.store.Transcripts())
	assert.Equal(t, 1, h.store.Analyses())
}

func TestController_FailedTranscriptionIsNotRetried(t *testing.T) {
	h := newHarness(t, "user-1")
	h.stt.Err = errors.New("deepgram: status 503")

	asset, err := h.ctrl.Upload(context.Background(), callMP3())
	require.NoError(t, err)
	h.ctrl.Wait()

	state := h.ctrl.State()
	assert.Contains(t, state.Error, "status 503")
	assert.False(t, state.Transcription.Running)
	assert.Zero(t, state.Transcription.Progress)

	h.ctrl.Reconcile()
	h.ctrl.Wait()
	assert.Equal(t, int32(1), h.stt.Calls.Load())

	// Selecting the asset again resets the guard.
	h.stt.Err = nil
	require.NoError(t, h.ctrl.SelectAsset(asset))
	h.ctrl.Wait()

	assert.Equal(t, int32(2), h.stt.Calls.Load())
	assert.True(t, h.ctrl.State().Complete())
}

func TestController_FailedAnalysisKeepsTranscript(t *testing.T) {
	h := newHarness(t, "user-1")
	h.llm.Err = errors.New("quota exceeded")

	_, err := h.ctrl.Upload(context.Background(), callMP3())
	require.NoError(t, err)
	h.ctrl.Wait()

	state := h.ctrl.State()
	assert.NotNil(t, state.Transcript)
	assert.Nil(t, state.Result)
	assert.Contains(t, state.Error, "quota exceeded")

	h.ctrl.ClearError()
	assert.Empty(t, h.ctrl.State().Error)

	h.llm.Err = nil
	result, err := h.ctrl.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.ID, h.ctrl.State().Result.ID)
}

func TestController_BusyWhileStageRuns(t *testing.T) {
	h := newHarness(t, "user-1")
	h.stt.Gate = make(chan struct{})
	ctx := context.Background()

	_, err := h.ctrl.Upload(ctx, callMP3())
	require.NoError(t, err)
	before := h.ctrl.State()

	_, err = h.ctrl.Transcribe(ctx)
	assert.ErrorIs(t, err, workflow.ErrBusy)
	_, err = h.ctrl.Analyze(ctx)
	assert.ErrorIs(t, err, workflow.ErrBusy)
	_, err = h.ctrl.Upload(ctx, callMP3())
	assert.ErrorIs(t, err, workflow.ErrBusy)

	assert.Equal(t, before.Asset, h.ctrl.State().Asset)

	close(h.stt.Gate)
	h.ctrl.Wait()
}

func TestController_ManualMode(t *testing.T) {
	h := newHarness(t, "user-1")
	h.ctrl.WithAuto(false)
	ctx := context.Background()

	_, err := h.ctrl.Upload(ctx, callMP3())
	require.NoError(t, err)
	h.ctrl.Reconcile()
	h.ctrl.Wait()
	assert.Zero(t, h.stt.Calls.Load())

	_, err = h.ctrl.Analyze(ctx)
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = h.ctrl.Transcribe(ctx)
	require.NoError(t, err)
	h.ctrl.Wait()
	assert.Zero(t, h.llm.Calls.Load())

	summary, err := analysis.Preset("summary", "")
	require.NoError(t, err)
	result, err := h.ctrl.AnalyzeWith(ctx, summary)
	require.NoError(t, err)

	state := h.ctrl.State()
	assert.Equal(t, "summary", result.AnalysisKind)
	assert.Nil(t, state.Scorecard(), "free-form results have no scorecard")

	// A new transcript keeps the existing analysis.
	_, err = h.ctrl.Transcribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.ID, h.ctrl.State().Result.ID)
}

func TestController_DropsResultForPreviousSelection(t *testing.T) {
	h := newHarness(t, "user-1")
	h.ctrl.WithAuto(false)
	ctx := context.Background()

	first, err := h.ctrl.Upload(ctx, callMP3())
	require.NoError(t, err)
	second, err := h.ctrl.Upload(ctx, pipeline.File{Name: "b.wav", MimeType: "audio/wav", Data: []byte("RIFF")})
	require.NoError(t, err)
	require.NoError(t, h.ctrl.SelectAsset(first))

	h.stt.Gate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Transcribe(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return h.stt.Calls.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, h.ctrl.SelectAsset(second))
	close(h.stt.Gate)
	require.NoError(t, <-done)

	state := h.ctrl.State()
	assert.Equal(t, second.ID, state.Asset.ID)
	assert.Nil(t, state.Transcript)
	assert.False(t, state.Transcription.Running)
}

func TestController_SelectRecordChecksOwner(t *testing.T) {
	h := newHarness(t, "user-1")

	err := h.ctrl.SelectRecord(domain.HistoryRecord{Asset: domain.AudioAsset{ID: "x", OwnerID: "user-2"}})
	assert.True(t, domain.IsKind(err, domain.KindAuthorization))
	assert.Nil(t, h.ctrl.State().Asset)
}

func TestController_SelectRecordAnalyzesExistingTranscript(t *testing.T) {
	h := newHarness(t, "user-1")
	ctx := context.Background()

	asset, err := h.store.InsertAsset(ctx, &domain.AudioAsset{OwnerID: "user-1", Filename: "old.mp3"})
	require.NoError(t, err)
	transcript, err := h.store.InsertTranscript(ctx, &domain.Transcript{AudioAssetID: asset.ID, Text: "hi"})
	require.NoError(t, err)

	require.NoError(t, h.ctrl.SelectRecord(domain.HistoryRecord{Asset: *asset, Transcript: transcript}))
	h.ctrl.Wait()

	assert.Zero(t, h.stt.Calls.Load(), "an existing transcript is not redone")
	assert.Equal(t, int32(1), h.llm.Calls.Load())
	assert.True(t, h.ctrl.State().Complete())
}

func TestController_RetranscribeAnalyzesNewTranscript(t *testing.T) {
	h := newHarness(t, "user-1")
	ctx := context.Background()

	_, err := h.ctrl.Upload(ctx, callMP3())
	require.NoError(t, err)
	h.ctrl.Wait()

	first := h.ctrl.State()
	require.True(t, first.Complete())
	require.Equal(t, int32(1), h.llm.Calls.Load())

	h.stt.Text = "Second pass of the same call."
	again, err := h.ctrl.Transcribe(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first.Transcript.ID, again.ID)

	h.ctrl.Wait()
	h.ctrl.Reconcile()
	h.ctrl.Wait()

	state := h.ctrl.State()
	assert.Equal(t, int32(2), h.llm.Calls.Load())
	require.NotNil(t, state.Result)
	assert.Equal(t, again.ID, state.Result.TranscriptID)
	assert.True(t, state.Complete())

	entries, err := history.NewBrowser(h.store, nil).List(ctx, "user-1", history.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.StatusComplete, entries[0].Status)
}

func TestState_StaleResultIsNotComplete(t *testing.T) {
	state := workflow.State{
		Asset:      &domain.AudioAsset{ID: "asset-1"},
		Transcript: &domain.Transcript{ID: "tr-2"},
		Result: &domain.AnalysisResult{
			TranscriptID:    "tr-1",
			AnalysisKind:    analysis.KindSalesCoaching,
			RawResponseText: rubricJSON,
		},
	}

	assert.False(t, state.Analyzed())
	assert.False(t, state.Complete())
	assert.Nil(t, state.Scorecard())

	state.Result.TranscriptID = "tr-2"
	assert.True(t, state.Complete())
	assert.NotNil(t, state.Scorecard())
}

func TestController_Events(t *testing.T) {
	h := newHarness(t, "user-1")
	events, cancel := h.ctrl.Subscribe(256)
	defer cancel()

	_, err := h.ctrl.Upload(context.Background(), callMP3())
	require.NoError(t, err)
	h.ctrl.Wait()

	var (
		stages   []pipeline.Stage
		terminal int
		last     workflow.Event
	)
	for len(events) > 0 {
		ev := <-events
		last = ev
		if ev.Progress == nil {
			continue
		}
		if ev.Progress.Terminal {
			terminal++
			assert.NoError(t, ev.Progress.Err)
			assert.Zero(t, ev.Progress.Percent)
			stages = append(stages, ev.Progress.Stage)
		}
	}

	assert.Equal(t, []pipeline.Stage{
		pipeline.StageUpload, pipeline.StageTranscription, pipeline.StageAnalysis,
	}, stages)
	assert.Equal(t, 3, terminal)
	assert.True(t, last.State.Complete())
}

func TestController_SlowSubscriberSeesEveryTerminalEvent(t *testing.T) {
	h := newHarness(t, "user-1")
	events, cancel := h.ctrl.SubscribeWithTimeout(1, time.Second)

	terminals := make(chan []pipeline.Stage, 1)
	go func() {
		var stages []pipeline.Stage
		for ev := range events {
			time.Sleep(time.Millisecond)
			if ev.Progress != nil && ev.Progress.Terminal {
				stages = append(stages, ev.Progress.Stage)
			}
		}
		terminals <- stages
	}()

	_, err := h.ctrl.Upload(context.Background(), callMP3())
	require.NoError(t, err)
	h.ctrl.Wait()
	cancel()

	assert.Equal(t, []pipeline.Stage{
		pipeline.StageUpload, pipeline.StageTranscription, pipeline.StageAnalysis,
	}, <-terminals)
}

func TestController_CloseEndsSubscriptions(t *testing.T) {
	h := newHarness(t, "user-1")
	events, _ := h.ctrl.Subscribe(1)

	h.ctrl.Close()

	_, open := <-events
	assert.False(t, open)

	late, _ := h.ctrl.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}
