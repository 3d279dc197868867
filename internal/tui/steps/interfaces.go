package steps

import (
	"context"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/pipeline"
	"github.com/alkime/callcoach/internal/workflow"
	"github.com/alkime/callcoach/pkg/uictl"
)

// Recorder captures a call from the microphone. *pipeline.Recorder
// implements it.
type Recorder interface {
	workflow.ClipSaver

	Start(ctx context.Context) error
	Stop() (*pipeline.Clip, error)
	Discard()
	State() pipeline.RecorderState
	Elapsed() int
	Levels() uictl.Levels[int16]
	Size() uictl.CappedDial[int64]
	PauseKnob() uictl.Knob
}

// Controller drives the pipeline stages. *workflow.Controller implements it.
type Controller interface {
	SaveRecording(ctx context.Context, saver workflow.ClipSaver) (*domain.AudioAsset, error)
	Subscribe(buffer int) (<-chan workflow.Event, func())
	State() workflow.State
	Transcribe(ctx context.Context) (*domain.Transcript, error)
	Analyze(ctx context.Context) (*domain.AnalysisResult, error)
	ClearError()
}
