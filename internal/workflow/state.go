package workflow

import (
	"github.com/alkime/callcoach/internal/analysis"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/pipeline"
)

// StageStatus is the running flag and last reported percent of a stage.
type StageStatus struct {
	Running  bool `json:"running"`
	Progress int  `json:"progress"`
}

// State is a snapshot of the current selection, the error slot and the
// status of every stage.
type State struct {
	Asset      *domain.AudioAsset     `json:"asset,omitempty"`
	Transcript *domain.Transcript     `json:"transcript,omitempty"`
	Result     *domain.AnalysisResult `json:"analysis,omitempty"`
	Error      string                 `json:"error,omitempty"`

	Upload        StageStatus `json:"upload"`
	Transcription StageStatus `json:"transcription"`
	Analysis      StageStatus `json:"analysis"`
}

// Busy reports whether any stage is running.
func (s State) Busy() bool {
	return s.Upload.Running || s.Transcription.Running || s.Analysis.Running
}

// Analyzed reports whether Result belongs to the current transcript.
func (s State) Analyzed() bool {
	return s.Transcript != nil && s.Result != nil && s.Result.TranscriptID == s.Transcript.ID
}

// Complete reports whether the current asset's current transcript has been
// analyzed.
func (s State) Complete() bool {
	return s.Asset != nil && s.Analyzed()
}

// Scorecard parses the current result when it is a sales rubric response for
// the current transcript. It returns nil otherwise or when it does not parse.
func (s State) Scorecard() *analysis.Scorecard {
	if !s.Analyzed() || s.Result.AnalysisKind != analysis.KindSalesCoaching {
		return nil
	}
	card, err := analysis.ParseScorecard(s.Result.RawResponseText)
	if err != nil {
		return nil
	}
	return card
}

func (s *State) status(stage pipeline.Stage) *StageStatus {
	switch stage {
	case pipeline.StageUpload:
		return &s.Upload
	case pipeline.StageTranscription:
		return &s.Transcription
	case pipeline.StageAnalysis:
		return &s.Analysis
	default:
		return &StageStatus{}
	}
}

// Event is published on every progress report and state change. Progress is
// nil for changes that are not tied to a stage, such as a new selection.
type Event struct {
	Progress *pipeline.Progress `json:"progress,omitempty"`
	State    State              `json:"state"`
}
