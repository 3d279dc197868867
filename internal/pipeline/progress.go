package pipeline

// Stage names one step of the workflow.
type Stage string

const (
	StageUpload        Stage = "upload"
	StageTranscription Stage = "transcription"
	StageAnalysis      Stage = "analysis"
)

// Progress is one progress report. Terminal reports close a stage
// invocation; their Percent is always 0 and Err holds the failure, if any.
type Progress struct {
	Stage    Stage `json:"stage"`
	Percent  int   `json:"percent"`
	Terminal bool  `json:"terminal"`
	Err      error `json:"-"`
}

// Reporter receives progress. A nil Reporter discards reports.
type Reporter func(Progress)

// tracker reports milestones for one stage invocation and never goes
// backwards.
type tracker struct {
	stage  Stage
	report Reporter
	last   int
}

func newTracker(stage Stage, report Reporter) *tracker {
	return &tracker{stage: stage, report: report}
}

func (t *tracker) step(percent int) {
	if percent <= t.last {
		return
	}
	t.last = percent
	if t.report != nil {
		t.report(Progress{Stage: t.stage, Percent: percent})
	}
}
