package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/alkime/callcoach/internal/analysis"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/llm"
)

// Analyzer asks the language model about a Transcript and stores the reply.
type Analyzer struct {
	transcripts TranscriptRepository
	analyses    AnalysisRepository
	provider    llm.Provider
	logger      *slog.Logger

	now func() time.Time
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(
	transcripts TranscriptRepository,
	analyses AnalysisRepository,
	provider llm.Provider,
	logger *slog.Logger,
) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		transcripts: transcripts,
		analyses:    analyses,
		provider:    provider,
		logger:      logger,
		now:         time.Now,
	}
}

// Analyze runs strategy against the transcript. The raw response is stored
// verbatim whether or not it can be parsed.
func (a *Analyzer) Analyze(
	ctx context.Context,
	ownerID, transcriptID string,
	strategy analysis.Strategy,
	report Reporter,
) (*domain.AnalysisResult, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if strategy == nil {
		return nil, domain.ValidationError("analysis strategy is required")
	}

	progress := newTracker(StageAnalysis, report)
	progress.step(10)

	tr, owner, err := a.transcripts.GetTranscript(ctx, transcriptID)
	if err != nil {
		return nil, asKind(err, domain.PersistenceError, "Transcription not found")
	}
	if owner != ownerID {
		return nil, domain.AuthorizationError("Unauthorized access to transcription")
	}

	progress.step(30)

	start := a.now()

	progress.step(50)

	resp, err := a.provider.Generate(ctx, llm.Request{
		Prompt:     strategy.Prompt(tr.Text),
		Generation: llm.DefaultGeneration(),
		Safety:     llm.DefaultSafety(),
	})
	if err != nil {
		return nil, asKind(err, domain.ProviderError, "Analysis failed")
	}

	elapsed := a.now().Sub(start).Seconds()

	progress.step(80)

	if strings.TrimSpace(resp.Text) == "" {
		return nil, domain.EmptyResultError("No analysis response received")
	}

	progress.step(90)

	result, err := a.analyses.InsertAnalysis(ctx, &domain.AnalysisResult{
		TranscriptID:          tr.ID,
		RubricPrompt:          strategy.Instructions(),
		RawResponseText:       resp.Text,
		ModelName:             resp.Model,
		TokenCount:            resp.TokenCount,
		ProcessingTimeSeconds: &elapsed,
		AnalysisKind:          strategy.Kind(),
	})
	if err != nil {
		return nil, asKind(err, domain.PersistenceError, "Failed to save analysis")
	}

	progress.step(100)

	a.logger.Info("analysis stored",
		"transcript", tr.ID,
		"analysis", result.ID,
		"kind", result.AnalysisKind,
		"seconds", elapsed)

	return result, nil
}
