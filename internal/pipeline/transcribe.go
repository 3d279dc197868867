package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/stt"
)

// Transcriber turns a stored AudioAsset into a Transcript.
type Transcriber struct {
	blobs       BlobStore
	assets      AssetRepository
	transcripts TranscriptRepository
	provider    stt.Provider
	logger      *slog.Logger
}

// NewTranscriber creates a Transcriber.
func NewTranscriber(
	blobs BlobStore,
	assets AssetRepository,
	transcripts TranscriptRepository,
	provider stt.Provider,
	logger *slog.Logger,
) *Transcriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		blobs:       blobs,
		assets:      assets,
		transcripts: transcripts,
		provider:    provider,
		logger:      logger,
	}
}

// Transcribe fetches the asset's audio, sends it to the provider and stores
// the text. The provider is never called for assets the owner does not own,
// and empty transcripts are not stored.
func (t *Transcriber) Transcribe(ctx context.Context, ownerID, assetID string, report Reporter) (*domain.Transcript, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	progress := newTracker(StageTranscription, report)
	progress.step(10)

	asset, err := t.assets.GetAsset(ctx, assetID)
	if err != nil {
		return nil, asKind(err, domain.PersistenceError, "Audio file not found")
	}
	if asset.OwnerID != ownerID {
		return nil, domain.AuthorizationError("Unauthorized access to audio file")
	}

	progress.step(25)

	audio, err := t.blobs.Get(ctx, asset.StoragePath)
	if err != nil {
		return nil, asKind(err, domain.PersistenceError, "Failed to download audio file")
	}

	progress.step(40)
	progress.step(60)

	result, err := t.provider.Transcribe(ctx, stt.Request{
		Audio:    audio,
		MimeType: asset.MimeType,
		Filename: asset.Filename,
	})
	if err != nil {
		return nil, asKind(err, domain.ProviderError, "Transcription failed")
	}

	progress.step(80)

	if strings.TrimSpace(result.Text) == "" {
		return nil, domain.EmptyResultError("No transcription text received")
	}

	progress.step(90)

	wordCount := result.WordCount
	tr, err := t.transcripts.InsertTranscript(ctx, &domain.Transcript{
		AudioAssetID: asset.ID,
		Text:         result.Text,
		Confidence:   result.Confidence,
		WordCount:    &wordCount,
		Language:     result.Language,
		ModelName:    result.Model,

		ProviderResponse: result.Raw,
	})
	if err != nil {
		return nil, asKind(err, domain.PersistenceError, "Failed to save transcription")
	}

	progress.step(100)

	t.logger.Info("transcription stored",
		"asset", asset.ID,
		"transcript", tr.ID,
		"words", wordCount)

	return tr, nil
}
