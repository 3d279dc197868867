// Package pipeline implements the upload, recording, transcription and
// analysis stages. Each stage checks ownership, talks to its provider and
// persists its output through the small interfaces below.
package pipeline

import (
	"context"
	"errors"

	"github.com/alkime/callcoach/internal/domain"
)

// BlobStore stores audio bytes under owner-prefixed paths.
type BlobStore interface {
	Put(ctx context.Context, path, mimeType string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// AssetRepository persists AudioAsset rows.
type AssetRepository interface {
	InsertAsset(ctx context.Context, asset *domain.AudioAsset) (*domain.AudioAsset, error)
	GetAsset(ctx context.Context, id string) (*domain.AudioAsset, error)
}

// TranscriptRepository persists Transcript rows. GetTranscript also returns
// the owner of the transcript's audio asset.
type TranscriptRepository interface {
	InsertTranscript(ctx context.Context, t *domain.Transcript) (*domain.Transcript, error)
	GetTranscript(ctx context.Context, id string) (*domain.Transcript, string, error)
}

// AnalysisRepository persists AnalysisResult rows.
type AnalysisRepository interface {
	InsertAnalysis(ctx context.Context, a *domain.AnalysisResult) (*domain.AnalysisResult, error)
}

// asKind keeps typed errors as they are and wraps anything else with wrap.
func asKind(err error, wrap func(string, error) error, msg string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return wrap(msg, err)
}

func requireOwner(ownerID string) error {
	if ownerID == "" {
		return domain.AuthenticationError("user not authenticated")
	}
	return nil
}
