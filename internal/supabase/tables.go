package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/pkg/collections"
	postgrest "github.com/supabase-community/postgrest-go"
)

const (
	tableAssets      = "audio_files"
	tableTranscripts = "transcriptions"
	tableAnalyses    = "ai_analyses"
)

type assetRow struct {
	ID         string     `json:"id,omitempty"`
	UserID     string     `json:"user_id"`
	Filename   string     `json:"filename"`
	FilePath   string     `json:"file_path"`
	FileSize   int64      `json:"file_size"`
	Duration   *float64   `json:"duration"`
	Format     string     `json:"format"`
	MimeType   string     `json:"mime_type"`
	UploadType string     `json:"upload_type"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`

	Transcriptions []transcriptRow `json:"transcriptions,omitempty"`
}

type ownerRef struct {
	UserID string `json:"user_id"`
}

type transcriptRow struct {
	ID                string          `json:"id,omitempty"`
	AudioFileID       string          `json:"audio_file_id"`
	TranscriptionText string          `json:"transcription_text"`
	ConfidenceScore   *float64        `json:"confidence_score"`
	WordCount         *int            `json:"word_count"`
	Language          string          `json:"language"`
	Model             string          `json:"model"`
	DeepgramResponse  json.RawMessage `json:"deepgram_response,omitempty"`
	CreatedAt         *time.Time      `json:"created_at,omitempty"`

	AudioFiles *ownerRef     `json:"audio_files,omitempty"`
	Analyses   []analysisRow `json:"ai_analyses,omitempty"`
}

type analysisRow struct {
	ID              string     `json:"id,omitempty"`
	TranscriptionID string     `json:"transcription_id"`
	SystemPrompt    string     `json:"system_prompt"`
	AIResponse      string     `json:"ai_response"`
	ModelUsed       string     `json:"model_used"`
	TokenCount      *int       `json:"token_count"`
	ProcessingTime  *float64   `json:"processing_time"`
	AnalysisType    string     `json:"analysis_type"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func assetToRow(a *domain.AudioAsset) assetRow {
	return assetRow{
		UserID:     a.OwnerID,
		Filename:   a.Filename,
		FilePath:   a.StoragePath,
		FileSize:   a.ByteSize,
		Duration:   a.DurationSeconds,
		Format:     a.Format,
		MimeType:   a.MimeType,
		UploadType: string(a.Source),
	}
}

func (r assetRow) toDomain() *domain.AudioAsset {
	return &domain.AudioAsset{
		ID:              r.ID,
		OwnerID:         r.UserID,
		Filename:        r.Filename,
		StoragePath:     r.FilePath,
		ByteSize:        r.FileSize,
		DurationSeconds: r.Duration,
		Format:          r.Format,
		MimeType:        r.MimeType,
		Source:          domain.Source(r.UploadType),
		CreatedAt:       timeOf(r.CreatedAt),
	}
}

func (r transcriptRow) toDomain() *domain.Transcript {
	return &domain.Transcript{
		ID:           r.ID,
		AudioAssetID: r.AudioFileID,
		Text:         r.TranscriptionText,
		Confidence:   r.ConfidenceScore,
		WordCount:    r.WordCount,
		Language:     r.Language,
		ModelName:    r.Model,
		CreatedAt:    timeOf(r.CreatedAt),

		ProviderResponse: r.DeepgramResponse,
	}
}

func (r analysisRow) toDomain() *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ID:                    r.ID,
		TranscriptID:          r.TranscriptionID,
		RubricPrompt:          r.SystemPrompt,
		RawResponseText:       r.AIResponse,
		ModelName:             r.ModelUsed,
		TokenCount:            r.TokenCount,
		ProcessingTimeSeconds: r.ProcessingTime,
		AnalysisKind:          r.AnalysisType,
		CreatedAt:             timeOf(r.CreatedAt),
	}
}

var newestFirst = &postgrest.OrderOpts{Ascending: false}

func newestFirstIn(table string) *postgrest.OrderOpts {
	return &postgrest.OrderOpts{Ascending: false, ForeignTable: table}
}

// insertOne posts row to table and decodes the single returned representation.
func insertOne[R any](ctx context.Context, c *Client, table string, row R) (R, error) {
	var zero R

	q, err := c.from(ctx, table)
	if err != nil {
		return zero, domain.PersistenceError("failed to save "+table+" row", err)
	}

	var out []R
	if _, err := q.Insert(row, false, "", "representation", "").ExecuteTo(&out); err != nil {
		return zero, domain.PersistenceError("failed to save "+table+" row",
			fmt.Errorf("supabase: insert into %s: %w", table, err))
	}
	if len(out) == 0 {
		return zero, domain.PersistenceError("failed to save "+table+" row",
			fmt.Errorf("supabase: insert into %s returned no rows", table))
	}
	return out[0], nil
}

// selectByID loads at most one row of table whose id matches.
func selectByID[R any](ctx context.Context, c *Client, table, columns, id string) ([]R, error) {
	q, err := c.from(ctx, table)
	if err != nil {
		return nil, err
	}

	var rows []R
	if _, err := q.Select(columns, "", false).Eq("id", id).Limit(1, "").ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("supabase: select from %s: %w", table, err)
	}
	return rows, nil
}

// InsertAsset stores a new audio_files row.
func (c *Client) InsertAsset(ctx context.Context, asset *domain.AudioAsset) (*domain.AudioAsset, error) {
	row, err := insertOne(ctx, c, tableAssets, assetToRow(asset))
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetAsset loads one audio_files row.
func (c *Client) GetAsset(ctx context.Context, id string) (*domain.AudioAsset, error) {
	rows, err := selectByID[assetRow](ctx, c, tableAssets, "*", id)
	if err != nil {
		return nil, domain.PersistenceError("failed to load audio file", err)
	}
	if len(rows) == 0 {
		return nil, domain.NotFoundError("audio file not found")
	}

	return rows[0].toDomain(), nil
}

// InsertTranscript stores a new transcriptions row.
func (c *Client) InsertTranscript(ctx context.Context, t *domain.Transcript) (*domain.Transcript, error) {
	row, err := insertOne(ctx, c, tableTranscripts, transcriptRow{
		AudioFileID:       t.AudioAssetID,
		TranscriptionText: t.Text,
		ConfidenceScore:   t.Confidence,
		WordCount:         t.WordCount,
		Language:          t.Language,
		Model:             t.ModelName,
		DeepgramResponse:  t.ProviderResponse,
	})
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetTranscript loads a transcript together with the owner of its audio file.
func (c *Client) GetTranscript(ctx context.Context, id string) (*domain.Transcript, string, error) {
	rows, err := selectByID[transcriptRow](ctx, c, tableTranscripts, "*,audio_files!inner(user_id)", id)
	if err != nil {
		return nil, "", domain.PersistenceError("failed to load transcription", err)
	}
	if len(rows) == 0 || rows[0].AudioFiles == nil {
		return nil, "", domain.NotFoundError("transcription not found")
	}

	return rows[0].toDomain(), rows[0].AudioFiles.UserID, nil
}

// InsertAnalysis stores a new ai_analyses row.
func (c *Client) InsertAnalysis(ctx context.Context, a *domain.AnalysisResult) (*domain.AnalysisResult, error) {
	row, err := insertOne(ctx, c, tableAnalyses, analysisRow{
		TranscriptionID: a.TranscriptID,
		SystemPrompt:    a.RubricPrompt,
		AIResponse:      a.RawResponseText,
		ModelUsed:       a.ModelName,
		TokenCount:      a.TokenCount,
		ProcessingTime:  a.ProcessingTimeSeconds,
		AnalysisType:    a.AnalysisKind,
	})
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// ListAnalyses returns every analysis of a transcript, newest first.
func (c *Client) ListAnalyses(ctx context.Context, transcriptID string) ([]domain.AnalysisResult, error) {
	q, err := c.from(ctx, tableAnalyses)
	if err != nil {
		return nil, domain.PersistenceError("failed to load analyses", err)
	}

	var rows []analysisRow
	_, err = q.Select("*", "", false).
		Eq("transcription_id", transcriptID).
		Order("created_at", newestFirst).
		ExecuteTo(&rows)
	if err != nil {
		return nil, domain.PersistenceError("failed to load analyses", err)
	}

	return collections.Apply(rows, func(r analysisRow) domain.AnalysisResult { return *r.toDomain() }), nil
}

// ListHistory returns the owner's audio files, newest first, each with its
// latest transcription and that transcription's latest analysis.
func (c *Client) ListHistory(ctx context.Context, ownerID string) ([]domain.HistoryRecord, error) {
	q, err := c.from(ctx, tableAssets)
	if err != nil {
		return nil, domain.PersistenceError("failed to load history", err)
	}

	var rows []assetRow
	_, err = q.Select("*,transcriptions(*,ai_analyses(*))", "", false).
		Eq("user_id", ownerID).
		Order("created_at", newestFirst).
		Order("created_at", newestFirstIn(tableTranscripts)).
		Order("created_at", newestFirstIn(tableTranscripts+"."+tableAnalyses)).
		ExecuteTo(&rows)
	if err != nil {
		return nil, domain.PersistenceError("failed to load history", err)
	}

	return collections.Apply(rows, historyRecordFromRow), nil
}

func historyRecordFromRow(r assetRow) domain.HistoryRecord {
	rec := domain.HistoryRecord{Asset: *r.toDomain()}

	if len(r.Transcriptions) == 0 {
		return rec
	}

	latest := slices.MaxFunc(r.Transcriptions, func(a, b transcriptRow) int {
		return timeOf(a.CreatedAt).Compare(timeOf(b.CreatedAt))
	})
	rec.Transcript = latest.toDomain()

	if len(latest.Analyses) > 0 {
		newest := slices.MaxFunc(latest.Analyses, func(a, b analysisRow) int {
			return timeOf(a.CreatedAt).Compare(timeOf(b.CreatedAt))
		})
		rec.Analysis = newest.toDomain()
	}

	return rec
}
