// Package domain holds the records shared by the pipeline stages, the
// storage backends and the API surfaces.
package domain

import (
	"encoding/json"
	"time"
)

// Source records how an AudioAsset entered the system.
type Source string

const (
	// SourceUpload is a file chosen by the user.
	SourceUpload Source = "upload"
	// SourceRecording is a clip captured from the microphone.
	SourceRecording Source = "recording"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceUpload || s == SourceRecording
}

// AudioAsset is a stored audio file plus its metadata. It is immutable once
// created.
type AudioAsset struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Filename        string    `json:"filename"`
	StoragePath     string    `json:"storage_path"`
	ByteSize        int64     `json:"byte_size"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	Format          string    `json:"format"`
	MimeType        string    `json:"mime_type"`
	Source          Source    `json:"source"`
	CreatedAt       time.Time `json:"created_at"`
}

// Transcript is the text produced from one AudioAsset.
type Transcript struct {
	ID           string    `json:"id"`
	AudioAssetID string    `json:"audio_asset_id"`
	Text         string    `json:"text"`
	Confidence   *float64  `json:"confidence,omitempty"`
	WordCount    *int      `json:"word_count,omitempty"`
	Language     string    `json:"language"`
	ModelName    string    `json:"model_name"`
	CreatedAt    time.Time `json:"created_at"`

	// ProviderResponse is the speech provider's full reply, kept for audit.
	ProviderResponse json.RawMessage `json:"provider_response,omitempty"`
}

// AnalysisResult is a stored model response for one Transcript. The raw
// response is kept verbatim even when it does not parse.
type AnalysisResult struct {
	ID                    string    `json:"id"`
	TranscriptID          string    `json:"transcript_id"`
	RubricPrompt          string    `json:"rubric_prompt"`
	RawResponseText       string    `json:"raw_response_text"`
	ModelName             string    `json:"model_name"`
	TokenCount            *int      `json:"token_count,omitempty"`
	ProcessingTimeSeconds *float64  `json:"processing_time_seconds,omitempty"`
	AnalysisKind          string    `json:"analysis_kind"`
	CreatedAt             time.Time `json:"created_at"`
}

// HistoryRecord is one asset with its most recent transcript and analysis.
type HistoryRecord struct {
	Asset      AudioAsset      `json:"asset"`
	Transcript *Transcript     `json:"transcript,omitempty"`
	Analysis   *AnalysisResult `json:"analysis,omitempty"`
}
