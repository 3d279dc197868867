package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Whisper transcribes audio with the OpenAI Whisper API.
type Whisper struct {
	apiKey   string
	language string
	opts     []option.RequestOption
}

// NewWhisper creates a Whisper provider. Extra request options (such as a
// base URL) are passed to the OpenAI client.
func NewWhisper(apiKey, language string, opts ...option.RequestOption) *Whisper {
	if language == "" {
		language = "en"
	}
	return &Whisper{apiKey: apiKey, language: language, opts: opts}
}

// Transcribe uploads the audio and returns its text.
func (w *Whisper) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if w.apiKey == "" {
		return nil, domain.ProviderError("speech-to-text is not configured",
			errors.New("API key required: set OPENAI_API_KEY or use config set-key"))
	}

	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(w.apiKey)}, w.opts...)...)

	filename := req.Filename
	if filename == "" {
		filename = "audio"
	}

	params := openai.AudioTranscriptionNewParams{ //nolint:exhaustruct // File, Model and Language only
		File:     openai.File(bytes.NewReader(req.Audio), filename, req.MimeType),
		Model:    openai.AudioModelWhisper1,
		Language: openai.String(w.language),
	}

	resp, err := client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, domain.ProviderError("transcription failed",
			fmt.Errorf("failed to create transcription via Whisper API: %w", err))
	}

	result := &Result{
		Text:      resp.Text,
		WordCount: CountWords(resp.Text),
		Language:  w.language,
		Model:     string(openai.AudioModelWhisper1),
	}
	if raw := resp.RawJSON(); raw != "" {
		result.Raw = json.RawMessage(raw)
	}

	return result, nil
}
