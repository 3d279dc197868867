package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alkime/callcoach/internal/domain"
	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	"github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

const (
	// DefaultDeepgramURL is the hosted Deepgram API.
	DefaultDeepgramURL = "https://api.deepgram.com"
	// DefaultDeepgramModel is the prerecorded model used when none is set.
	DefaultDeepgramModel = "nova-2"
)

var initSDK sync.Once

// DeepgramConfig configures the Deepgram client.
type DeepgramConfig struct {
	APIKey   string
	Model    string
	Language string
	BaseURL  string
}

// Deepgram transcribes prerecorded audio with the Deepgram listen endpoint.
type Deepgram struct {
	apiKey   string
	model    string
	language string
	baseURL  string
}

// NewDeepgram creates a Deepgram provider.
func NewDeepgram(cfg DeepgramConfig) *Deepgram {
	d := &Deepgram{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
	}
	if d.model == "" {
		d.model = DefaultDeepgramModel
	}
	if d.language == "" {
		d.language = "en"
	}
	if d.baseURL == "" {
		d.baseURL = DefaultDeepgramURL
	}
	return d
}

// deepgramResponse is the part of the prerecorded reply that becomes a Result.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string            `json:"transcript"`
				Confidence *float64          `json:"confidence"`
				Words      []json.RawMessage `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) options() *interfaces.PreRecordedTranscriptionOptions {
	return &interfaces.PreRecordedTranscriptionOptions{ //nolint:exhaustruct // model, language and formatting only
		Model:       d.model,
		Language:    d.language,
		Punctuate:   true,
		SmartFormat: true,
	}
}

// Transcribe streams the raw audio bytes to the prerecorded API and reads the
// first alternative of the first channel.
func (d *Deepgram) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if d.apiKey == "" {
		return nil, domain.ProviderError("speech-to-text is not configured",
			errors.New("API key required: set DEEPGRAM_API_KEY"))
	}

	initSDK.Do(listen.InitWithDefault)

	client := prerecorded.New(listen.NewREST(d.apiKey, &interfaces.ClientOptions{ //nolint:exhaustruct // host only
		Host: d.baseURL,
	}))

	resp, err := client.FromStream(ctx, bytes.NewReader(req.Audio), d.options())
	if err != nil {
		return nil, domain.ProviderError("transcription failed", fmt.Errorf("deepgram: %w", err))
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, domain.ProviderError("failed to encode transcription response", err)
	}

	var parsed deepgramResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.ProviderError("failed to decode transcription response", err)
	}

	result := &Result{Language: d.language, Model: d.model, Raw: raw}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return result, nil
	}

	channel := parsed.Results.Channels[0]
	alt := channel.Alternatives[0]
	result.Text = alt.Transcript
	result.Confidence = alt.Confidence
	result.WordCount = len(alt.Words)
	if result.WordCount == 0 {
		result.WordCount = CountWords(alt.Transcript)
	}
	if channel.DetectedLanguage != "" {
		result.Language = channel.DetectedLanguage
	}

	return result, nil
}
