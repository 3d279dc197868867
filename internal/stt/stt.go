// Package stt turns recorded audio into text through a hosted
// speech-to-text provider.
package stt

import (
	"context"
	"encoding/json"
	"strings"
)

// Request is the audio to transcribe.
type Request struct {
	Audio    []byte
	MimeType string
	// Filename is passed to providers that need a multipart file name.
	Filename string
}

// Result is a provider's transcription.
type Result struct {
	Text       string
	Confidence *float64
	WordCount  int
	Language   string
	Model      string
	// Raw is the provider's full reply when it returns one.
	Raw json.RawMessage
}

// Provider transcribes audio.
type Provider interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
