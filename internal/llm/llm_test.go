package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/llm"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	g := llm.DefaultGeneration()
	assert.InDelta(t, 0.7, g.Temperature, 1e-9)
	assert.Equal(t, 40, g.TopK)
	assert.InDelta(t, 0.95, g.TopP, 1e-9)
	assert.Equal(t, 2048, g.MaxOutputTokens)

	safety := llm.DefaultSafety()
	require.Len(t, safety, 4)
	for _, s := range safety {
		assert.Equal(t, "BLOCK_MEDIUM_AND_ABOVE", s.Threshold)
	}
}

func TestGemini_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash-exp:generateContent", r.URL.Path)
		assert.Equal(t, "gm-key", r.URL.Query().Get("key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		contents := body["contents"].([]any)
		parts := contents[0].(map[string]any)["parts"].([]any)
		assert.Equal(t, "score this call", parts[0].(map[string]any)["text"])

		gen := body["generationConfig"].(map[string]any)
		assert.InDelta(t, 0.7, gen["temperature"], 1e-9)
		assert.InDelta(t, 40, gen["topK"], 1e-9)
		assert.InDelta(t, 0.95, gen["topP"], 1e-9)
		assert.InDelta(t, 2048, gen["maxOutputTokens"], 1e-9)
		assert.Len(t, body["safetySettings"], 4)

		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{\"overall_score\":7}"}]}}],
			"usageMetadata":{"totalTokenCount":321}}`)
	}))
	defer srv.Close()

	g := llm.NewGemini(llm.GeminiConfig{APIKey: "gm-key", BaseURL: srv.URL})
	resp, err := g.Generate(context.Background(), llm.Request{
		Prompt:     "score this call",
		Generation: llm.DefaultGeneration(),
		Safety:     llm.DefaultSafety(),
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"overall_score":7}`, resp.Text)
	require.NotNil(t, resp.TokenCount)
	assert.Equal(t, 321, *resp.TokenCount)
	assert.Equal(t, "gemini-2.0-flash-exp", resp.Model)
}

func TestGemini_NoCandidatesIsEmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	resp, err := llm.NewGemini(llm.GeminiConfig{APIKey: "k", BaseURL: srv.URL}).
		Generate(context.Background(), llm.Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
	assert.Nil(t, resp.TokenCount)
}

func TestGemini_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid"}}`)
	}))
	defer srv.Close()

	_, err := llm.NewGemini(llm.GeminiConfig{APIKey: "bad", BaseURL: srv.URL}).
		Generate(context.Background(), llm.Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindProvider))
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestGemini_MissingKey(t *testing.T) {
	_, err := llm.NewGemini(llm.GeminiConfig{}).Generate(context.Background(), llm.Request{})
	assert.True(t, domain.IsKind(err, domain.KindProvider))
}

func TestAnthropic_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.InDelta(t, 2048, body["max_tokens"], 1e-9)
		assert.InDelta(t, llm.DefaultGeneration().Temperature, body["temperature"], 1e-9)
		assert.NotContains(t, body, "top_p")
		assert.NotContains(t, body, "top_k")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant",
			"model":"claude-sonnet-4-5-20250929",
			"content":[{"type":"text","text":"Great discovery questions."}],
			"stop_reason":"end_turn","usage":{"input_tokens":100,"output_tokens":20}}`)
	}))
	defer srv.Close()

	a := llm.NewAnthropic("ak-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	resp, err := a.Generate(context.Background(), llm.Request{Prompt: "score", Generation: llm.DefaultGeneration()})
	require.NoError(t, err)

	assert.Equal(t, "Great discovery questions.", resp.Text)
	require.NotNil(t, resp.TokenCount)
	assert.Equal(t, 120, *resp.TokenCount)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)
}

func TestAnthropic_MissingKey(t *testing.T) {
	_, err := llm.NewAnthropic("").Generate(context.Background(), llm.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}
