package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alkime/callcoach/internal/config"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/history"
	"github.com/alkime/callcoach/internal/pipeline"
	"github.com/alkime/callcoach/internal/pipeline/pipelinetest"
	"github.com/alkime/callcoach/internal/server"
	"github.com/alkime/callcoach/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scorecard = `{"overall_score": 7, "criteria": {"closing": {"score": 7}}}`

type tokens map[string]string

func (t tokens) Authenticate(_ context.Context, token string) (string, error) {
	if owner, ok := t[token]; ok {
		return owner, nil
	}
	return "", domain.AuthenticationError("invalid or expired session")
}

type fixture struct {
	srv   *server.Server
	store *pipelinetest.Store
	stt   *pipelinetest.STT
	llm   *pipelinetest.LLM
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Env:        "test",
		Port:       "8080",
		HSTSMaxAge: 31536000,
		CSPMode:    "relaxed",
		LogLevel:   "info",
	}

	// Create a test logger (discard output)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:       slog.LevelError, // Only show errors during tests
		AddSource:   false,
		ReplaceAttr: nil,
	}))

	f := &fixture{
		store: pipelinetest.NewStore(),
		stt:   &pipelinetest.STT{Text: "Hello, this is a test call."},
		llm:   &pipelinetest.LLM{Text: scorecard},
	}
	stages := workflow.Stages{
		Uploader:    pipeline.NewUploader(f.store, f.store, logger),
		Transcriber: pipeline.NewTranscriber(f.store, f.store, f.store, f.stt, logger),
		Analyzer:    pipeline.NewAnalyzer(f.store, f.store, f.llm, logger),
	}

	f.srv = server.New(cfg, server.Deps{
		Auth: tokens{"tok-1": "user-1", "tok-2": "user-2"},
		NewController: func(owner string) *workflow.Controller {
			return workflow.New(owner, stages, logger)
		},
		History:  history.NewBrowser(f.store, logger),
		Analyses: f.store,
	}, logger)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(w, req)
	return w
}

func (f *fixture) upload(t *testing.T, token, name, mimeType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return f.do(t, http.MethodPost, "/api/v1/assets", token, &body, mw.FormDataContentType())
}

type stateBody struct {
	Asset      *domain.AudioAsset     `json:"asset"`
	Transcript *domain.Transcript     `json:"transcript"`
	Analysis   *domain.AnalysisResult `json:"analysis"`
	Error      string                 `json:"error"`
	Scorecard  *struct {
		OverallScore float64 `json:"overall_score"`
	} `json:"scorecard"`
}

func (f *fixture) state(t *testing.T, token string) stateBody {
	t.Helper()

	w := f.do(t, http.MethodGet, "/api/v1/workflow", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var st stateBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func (f *fixture) waitComplete(t *testing.T, token string) stateBody {
	t.Helper()

	var st stateBody
	require.Eventually(t, func() bool {
		st = f.state(t, token)
		return st.Analysis != nil || st.Error != ""
	}, 5*time.Second, 10*time.Millisecond)
	return st
}

func mp3Bytes() []byte {
	data := make([]byte, 32*1024)
	copy(data, []byte{0xff, 0xfb, 0x90, 0x64})
	return data
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", "", nil, "")

	assert.Equal(t, http.StatusOK, w.Code, "Health endpoint should return 200 OK")
	assert.Contains(t, w.Body.String(), "healthy", "Response should contain 'healthy'")
	assert.Contains(t, w.Body.String(), "callcoach", "Response should contain service name")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'self'")
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	f := newFixture(t)

	for _, token := range []string{"", "expired"} {
		w := f.do(t, http.MethodGet, "/api/v1/workflow", token, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"kind":"authentication"`)
	}
}

func TestUpload_ChainsToCompleteAndShowsInHistory(t *testing.T) {
	f := newFixture(t)

	w := f.upload(t, "tok-1", "call.mp3", "audio/mpeg", mp3Bytes())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var asset domain.AudioAsset
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &asset))
	assert.Equal(t, "user-1", asset.OwnerID)

	st := f.waitComplete(t, "tok-1")
	require.Empty(t, st.Error)
	assert.Equal(t, asset.ID, st.Asset.ID)
	assert.Equal(t, scorecard, st.Analysis.RawResponseText)
	require.NotNil(t, st.Scorecard)
	assert.InDelta(t, 7.0, st.Scorecard.OverallScore, 1e-9)

	w = f.do(t, http.MethodGet, "/api/v1/history", "tok-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, history.StatusComplete, entries[0].Status)

	w = f.do(t, http.MethodGet, "/api/v1/history?status=uploaded", "tok-1", nil, "")
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/v1/history", "tok-2", nil, "")
	assert.JSONEq(t, `[]`, w.Body.String(), "other users see nothing")
}

func TestUpload_Rejections(t *testing.T) {
	f := newFixture(t)

	w := f.upload(t, "tok-1", "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Unsupported file format")

	w = f.upload(t, "tok-1", "huge.mp3", "audio/mpeg", make([]byte, pipeline.MaxUploadBytes+1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "25MB")

	w = f.do(t, http.MethodPost, "/api/v1/assets", "tok-1", strings.NewReader(""), "multipart/form-data; boundary=x")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, f.store.BlobCount())
}

func TestUpload_OversizedBodyIsCutOff(t *testing.T) {
	f := newFixture(t)

	w := f.upload(t, "tok-1", "huge.mp3", "audio/mpeg", make([]byte, pipeline.MaxUploadBytes+2<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "25MB")
	assert.Contains(t, w.Body.String(), `"kind":"validation"`)
	assert.Zero(t, f.store.BlobCount())
}

func TestUpload_GuessesTypeFromExtension(t *testing.T) {
	f := newFixture(t)

	w := f.upload(t, "tok-1", "call.mp3", "application/octet-stream", mp3Bytes())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	f.waitComplete(t, "tok-1")
}

func TestWorkflow_BusyWhileTranscribing(t *testing.T) {
	f := newFixture(t)
	f.stt.Gate = make(chan struct{})

	w := f.upload(t, "tok-1", "call.mp3", "audio/mpeg", mp3Bytes())
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/workflow/transcribe", "tok-1", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	close(f.stt.Gate)
	f.waitComplete(t, "tok-1")
}

func TestWorkflow_AnalyzeWithPreset(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusCreated, f.upload(t, "tok-1", "call.mp3", "audio/mpeg", mp3Bytes()).Code)
	f.waitComplete(t, "tok-1")

	f.llm.Text = "A short summary."
	w := f.do(t, http.MethodPost, "/api/v1/workflow/analyze", "tok-1",
		strings.NewReader(`{"kind":"summary"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result domain.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "summary", result.AnalysisKind)
	assert.Equal(t, "A short summary.", result.RawResponseText)

	assert.Nil(t, f.state(t, "tok-1").Scorecard, "free-form results have no scorecard")

	w = f.do(t, http.MethodPost, "/api/v1/workflow/analyze", "tok-1",
		strings.NewReader(`{"kind":"custom"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code, "custom needs a prompt")

	w = f.do(t, http.MethodGet, "/api/v1/transcripts/"+result.TranscriptID+"/analyses", "tok-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var analyses []domain.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analyses))
	require.Len(t, analyses, 2)
	assert.Equal(t, result.ID, analyses[0].ID, "newest first")

	w = f.do(t, http.MethodGet, "/api/v1/transcripts/"+result.TranscriptID+"/analyses", "tok-2", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWorkflow_SelectAndClearError(t *testing.T) {
	f := newFixture(t)
	f.stt.Err = domain.ProviderError("transcription failed", nil)

	w := f.upload(t, "tok-1", "call.mp3", "audio/mpeg", mp3Bytes())
	require.Equal(t, http.StatusCreated, w.Code)
	var asset domain.AudioAsset
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &asset))

	st := f.waitComplete(t, "tok-1")
	assert.Equal(t, "transcription failed", st.Error)

	w = f.do(t, http.MethodDelete, "/api/v1/workflow/error", "tok-1", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, f.state(t, "tok-1").Error)

	f.stt.Err = nil
	w = f.do(t, http.MethodPost, "/api/v1/workflow/select", "tok-1",
		strings.NewReader(`{"asset_id":"`+asset.ID+`"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.waitComplete(t, "tok-1")

	w = f.do(t, http.MethodPost, "/api/v1/workflow/select", "tok-2",
		strings.NewReader(`{"asset_id":"`+asset.ID+`"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/workflow/select", "tok-1", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkflow_EventStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/workflow/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event:state", lines.Text())
	require.True(t, lines.Scan())
	assert.True(t, strings.HasPrefix(lines.Text(), "data:"), lines.Text())

	require.Equal(t, http.StatusCreated, f.upload(t, "tok-1", "call.mp3", "audio/mpeg", mp3Bytes()).Code)

	sawProgress := false
	for lines.Scan() {
		if lines.Text() == "event:progress" {
			sawProgress = true
			break
		}
	}
	assert.True(t, sawProgress)
}
