package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alkime/callcoach/internal/analysis"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/history"
	"github.com/alkime/callcoach/internal/pipeline"
	"github.com/alkime/callcoach/internal/workflow"
)

const (
	sseKeepAlive = 30 * time.Second
	// sseSendTimeout bounds how long a stalled browser holds up an event.
	sseSendTimeout = 250 * time.Millisecond
)

type errorResponse struct {
	Error string      `json:"error"`
	Kind  domain.Kind `json:"kind,omitempty"`
}

func statusOf(err error) int {
	if errors.Is(err, workflow.ErrBusy) {
		return http.StatusConflict
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return domain.HTTPStatus(err)
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), errorResponse{Error: err.Error(), Kind: domain.KindOf(err)})
}

type stateResponse struct {
	workflow.State
	Scorecard *analysis.Scorecard `json:"scorecard,omitempty"`
}

func newStateResponse(st workflow.State) stateResponse {
	return stateResponse{State: st, Scorecard: st.Scorecard()}
}

// handleUpload stores a multipart file and makes it the current asset.
func (s *Server) handleUpload(c *gin.Context) {
	header, err := c.FormFile("file")
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		abortWithError(c, fmt.Errorf("%w: %w", domain.ValidationError("File size exceeds 25MB limit"), err))
		return
	case err != nil:
		abortWithError(c, domain.ValidationError("file is required"))
		return
	}

	source := domain.Source(c.DefaultPostForm("source", string(domain.SourceUpload)))
	file := pipeline.File{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Source:   source,
	}

	if file.MimeType == "" || file.MimeType == "application/octet-stream" {
		file.MimeType = pipeline.MimeTypeFor(file.Name)
	}

	if raw := c.PostForm("duration_seconds"); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil || seconds < 0 {
			abortWithError(c, domain.ValidationError("duration_seconds must be a non-negative number"))
			return
		}
		file.DurationSeconds = &seconds
	}

	// Check size and type before reading the body.
	if err := pipeline.ValidateUpload(file.Name, file.MimeType, header.Size, source); err != nil {
		abortWithError(c, err)
		return
	}

	f, err := header.Open()
	if err != nil {
		abortWithError(c, domain.PersistenceError("Upload failed", err))
		return
	}
	defer f.Close()

	if file.Data, err = io.ReadAll(f); err != nil {
		abortWithError(c, domain.PersistenceError("Upload failed", err))
		return
	}

	asset, err := s.sessions.get(ownerOf(c)).Upload(c.Request.Context(), file)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, asset)
}

func (s *Server) handleState(c *gin.Context) {
	ctrl := s.sessions.get(ownerOf(c))
	ctrl.Reconcile()
	c.JSON(http.StatusOK, newStateResponse(ctrl.State()))
}

type eventPayload struct {
	Stage    pipeline.Stage `json:"stage,omitempty"`
	Percent  int            `json:"percent"`
	Terminal bool           `json:"terminal"`
	Error    string         `json:"error,omitempty"`
	State    stateResponse  `json:"state"`
}

func newEventPayload(ev workflow.Event) eventPayload {
	out := eventPayload{State: newStateResponse(ev.State)}
	if p := ev.Progress; p != nil {
		out.Stage, out.Percent, out.Terminal = p.Stage, p.Percent, p.Terminal
		if p.Err != nil {
			out.Error = p.Err.Error()
		}
	}
	return out
}

// handleEvents streams controller events until the client goes away.
func (s *Server) handleEvents(c *gin.Context) {
	ctrl, release := s.sessions.acquire(ownerOf(c))
	defer release()
	events, cancel := ctrl.SubscribeWithTimeout(64, sseSendTimeout)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("state", newEventPayload(workflow.Event{State: ctrl.State()}))
	c.Writer.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			name := "state"
			if ev.Progress != nil {
				name = "progress"
			}
			c.SSEvent(name, newEventPayload(ev))
			return true
		case <-keepAlive.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			return true
		}
	})
}

func (s *Server) handleTranscribe(c *gin.Context) {
	transcript, err := s.sessions.get(ownerOf(c)).Transcribe(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, transcript)
}

type analyzeRequest struct {
	Kind   string `json:"kind"`
	Prompt string `json:"prompt"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, domain.ValidationError("invalid request body"))
		return
	}

	ctrl := s.sessions.get(ownerOf(c))

	var (
		result *domain.AnalysisResult
		err    error
	)
	switch {
	case req.Kind == "" && req.Prompt == "", req.Kind == analysis.KindSalesCoaching:
		result, err = ctrl.Analyze(c.Request.Context())
	default:
		kind := req.Kind
		if kind == "" {
			kind = analysis.PresetCustom
		}
		var strategy *analysis.FreeForm
		if strategy, err = analysis.Preset(kind, req.Prompt); err == nil {
			result, err = ctrl.AnalyzeWith(c.Request.Context(), strategy)
		}
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type selectRequest struct {
	AssetID string `json:"asset_id" binding:"required"`
}

func (s *Server) handleSelect(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.ValidationError("asset_id is required"))
		return
	}

	owner := ownerOf(c)
	entry, err := s.deps.History.Open(c.Request.Context(), owner, req.AssetID, s.sessions.get(owner))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleClearError(c *gin.Context) {
	s.sessions.get(ownerOf(c)).ClearError()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHistory(c *gin.Context) {
	status, err := history.ParseStatus(c.Query("status"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	source := domain.Source(c.Query("source"))
	if source != "" && !source.Valid() {
		abortWithError(c, domain.ValidationError("unknown source "+string(source)))
		return
	}

	entries, err := s.deps.History.List(c.Request.Context(), ownerOf(c), history.Filter{
		Query:  c.Query("q"),
		Status: status,
		Source: source,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleAnalyses(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	_, owner, err := s.deps.Analyses.GetTranscript(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if owner != ownerOf(c) {
		abortWithError(c, domain.AuthorizationError("Unauthorized access to transcription"))
		return
	}

	results, err := s.deps.Analyses.ListAnalyses(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if results == nil {
		results = []domain.AnalysisResult{}
	}

	c.JSON(http.StatusOK, results)
}
