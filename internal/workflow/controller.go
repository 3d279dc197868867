// Package workflow sequences the pipeline stages for one user, holds the
// current selection and progress, and optionally chains stages
// automatically.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alkime/callcoach/internal/analysis"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/pipeline"
	"github.com/alkime/callcoach/pkg/channels"
)

// ErrBusy is returned when a stage is invoked while another is running.
var ErrBusy = errors.New("another stage is already running")

// Uploader is the upload stage.
type Uploader interface {
	Upload(ctx context.Context, ownerID string, file pipeline.File, report pipeline.Reporter) (*domain.AudioAsset, error)
}

// Transcriber is the transcription stage.
type Transcriber interface {
	Transcribe(ctx context.Context, ownerID, assetID string, report pipeline.Reporter) (*domain.Transcript, error)
}

// Analyzer is the analysis stage.
type Analyzer interface {
	Analyze(
		ctx context.Context,
		ownerID, transcriptID string,
		strategy analysis.Strategy,
		report pipeline.Reporter,
	) (*domain.AnalysisResult, error)
}

// ClipSaver saves a stopped recording. *pipeline.Recorder implements it.
type ClipSaver interface {
	Save(ctx context.Context, ownerID string, report pipeline.Reporter) (*domain.AudioAsset, error)
}

// Stages bundles the stage implementations a Controller drives.
type Stages struct {
	Uploader    Uploader
	Transcriber Transcriber
	Analyzer    Analyzer
}

// Controller is the per-user workflow state. All methods are safe for
// concurrent use.
type Controller struct {
	owner    string
	stages   Stages
	strategy analysis.Strategy
	auto     bool
	logger   *slog.Logger

	events *channels.Broadcaster[Event]
	ctx    context.Context //nolint:containedctx // bounds auto-chained stages
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	gen    uint64
	closed bool

	// Last asset and transcript a stage was started for. Auto-chaining fires
	// once per item; cleared when the selection changes.
	autoTranscribed string
	autoAnalyzed    string
}

// New creates a Controller for ownerID with auto-chaining on and the sales
// rubric as the analysis strategy.
func New(ownerID string, stages Stages, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		owner:    ownerID,
		stages:   stages,
		strategy: analysis.NewSalesRubric(""),
		auto:     true,
		logger:   logger.With("owner", ownerID),
		events:   channels.NewBroadcaster[Event](),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithAuto turns auto-chaining on or off.
func (c *Controller) WithAuto(auto bool) *Controller {
	c.mu.Lock()
	c.auto = auto
	c.mu.Unlock()
	return c
}

// WithStrategy sets the strategy used by Analyze and by auto-chaining.
func (c *Controller) WithStrategy(s analysis.Strategy) *Controller {
	c.mu.Lock()
	c.strategy = s
	c.mu.Unlock()
	return c
}

// Owner returns the user the controller acts for.
func (c *Controller) Owner() string {
	return c.owner
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel of events and a func that ends the
// subscription. Events are dropped when the buffer is full. After Close the
// returned channel is already closed.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	return subscription(c.events.Open(buffer))
}

// SubscribeWithTimeout is Subscribe for readers that write to slow sinks:
// each event waits up to timeout for buffer space before it is dropped, so
// a briefly stalled reader still sees terminal events.
func (c *Controller) SubscribeWithTimeout(buffer int, timeout time.Duration) (<-chan Event, func()) {
	return subscription(c.events.OpenWithTimeout(buffer, timeout))
}

func subscription(ch <-chan Event, cancel func(), err error) (<-chan Event, func()) {
	if err != nil {
		closed := make(chan Event)
		close(closed)
		return closed, func() {}
	}
	return ch, cancel
}

// Upload stores a file and makes it the current asset.
func (c *Controller) Upload(ctx context.Context, file pipeline.File) (*domain.AudioAsset, error) {
	return c.ingest(ctx, func(ctx context.Context, report pipeline.Reporter) (*domain.AudioAsset, error) {
		return c.stages.Uploader.Upload(ctx, c.owner, file, report)
	})
}

// SaveRecording saves a stopped recording and makes it the current asset.
func (c *Controller) SaveRecording(ctx context.Context, saver ClipSaver) (*domain.AudioAsset, error) {
	return c.ingest(ctx, func(ctx context.Context, report pipeline.Reporter) (*domain.AudioAsset, error) {
		return saver.Save(ctx, c.owner, report)
	})
}

func (c *Controller) ingest(
	ctx context.Context,
	run func(context.Context, pipeline.Reporter) (*domain.AudioAsset, error),
) (*domain.AudioAsset, error) {
	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.beginLocked(pipeline.StageUpload)
	c.mu.Unlock()

	asset, err := run(ctx, c.reporter(pipeline.StageUpload))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Upload = StageStatus{}
	if err != nil {
		c.failLocked(pipeline.StageUpload, err)
		return nil, err
	}

	c.selectLocked(asset, nil, nil)
	c.endLocked(pipeline.StageUpload)
	c.logger.Info("audio file ready", "asset_id", asset.ID, "source", asset.Source)
	c.reconcileLocked()

	return asset, nil
}

// SelectAsset makes an existing asset current, clearing the transcript,
// the analysis, the error and the auto-chain guards.
func (c *Controller) SelectAsset(asset *domain.AudioAsset) error {
	if asset == nil {
		return domain.ValidationError("no audio file selected")
	}
	return c.SelectRecord(domain.HistoryRecord{Asset: *asset})
}

// SelectRecord makes a past record current, including any transcript and
// analysis it already has.
func (c *Controller) SelectRecord(rec domain.HistoryRecord) error {
	if rec.Asset.OwnerID != c.owner {
		return domain.AuthorizationError("Unauthorized access to audio file")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	asset := rec.Asset
	c.selectLocked(&asset, rec.Transcript, rec.Analysis)
	c.publishLocked(nil)
	c.reconcileLocked()

	return nil
}

// Transcribe runs transcription on the current asset on the caller's
// goroutine.
func (c *Controller) Transcribe(ctx context.Context) (*domain.Transcript, error) {
	c.mu.Lock()
	asset, gen, err := c.startTranscriptionLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.runTranscription(ctx, asset, gen)
}

// Analyze runs the configured strategy on the current transcript.
func (c *Controller) Analyze(ctx context.Context) (*domain.AnalysisResult, error) {
	c.mu.Lock()
	strategy := c.strategy
	c.mu.Unlock()
	return c.AnalyzeWith(ctx, strategy)
}

// AnalyzeWith runs strategy on the current transcript on the caller's
// goroutine.
func (c *Controller) AnalyzeWith(ctx context.Context, strategy analysis.Strategy) (*domain.AnalysisResult, error) {
	if strategy == nil {
		return nil, domain.ValidationError("no analysis strategy")
	}

	c.mu.Lock()
	transcript, gen, err := c.startAnalysisLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.runAnalysis(ctx, transcript, strategy, gen)
}

// Reconcile starts the next stage when auto-chaining applies. It is cheap
// and idempotent, so views may call it on every render.
func (c *Controller) Reconcile() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconcileLocked()
}

// ClearError empties the error slot.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Error == "" {
		return
	}
	c.state.Error = ""
	c.publishLocked(nil)
}

// Wait blocks until every auto-chained stage has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels auto-chained stages, waits for them and closes every
// subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.events.Close()
}

func (c *Controller) busyLocked() bool {
	return c.state.Busy()
}

func (c *Controller) startTranscriptionLocked() (*domain.AudioAsset, uint64, error) {
	if c.busyLocked() {
		return nil, 0, ErrBusy
	}
	if c.state.Asset == nil {
		return nil, 0, domain.ValidationError("no audio file selected")
	}
	c.beginLocked(pipeline.StageTranscription)
	c.autoTranscribed = c.state.Asset.ID
	return c.state.Asset, c.gen, nil
}

func (c *Controller) runTranscription(ctx context.Context, asset *domain.AudioAsset, gen uint64) (*domain.Transcript, error) {
	t, err := c.stages.Transcriber.Transcribe(ctx, c.owner, asset.ID, c.reporter(pipeline.StageTranscription))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Transcription = StageStatus{}
	if err != nil {
		if gen != c.gen {
			c.endLocked(pipeline.StageTranscription)
			return nil, err
		}
		c.failLocked(pipeline.StageTranscription, err)
		return nil, err
	}

	if gen == c.gen {
		c.state.Transcript = t
		if !c.state.Analyzed() {
			c.state.Result = nil
		}
	} else {
		c.logger.Debug("dropping transcript for previous selection", "transcript_id", t.ID)
	}
	c.endLocked(pipeline.StageTranscription)
	c.reconcileLocked()

	return t, nil
}

func (c *Controller) startAnalysisLocked() (*domain.Transcript, uint64, error) {
	if c.busyLocked() {
		return nil, 0, ErrBusy
	}
	if c.state.Transcript == nil {
		return nil, 0, domain.ValidationError("no transcript to analyze")
	}
	c.beginLocked(pipeline.StageAnalysis)
	c.autoAnalyzed = c.state.Transcript.ID
	return c.state.Transcript, c.gen, nil
}

func (c *Controller) runAnalysis(
	ctx context.Context,
	transcript *domain.Transcript,
	strategy analysis.Strategy,
	gen uint64,
) (*domain.AnalysisResult, error) {
	result, err := c.stages.Analyzer.Analyze(ctx, c.owner, transcript.ID, strategy, c.reporter(pipeline.StageAnalysis))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Analysis = StageStatus{}
	if err != nil {
		if gen != c.gen {
			c.endLocked(pipeline.StageAnalysis)
			return nil, err
		}
		c.failLocked(pipeline.StageAnalysis, err)
		return nil, err
	}

	if gen == c.gen {
		c.state.Result = result
	} else {
		c.logger.Debug("dropping analysis for previous selection", "analysis_id", result.ID)
	}
	c.endLocked(pipeline.StageAnalysis)
	c.reconcileLocked()

	return result, nil
}

func (c *Controller) reconcileLocked() {
	if !c.auto || c.closed || c.busyLocked() {
		return
	}

	switch {
	case c.state.Asset != nil && c.state.Transcript == nil && c.autoTranscribed != c.state.Asset.ID:
		asset, gen, err := c.startTranscriptionLocked()
		if err != nil {
			return
		}
		c.logger.Info("auto-starting transcription", "asset_id", asset.ID)

		c.wg.Go(func() {
			if _, err := c.runTranscription(c.ctx, asset, gen); err != nil {
				c.logger.Error("auto transcription failed", "asset_id", asset.ID, "error", err)
			}
		})

	case c.state.Transcript != nil && !c.state.Analyzed() && c.autoAnalyzed != c.state.Transcript.ID:
		transcript, gen, err := c.startAnalysisLocked()
		if err != nil {
			return
		}
		strategy := c.strategy
		c.logger.Info("auto-starting analysis", "transcript_id", transcript.ID, "kind", strategy.Kind())

		c.wg.Go(func() {
			if _, err := c.runAnalysis(c.ctx, transcript, strategy, gen); err != nil {
				c.logger.Error("auto analysis failed", "transcript_id", transcript.ID, "error", err)
			}
		})
	}
}

func (c *Controller) selectLocked(asset *domain.AudioAsset, t *domain.Transcript, a *domain.AnalysisResult) {
	c.gen++
	c.state.Asset = asset
	c.state.Transcript = t
	c.state.Result = a
	c.state.Error = ""
	c.autoTranscribed = ""
	c.autoAnalyzed = ""
}

func (c *Controller) beginLocked(stage pipeline.Stage) {
	*c.state.status(stage) = StageStatus{Running: true}
	c.state.Error = ""
	c.publishLocked(&pipeline.Progress{Stage: stage})
}

func (c *Controller) endLocked(stage pipeline.Stage) {
	c.publishLocked(&pipeline.Progress{Stage: stage, Terminal: true})
}

func (c *Controller) failLocked(stage pipeline.Stage, err error) {
	c.state.Error = err.Error()
	c.logger.Warn("stage failed", "stage", stage, "kind", domain.KindOf(err), "error", err)
	c.publishLocked(&pipeline.Progress{Stage: stage, Terminal: true, Err: err})
}

func (c *Controller) reporter(stage pipeline.Stage) pipeline.Reporter {
	return func(p pipeline.Progress) {
		c.mu.Lock()
		defer c.mu.Unlock()

		status := c.state.status(stage)
		if !status.Running {
			return
		}
		status.Progress = p.Percent
		c.publishLocked(&p)
	}
}

func (c *Controller) publishLocked(p *pipeline.Progress) {
	c.events.Publish(Event{Progress: p, State: c.state})
}
