package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alkime/callcoach/internal/audio"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/pkg/uictl"
)

// RecorderState is the recorder's lifecycle state.
type RecorderState int

const (
	StateIdle RecorderState = iota
	StateRecording
	StatePaused
	StateStopped
)

func (s RecorderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("RecorderState(%d)", int(s))
	}
}

// Clip is a finished recording held in memory until it is saved or
// discarded.
type Clip struct {
	Filename string
	MimeType string
	Duration int

	mu   sync.Mutex
	data []byte
}

// Data returns the encoded audio, or nil once the clip is released.
func (c *Clip) Data() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Release drops the clip's audio.
func (c *Clip) Release() {
	c.mu.Lock()
	c.data = nil
	c.mu.Unlock()
}

// Ticker produces the recorder's one-second ticks.
type Ticker func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// session is one Start..Stop capture.
type session struct {
	stream  audio.Stream
	dataC   chan audio.DataPacket
	encoder *audio.StreamingEncoder
	buf     *bytes.Buffer
	cancel  context.CancelFunc
	stopT   chan struct{}
	tickWG  sync.WaitGroup
}

// Recorder captures microphone audio into an in-memory MP3 clip and saves
// it through the Uploader.
type Recorder struct {
	source   audio.Source
	uploader *Uploader
	encCfg   audio.EncoderConfig
	logger   *slog.Logger
	ticker   Ticker
	now      func() time.Time
	meter    *audio.SampleRingBuffer

	// opMu serialises Start, Stop, Save and Discard; mu guards the fields
	// read by the tick goroutine and the UI.
	opMu    sync.Mutex
	mu      sync.Mutex
	state   RecorderState
	elapsed int
	sess    *session
	clip    *Clip
}

// NewRecorder creates an idle Recorder.
func NewRecorder(source audio.Source, uploader *Uploader, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		source:   source,
		uploader: uploader,
		encCfg:   audio.EncoderConfig{}.WithDefaults(),
		logger:   logger,
		ticker:   realTicker,
		now:      time.Now,
		meter:    audio.NewSampleRingBuffer(audio.DefaultSampleRate, audio.DefaultSampleRate/20),
	}
}

// WithTicker replaces the one-second ticker.
func (r *Recorder) WithTicker(t Ticker) *Recorder {
	r.ticker = t
	return r
}

// State returns the current state.
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed returns whole seconds spent in the recording state.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Clip returns the stopped clip, or nil.
func (r *Recorder) Clip() *Clip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clip
}

// Start acquires the microphone and begins recording. It is a no-op while
// already recording or paused. Starting from Stopped releases the old clip.
func (r *Recorder) Start(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	state := r.state
	old := r.clip
	r.mu.Unlock()

	if state == StateRecording || state == StatePaused {
		return nil
	}

	if old != nil {
		old.Release()
	}
	r.mu.Lock()
	r.clip = nil
	r.elapsed = 0
	r.state = StateIdle
	r.mu.Unlock()

	dataC := make(chan audio.DataPacket, 64)

	stream, err := r.source.Acquire(ctx, dataC)
	if err != nil {
		return domain.DeviceError("failed to access microphone", err)
	}

	buf := new(bytes.Buffer)
	encoder, err := audio.NewStreamingEncoder(r.encCfg, dataC, buf)
	if err != nil {
		stream.Release()
		return domain.DeviceError("failed to create MP3 encoder", err)
	}
	r.meter.Reset()
	encoder.WithMeter(r.meter)

	encCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := encoder.Start(encCtx); err != nil {
		cancel()
		stream.Release()
		return domain.DeviceError("failed to start MP3 encoder", err)
	}

	if err := stream.Start(); err != nil {
		stream.Release()
		close(dataC)
		_ = encoder.Wait()
		cancel()
		return domain.DeviceError("failed to start microphone", err)
	}

	s := &session{
		stream:  stream,
		dataC:   dataC,
		encoder: encoder,
		buf:     buf,
		cancel:  cancel,
		stopT:   make(chan struct{}),
	}

	tickC, stopTicker := r.ticker(time.Second)
	s.tickWG.Go(func() {
		defer stopTicker()
		for {
			select {
			case <-tickC:
				r.mu.Lock()
				if r.state == StateRecording {
					r.elapsed++
				}
				r.mu.Unlock()
			case <-s.stopT:
				return
			}
		}
	})

	r.mu.Lock()
	r.sess = s
	r.state = StateRecording
	r.mu.Unlock()

	r.logger.Info("recording started")

	return nil
}

// Pause suspends capture. No-op unless recording.
func (r *Recorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording || r.sess == nil {
		return
	}
	if err := r.sess.stream.Stop(); err != nil {
		r.logger.Warn("failed to pause microphone", "error", err)
	}
	r.state = StatePaused
}

// Resume continues a paused recording. No-op unless paused.
func (r *Recorder) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePaused || r.sess == nil {
		return
	}
	if err := r.sess.stream.Start(); err != nil {
		r.logger.Warn("failed to resume microphone", "error", err)
		return
	}
	r.state = StateRecording
}

// Stop ends capture, releases the microphone and returns the finished clip.
// It is a no-op (nil, nil) unless recording or paused.
func (r *Recorder) Stop() (*Clip, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	clip, err := r.finish()
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return nil, nil
	}

	r.mu.Lock()
	r.clip = clip
	r.state = StateStopped
	r.mu.Unlock()

	r.logger.Info("recording stopped", "seconds", clip.Duration, "bytes", len(clip.data))

	return clip, nil
}

// finish tears down the active session. Caller holds opMu.
func (r *Recorder) finish() (*Clip, error) {
	r.mu.Lock()
	s := r.sess
	if s == nil || (r.state != StateRecording && r.state != StatePaused) {
		r.mu.Unlock()
		return nil, nil
	}
	r.sess = nil
	r.mu.Unlock()

	close(s.stopT)
	s.tickWG.Wait()

	// No packets are delivered after Release, so the channel can close.
	s.stream.Release()
	close(s.dataC)
	encErr := s.encoder.Wait()
	s.cancel()

	r.mu.Lock()
	elapsed := r.elapsed
	r.mu.Unlock()

	if encErr != nil {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()
		return nil, domain.DeviceError("failed to encode recording", encErr)
	}

	return &Clip{
		Filename: fmt.Sprintf("recording-%s.%s", r.now().Format("20060102-150405"), audio.Format),
		MimeType: audio.MimeType,
		Duration: elapsed,
		data:     s.buf.Bytes(),
	}, nil
}

// Save uploads the stopped clip as a recording. The clip is kept when the
// upload fails so it can be retried.
func (r *Recorder) Save(ctx context.Context, ownerID string, report Reporter) (*domain.AudioAsset, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	state, clip := r.state, r.clip
	r.mu.Unlock()

	if state != StateStopped || clip == nil {
		return nil, domain.ValidationError("no recording to save")
	}

	duration := float64(clip.Duration)
	asset, err := r.uploader.Upload(ctx, ownerID, File{
		Name:            clip.Filename,
		MimeType:        clip.MimeType,
		Data:            clip.Data(),
		Source:          domain.SourceRecording,
		DurationSeconds: &duration,
	}, report)
	if err != nil {
		return nil, err
	}

	clip.Release()
	r.mu.Lock()
	r.clip = nil
	r.elapsed = 0
	r.state = StateIdle
	r.mu.Unlock()

	return asset, nil
}

// Discard drops the current clip, or the recording in progress, and
// returns to Idle.
func (r *Recorder) Discard() {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if _, err := r.finish(); err != nil {
		r.logger.Warn("failed to finish discarded recording", "error", err)
	}

	r.mu.Lock()
	if r.clip != nil {
		r.clip.Release()
		r.clip = nil
	}
	r.elapsed = 0
	r.state = StateIdle
	r.mu.Unlock()
}

// Levels exposes the most recent input samples for a level meter.
func (r *Recorder) Levels() uictl.Levels[int16] {
	return r.meter
}

// Size reports encoded bytes against the upload size limit.
func (r *Recorder) Size() uictl.CappedDial[int64] {
	return uictl.Capped[int64](uictl.DialFunc[int64](r.encodedBytes), MaxUploadBytes)
}

// PauseKnob toggles pause from a UI control.
func (r *Recorder) PauseKnob() uictl.Knob {
	return pauseKnob{r: r}
}

func (r *Recorder) encodedBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != nil {
		return r.sess.encoder.BytesWritten()
	}
	if r.clip != nil {
		return int64(len(r.clip.Data()))
	}
	return 0
}

type pauseKnob struct{ r *Recorder }

func (k pauseKnob) Read() bool { return k.r.State() == StatePaused }

func (k pauseKnob) On() { k.r.Pause() }

func (k pauseKnob) Off() { k.r.Resume() }

func (k pauseKnob) Toggle() {
	if k.Read() {
		k.Off()
		return
	}
	k.On()
}
