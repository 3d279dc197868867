// Package pipelinetest provides in-memory backends, providers and audio
// sources for tests of the pipeline and everything built on it.
package pipelinetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alkime/callcoach/internal/audio"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/llm"
	"github.com/alkime/callcoach/internal/stt"
)

// Store is an in-memory blob store and repository.
type Store struct {
	mu          sync.Mutex
	blobs       map[string][]byte
	assets      map[string]domain.AudioAsset
	transcripts map[string]domain.Transcript
	analyses    map[string]domain.AnalysisResult
	seq         int
	clock       time.Time

	// FailAssetInsert makes InsertAsset fail.
	FailAssetInsert bool
	// FailPut makes Put fail.
	FailPut         bool

	Deleted []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		blobs:       map[string][]byte{},
		assets:      map[string]domain.AudioAsset{},
		transcripts: map[string]domain.Transcript{},
		analyses:    map[string]domain.AnalysisResult{},
		clock:       time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *Store) next(prefix string) (string, time.Time) {
	s.seq++
	s.clock = s.clock.Add(time.Minute)
	return fmt.Sprintf("%s-%d", prefix, s.seq), s.clock
}

func (s *Store) Put(_ context.Context, path, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPut {
		return domain.PersistenceError("Upload failed", errors.New("storage unavailable"))
	}
	if _, ok := s.blobs[path]; ok {
		return domain.PersistenceError("Upload failed", fmt.Errorf("object %s exists", path))
	}
	s.blobs[path] = slices.Clone(data)
	return nil
}

func (s *Store) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[path]
	if !ok {
		return nil, domain.NotFoundError("audio object not found")
	}
	return slices.Clone(data), nil
}

func (s *Store) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, path)
	s.Deleted = append(s.Deleted, path)
	return nil
}

// Blob returns the stored bytes at path.
func (s *Store) Blob(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[path]
	return data, ok
}

// BlobCount returns the number of stored objects.
func (s *Store) BlobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

func (s *Store) InsertAsset(_ context.Context, a *domain.AudioAsset) (*domain.AudioAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAssetInsert {
		return nil, domain.PersistenceError("failed to save audio file record", errors.New("insert rejected"))
	}
	row := *a
	row.ID, row.CreatedAt = s.next("asset")
	s.assets[row.ID] = row
	return &row, nil
}

func (s *Store) GetAsset(_ context.Context, id string) (*domain.AudioAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.assets[id]
	if !ok {
		return nil, domain.NotFoundError("audio file not found")
	}
	return &row, nil
}

func (s *Store) InsertTranscript(_ context.Context, t *domain.Transcript) (*domain.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *t
	row.ID, row.CreatedAt = s.next("transcript")
	s.transcripts[row.ID] = row
	return &row, nil
}

func (s *Store) GetTranscript(_ context.Context, id string) (*domain.Transcript, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.transcripts[id]
	if !ok {
		return nil, "", domain.NotFoundError("transcription not found")
	}
	return &row, s.assets[row.AudioAssetID].OwnerID, nil
}

func (s *Store) InsertAnalysis(_ context.Context, a *domain.AnalysisResult) (*domain.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *a
	row.ID, row.CreatedAt = s.next("analysis")
	s.analyses[row.ID] = row
	return &row, nil
}

func newestFirst[T any](rows []T, at func(T) time.Time) []T {
	slices.SortFunc(rows, func(a, b T) int { return at(b).Compare(at(a)) })
	return rows
}

func (s *Store) ListAnalyses(_ context.Context, transcriptID string) ([]domain.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AnalysisResult
	for _, a := range s.analyses {
		if a.TranscriptID == transcriptID {
			out = append(out, a)
		}
	}
	return newestFirst(out, func(a domain.AnalysisResult) time.Time { return a.CreatedAt }), nil
}

func (s *Store) ListHistory(_ context.Context, ownerID string) ([]domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var assets []domain.AudioAsset
	for _, a := range s.assets {
		if a.OwnerID == ownerID {
			assets = append(assets, a)
		}
	}
	assets = newestFirst(assets, func(a domain.AudioAsset) time.Time { return a.CreatedAt })

	out := make([]domain.HistoryRecord, 0, len(assets))
	for _, a := range assets {
		rec := domain.HistoryRecord{Asset: a}

		var latest *domain.Transcript
		for _, t := range s.transcripts {
			if t.AudioAssetID == a.ID && (latest == nil || t.CreatedAt.After(latest.CreatedAt)) {
				latest = &t
			}
		}
		rec.Transcript = latest

		if latest != nil {
			for _, an := range s.analyses {
				if an.TranscriptID == latest.ID && (rec.Analysis == nil || an.CreatedAt.After(rec.Analysis.CreatedAt)) {
					rec.Analysis = &an
				}
			}
		}

		out = append(out, rec)
	}
	return out, nil
}

// Transcripts returns the number of stored transcripts.
func (s *Store) Transcripts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcripts)
}

// Analyses returns the number of stored analyses.
func (s *Store) Analyses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.analyses)
}

// STT is a scripted speech-to-text provider.
type STT struct {
	Text string
	Err  error
	// Confidence defaults to 0.95.
	Confidence float64
	Calls      atomic.Int32
	// Gate, when set, blocks each call until it is closed.
	Gate chan struct{}
}

func (f *STT) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	f.Calls.Add(1)
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	confidence := f.Confidence
	if confidence == 0 {
		confidence = 0.95
	}
	return &stt.Result{
		Text:       f.Text,
		Confidence: &confidence,
		WordCount:  stt.CountWords(f.Text),
		Language:   "en",
		Model:      "nova-2",
		Raw:        rawReply(f.Text, confidence),
	}, nil
}

// rawReply builds a provider reply carrying text as its only alternative.
func rawReply(text string, confidence float64) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"results": map[string]any{
			"channels": []any{map[string]any{
				"alternatives": []any{map[string]any{"transcript": text, "confidence": confidence}},
			}},
		},
	})
	return raw
}

// LLM is a scripted language model.
type LLM struct {
	Text  string
	Err   error
	Calls atomic.Int32
	Gate  chan struct{}

	mu      sync.Mutex
	prompts []string
}

func (f *LLM) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.Calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	tokens := len(strings.Fields(req.Prompt)) + len(strings.Fields(f.Text))
	return &llm.Response{Text: f.Text, TokenCount: &tokens, Model: "gemini-2.0-flash-exp"}, nil
}

// Prompts returns every prompt received.
func (f *LLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.prompts)
}

// Source is a fake microphone. Packets written to Feed reach the recorder
// while the stream is started.
type Source struct {
	AcquireErr error

	mu       sync.Mutex
	dataC    chan<- audio.DataPacket
	started  bool
	Acquired int
	Released int
}

func (s *Source) Acquire(_ context.Context, dataC chan<- audio.DataPacket) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AcquireErr != nil {
		return nil, s.AcquireErr
	}
	s.Acquired++
	s.dataC = dataC
	return &stream{src: s}, nil
}

// Feed delivers one packet if the stream is started and reports whether it
// was delivered.
func (s *Source) Feed(pkt audio.DataPacket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.dataC == nil {
		return false
	}
	s.dataC <- pkt
	return true
}

// ReleaseCount returns how many times a stream was released.
func (s *Source) ReleaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Released
}

type stream struct {
	src  *Source
	once sync.Once
}

func (st *stream) Start() error {
	st.src.mu.Lock()
	st.src.started = true
	st.src.mu.Unlock()
	return nil
}

func (st *stream) Stop() error {
	st.src.mu.Lock()
	st.src.started = false
	st.src.mu.Unlock()
	return nil
}

func (st *stream) Release() {
	st.once.Do(func() {
		st.src.mu.Lock()
		st.src.started = false
		st.src.dataC = nil
		st.src.Released++
		st.src.mu.Unlock()
	})
}

// ManualTicker is a Ticker driven by Tick.
type ManualTicker struct {
	C chan time.Time
}

// NewManualTicker creates a ticker with an unbuffered channel, so Tick
// returns once the recorder has taken the tick.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{C: make(chan time.Time)}
}

// Ticker satisfies pipeline.Ticker.
func (m *ManualTicker) Ticker(time.Duration) (<-chan time.Time, func()) {
	return m.C, func() {}
}

// Tick delivers n ticks.
func (m *ManualTicker) Tick(n int) {
	for range n {
		m.C <- time.Time{}
	}
}

// Tone returns n S16LE samples of a square wave near 440 Hz at 16 kHz.
func Tone(n int) audio.DataPacket {
	out := make([]byte, n*2)
	for i := range n {
		v := int16(12000)
		if (i/18)%2 == 1 {
			v = -12000
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}
