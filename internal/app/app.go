// Package app wires configuration into storage backends, providers and the
// pipeline stages shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go/option"

	"github.com/alkime/callcoach/internal/analysis"
	"github.com/alkime/callcoach/internal/audio"
	"github.com/alkime/callcoach/internal/config"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/history"
	"github.com/alkime/callcoach/internal/llm"
	"github.com/alkime/callcoach/internal/local"
	"github.com/alkime/callcoach/internal/pipeline"
	"github.com/alkime/callcoach/internal/stt"
	"github.com/alkime/callcoach/internal/supabase"
	"github.com/alkime/callcoach/internal/workdir"
	"github.com/alkime/callcoach/internal/workflow"
)

// Backend stores audio and records.
type Backend interface {
	pipeline.BlobStore
	pipeline.AssetRepository
	pipeline.TranscriptRepository
	pipeline.AnalysisRepository
	history.Lister
	ListAnalyses(ctx context.Context, transcriptID string) ([]domain.AnalysisResult, error)
}

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// localBackend stores audio on disk and records in sqlite.
type localBackend struct {
	*local.BlobStore
	*local.Repository
}

// singleUser accepts any request as the configured local user.
type singleUser string

func (u singleUser) Authenticate(context.Context, string) (string, error) {
	return string(u), nil
}

// App holds everything built from configuration.
type App struct {
	Config      *config.Config
	Backend     Backend
	Auth        Authenticator
	Uploader    *pipeline.Uploader
	Transcriber *pipeline.Transcriber
	Analyzer    *pipeline.Analyzer
	History     *history.Browser
	Rubric      analysis.Strategy

	logger  *slog.Logger
	closers []func() error
}

// New validates cfg and builds the backend, the providers and the stages.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, logger: logger}

	if err := a.openBackend(); err != nil {
		return nil, err
	}

	transcriber, err := newTranscriptionProvider(cfg)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	model, err := newAnalysisProvider(cfg)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	rubric, err := loadRubric(cfg.TrainingMaterialPath)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.Rubric = rubric

	a.Uploader = pipeline.NewUploader(a.Backend, a.Backend, logger)
	a.Transcriber = pipeline.NewTranscriber(a.Backend, a.Backend, a.Backend, transcriber, logger)
	a.Analyzer = pipeline.NewAnalyzer(a.Backend, a.Backend, model, logger)
	a.History = history.NewBrowser(a.Backend, logger)

	logger.Info("application ready",
		"backend", cfg.Backend,
		"stt", cfg.STTProvider,
		"llm", cfg.LLMProvider,
		"auto_chain", cfg.AutoChain,
	)

	return a, nil
}

func (a *App) openBackend() error {
	cfg := a.Config

	switch cfg.Backend {
	case config.BackendSupabase:
		client, err := supabase.New(supabase.Config{
			URL:        cfg.SupabaseURL,
			AnonKey:    cfg.SupabaseAnonKey,
			ServiceKey: cfg.SupabaseServiceKey,
			Bucket:     cfg.SupabaseBucket,
		})
		if err != nil {
			return fmt.Errorf("failed to create supabase client: %w", err)
		}
		a.Backend = client
		a.Auth = client

	case config.BackendLocal:
		layout := workdir.Layout{Dir: cfg.LocalDataDir}
		if layout.Dir == "" {
			var err error
			if layout, err = workdir.DefaultLayout(); err != nil {
				return err
			}
		}
		if err := layout.Prep(); err != nil {
			return err
		}

		blobs, err := local.NewBlobStore(layout.AudioDir())
		if err != nil {
			return fmt.Errorf("failed to open audio store: %w", err)
		}
		repo, err := local.Open(layout.DatabasePath())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		a.Backend = localBackend{BlobStore: blobs, Repository: repo}
		a.Auth = singleUser(cfg.LocalUserID)

		a.logger.Info("using local backend", "dir", layout.Dir)
	}

	return nil
}

func newTranscriptionProvider(cfg *config.Config) (stt.Provider, error) {
	switch cfg.STTProvider {
	case config.STTDeepgram:
		return stt.NewDeepgram(stt.DeepgramConfig{
			APIKey:   cfg.DeepgramAPIKey,
			Model:    cfg.DeepgramModel,
			Language: cfg.STTLanguage,
			BaseURL:  cfg.DeepgramBaseURL,
		}), nil
	case config.STTWhisper:
		return stt.NewWhisper(cfg.OpenAIAPIKey, cfg.STTLanguage, option.WithMaxRetries(0)), nil
	default:
		return nil, fmt.Errorf("unknown speech-to-text provider %q", cfg.STTProvider)
	}
}

func newAnalysisProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLMProvider {
	case config.LLMGemini:
		return llm.NewGemini(llm.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		}), nil
	case config.LLMAnthropic:
		return llm.NewAnthropic(cfg.AnthropicAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown analysis provider %q", cfg.LLMProvider)
	}
}

func loadRubric(path string) (*analysis.SalesRubric, error) {
	if path == "" {
		return analysis.NewSalesRubric(""), nil
	}
	material, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read training material: %w", err)
	}
	return analysis.NewSalesRubric(string(material)), nil
}

// Stages returns the stages a workflow controller drives.
func (a *App) Stages() workflow.Stages {
	return workflow.Stages{
		Uploader:    a.Uploader,
		Transcriber: a.Transcriber,
		Analyzer:    a.Analyzer,
	}
}

// NewController creates a workflow controller for ownerID using the
// configured auto-chain setting and rubric.
func (a *App) NewController(ownerID string) *workflow.Controller {
	return workflow.New(ownerID, a.Stages(), a.logger).
		WithAuto(a.Config.AutoChain).
		WithStrategy(a.Rubric)
}

// NewRecorder creates a recorder that saves through the app's uploader.
func (a *App) NewRecorder(source audio.Source) *pipeline.Recorder {
	return pipeline.NewRecorder(source, a.Uploader, a.logger)
}

// Close releases the backend.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
