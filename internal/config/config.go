package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvProduction represents the production environment.
	EnvProduction = "production"

	// BackendSupabase stores audio and rows on the hosted platform.
	BackendSupabase = "supabase"
	// BackendLocal stores audio on disk and rows in sqlite.
	BackendLocal = "local"

	// STTDeepgram selects the Deepgram transcription provider.
	STTDeepgram = "deepgram"
	// STTWhisper selects the OpenAI Whisper transcription provider.
	STTWhisper = "whisper"

	// LLMGemini selects the Gemini analysis provider.
	LLMGemini = "gemini"
	// LLMAnthropic selects the Anthropic analysis provider.
	LLMAnthropic = "anthropic"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Env  string `envconfig:"ENV" default:"development"`
	Port string `envconfig:"PORT" default:"8080"`

	// Security settings
	HSTSMaxAge int    `envconfig:"HSTS_MAX_AGE" default:"31536000"`
	CSPMode    string `envconfig:"CSP_MODE" default:"relaxed"`

	// Logging settings
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage backend
	Backend      string `envconfig:"BACKEND" default:"supabase"`
	LocalDataDir string `envconfig:"LOCAL_DATA_DIR"`
	LocalUserID  string `envconfig:"LOCAL_USER_ID" default:"local-user"`

	// Hosted platform
	SupabaseURL        string `envconfig:"SUPABASE_URL"`
	SupabaseAnonKey    string `envconfig:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `envconfig:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseBucket     string `envconfig:"SUPABASE_BUCKET" default:"audio-files"`

	// Speech-to-text
	STTProvider     string `envconfig:"STT_PROVIDER" default:"deepgram"`
	STTLanguage     string `envconfig:"STT_LANGUAGE" default:"en"`
	DeepgramAPIKey  string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel   string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramBaseURL string `envconfig:"DEEPGRAM_BASE_URL" default:"https://api.deepgram.com"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`

	// Analysis
	LLMProvider          string `envconfig:"LLM_PROVIDER" default:"gemini"`
	GeminiAPIKey         string `envconfig:"GEMINI_API_KEY"`
	GeminiModel          string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash-exp"`
	GeminiBaseURL        string `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	AnthropicAPIKey      string `envconfig:"ANTHROPIC_API_KEY"`
	TrainingMaterialPath string `envconfig:"TRAINING_MATERIAL_PATH"`

	// Workflow
	AutoChain          bool          `envconfig:"AUTO_CHAIN" default:"true"`
	SessionIdleTimeout time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
}

// LoadConfig loads configuration from .env file and environment variables.
func LoadConfig() (*Config, error) {
	// Try to load .env file (optional for development)
	if err := godotenv.Load(); err != nil {
		// Not an error if file doesn't exist (expected in production)
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	// Parse environment variables into config struct
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	return &config, nil
}

// Validate reports every setting missing for the selected backend and providers.
func (c *Config) Validate() error {
	var missing []string

	switch c.Backend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.SupabaseAnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
		if c.SupabaseServiceKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
		}
	case BackendLocal:
	default:
		return fmt.Errorf("unknown backend %q: must be %q or %q", c.Backend, BackendSupabase, BackendLocal)
	}

	switch c.STTProvider {
	case STTDeepgram:
		if c.DeepgramAPIKey == "" {
			missing = append(missing, "DEEPGRAM_API_KEY")
		}
	case STTWhisper:
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown speech-to-text provider %q", c.STTProvider)
	}

	switch c.LLMProvider {
	case LLMGemini:
		if c.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	case LLMAnthropic:
		if c.AnthropicAPIKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	default:
		return fmt.Errorf("unknown analysis provider %q", c.LLMProvider)
	}

	if len(missing) > 0 {
		return errors.New("missing configuration: " + strings.Join(missing, ", "))
	}

	return nil
}

// BuildCSP constructs Content Security Policy based on mode.
func BuildCSP(mode string) string {
	if mode == "strict" {
		// Production CSP
		return "default-src 'self'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"script-src 'self'; " +
			"img-src 'self' data:; " +
			"media-src 'self' blob:; " +
			"connect-src 'self'; " +
			"object-src 'none'; " +
			"base-uri 'self'; " +
			"form-action 'self'"
	}

	// Development/relaxed CSP
	return "default-src 'self'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"script-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:; " +
		"media-src 'self' blob:"
}
