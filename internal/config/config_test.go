package config_test

import (
	"testing"
	"time"

	"github.com/alkime/callcoach/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "dg")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, config.BackendSupabase, cfg.Backend)
	assert.Equal(t, "audio-files", cfg.SupabaseBucket)
	assert.Equal(t, "nova-2", cfg.DeepgramModel)
	assert.Equal(t, "en", cfg.STTLanguage)
	assert.Equal(t, "gemini-2.0-flash-exp", cfg.GeminiModel)
	assert.Equal(t, "dg", cfg.DeepgramAPIKey)
	assert.True(t, cfg.AutoChain)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
}

func TestLoadConfig_LanguageAppliesToEveryProvider(t *testing.T) {
	t.Setenv("STT_PROVIDER", config.STTWhisper)
	t.Setenv("STT_LANGUAGE", "es")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, config.STTWhisper, cfg.STTProvider)
	assert.Equal(t, "es", cfg.STTLanguage)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         config.Config
		expectError string
	}{
		{
			name: "local backend with default providers",
			cfg: config.Config{
				Backend:        config.BackendLocal,
				STTProvider:    config.STTDeepgram,
				LLMProvider:    config.LLMGemini,
				DeepgramAPIKey: "dg",
				GeminiAPIKey:   "gm",
			},
		},
		{
			name: "supabase backend lists every missing key",
			cfg: config.Config{
				Backend:     config.BackendSupabase,
				STTProvider: config.STTWhisper,
				LLMProvider: config.LLMAnthropic,
			},
			expectError: "SUPABASE_URL, SUPABASE_ANON_KEY, SUPABASE_SERVICE_ROLE_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY",
		},
		{
			name:        "unknown backend",
			cfg:         config.Config{Backend: "s3"},
			expectError: "unknown backend",
		},
		{
			name: "unknown speech provider",
			cfg: config.Config{
				Backend:     config.BackendLocal,
				STTProvider: "vosk",
			},
			expectError: "unknown speech-to-text provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.expectError == "" {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestBuildCSP(t *testing.T) {
	t.Parallel()

	assert.Contains(t, config.BuildCSP("strict"), "object-src 'none'")
	assert.Contains(t, config.BuildCSP("relaxed"), "'unsafe-inline'")
	assert.Contains(t, config.BuildCSP("relaxed"), "media-src 'self' blob:")
}
