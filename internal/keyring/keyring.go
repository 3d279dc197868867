// Package keyring stores provider API keys in the system keychain.
package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/alkime/callcoach/internal/config"
)

const serviceName = "callcoach"

// APIKey represents a named API key stored in the keychain.
type APIKey string

const (
	Deepgram  APIKey = "deepgram-api-key"
	Gemini    APIKey = "gemini-api-key"
	OpenAI    APIKey = "openai-api-key"
	Anthropic APIKey = "anthropic-api-key"
)

// AllAPIKeys returns all known API key types for iteration.
func AllAPIKeys() []APIKey {
	return []APIKey{Deepgram, Gemini, OpenAI, Anthropic}
}

// DisplayName returns a human-readable name for the API key.
func (k APIKey) DisplayName() string {
	switch k {
	case Deepgram:
		return "deepgram"
	case Gemini:
		return "gemini"
	case OpenAI:
		return "openai"
	case Anthropic:
		return "anthropic"
	default:
		return string(k)
	}
}

// Get retrieves an API key value from the system keychain.
func Get(apiKey APIKey) (string, error) {
	value, err := keyring.Get(serviceName, string(apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to get %s from keychain: %w", apiKey.DisplayName(), err)
	}

	return value, nil
}

// Set stores an API key value in the system keychain.
func Set(apiKey APIKey, value string) error {
	if err := keyring.Set(serviceName, string(apiKey), value); err != nil {
		return fmt.Errorf("failed to set %s in keychain: %w", apiKey.DisplayName(), err)
	}

	return nil
}

// IsSet checks if an API key exists in the keychain.
func IsSet(apiKey APIKey) bool {
	_, err := keyring.Get(serviceName, string(apiKey))

	return err == nil
}

// APIKeyFromServiceName maps a service name (e.g., "deepgram") to an APIKey.
func APIKeyFromServiceName(name string) (APIKey, error) {
	for _, k := range AllAPIKeys() {
		if k.DisplayName() == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown service: %s", name)
}

// FillConfig copies keychain values into the provider keys that the
// environment left empty. Keys missing from the keychain are skipped.
func FillConfig(cfg *config.Config) error {
	targets := map[APIKey]*string{
		Deepgram:  &cfg.DeepgramAPIKey,
		Gemini:    &cfg.GeminiAPIKey,
		OpenAI:    &cfg.OpenAIAPIKey,
		Anthropic: &cfg.AnthropicAPIKey,
	}

	for key, dst := range targets {
		if *dst != "" {
			continue
		}
		value, err := keyring.Get(serviceName, string(key))
		if errors.Is(err, keyring.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to get %s from keychain: %w", key.DisplayName(), err)
		}
		*dst = value
	}

	return nil
}
