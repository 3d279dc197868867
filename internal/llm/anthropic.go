package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic generates text with the Anthropic Messages API. Only temperature
// and the output limit are sent: the model rejects temperature combined with
// top_p, and safety settings have no equivalent there.
type Anthropic struct {
	apiKey string
	model  anthropic.Model
	opts   []option.RequestOption
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(apiKey string, opts ...option.RequestOption) *Anthropic {
	return &Anthropic{
		apiKey: apiKey,
		model:  anthropic.ModelClaudeSonnet4_5_20250929,
		opts:   opts,
	}
}

// Generate sends the prompt as a single user message.
func (a *Anthropic) Generate(ctx context.Context, req Request) (*Response, error) {
	if a.apiKey == "" {
		return nil, domain.ProviderError("analysis is not configured",
			errors.New("API key required: set ANTHROPIC_API_KEY or use config set-key"))
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(a.apiKey)}, a.opts...)...)

	params := anthropic.MessageNewParams{ //nolint:exhaustruct // temperature and output limit only
		Model:       a.model,
		MaxTokens:   int64(req.Generation.MaxOutputTokens),
		Temperature: anthropic.Float(req.Generation.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, domain.ProviderError("analysis failed",
			fmt.Errorf("failed to generate analysis via Anthropic API: %w", err))
	}

	tokens := int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	out := &Response{Model: string(resp.Model), TokenCount: &tokens}

	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.Text = text.Text
			break
		}
	}

	return out, nil
}
