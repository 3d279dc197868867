// Package llm sends prompts to a hosted generative-language model.
package llm

import "context"

// Generation holds the sampling knobs sent with every request.
type Generation struct {
	Temperature     float64
	TopK            int
	TopP            float64
	MaxOutputTokens int
}

// DefaultGeneration is the fixed configuration used for call analysis.
func DefaultGeneration() Generation {
	return Generation{
		Temperature:     0.7,
		TopK:            40,
		TopP:            0.95,
		MaxOutputTokens: 2048,
	}
}

// SafetySetting blocks one harm category at a threshold.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

const blockMediumAndAbove = "BLOCK_MEDIUM_AND_ABOVE"

// DefaultSafety blocks medium-and-above content in the four harm categories.
func DefaultSafety() []SafetySetting {
	return []SafetySetting{
		{Category: "HARM_CATEGORY_HARASSMENT", Threshold: blockMediumAndAbove},
		{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: blockMediumAndAbove},
		{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: blockMediumAndAbove},
		{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: blockMediumAndAbove},
	}
}

// Request is one prompt plus its configuration.
type Request struct {
	Prompt     string
	Generation Generation
	Safety     []SafetySetting
}

// Response is the model's text output.
type Response struct {
	Text       string
	TokenCount *int
	Model      string
}

// Provider generates text from a prompt.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
