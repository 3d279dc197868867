package analysis

import (
	"slices"
	"strings"

	"github.com/alkime/callcoach/internal/domain"
)

// PresetCustom takes its prompt from the caller.
const PresetCustom = "custom"

var presets = map[string]string{
	"summary":      "Please provide a concise summary of the main points discussed in this transcription.",
	"sentiment":    "Analyze the sentiment and emotional tone of this transcription. Identify key emotions and overall sentiment.",
	"keywords":     "Extract the most important keywords and key phrases from this transcription. Organize them by relevance.",
	"action_items": "Identify any action items, tasks, or decisions mentioned in this transcription.",
	"insights":     "Provide key insights and analysis points from this transcription. What are the most important takeaways?",
}

// PresetNames lists the built-in free-form kinds plus custom.
func PresetNames() []string {
	names := make([]string, 0, len(presets)+1)
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return append(names, PresetCustom)
}

// FreeForm asks an open question about the transcript and expects prose.
type FreeForm struct {
	kind   string
	prompt string
}

// NewFreeForm creates a free-form strategy. An empty kind is stored as
// "general".
func NewFreeForm(kind, prompt string) (*FreeForm, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, domain.ValidationError("analysis prompt is required")
	}
	if kind == "" {
		kind = "general"
	}
	return &FreeForm{kind: kind, prompt: prompt}, nil
}

// Preset returns the named built-in prompt. The custom preset uses
// customPrompt, which must not be blank.
func Preset(name, customPrompt string) (*FreeForm, error) {
	if name == PresetCustom {
		return NewFreeForm(PresetCustom, customPrompt)
	}

	prompt, ok := presets[name]
	if !ok {
		return nil, domain.ValidationError("unknown analysis kind: " + name)
	}
	return NewFreeForm(name, prompt)
}

func (f *FreeForm) Kind() string { return f.kind }

func (f *FreeForm) Instructions() string { return f.prompt }

func (f *FreeForm) ResponseShape() string { return ShapeText }

func (f *FreeForm) Prompt(transcript string) string {
	return f.prompt + "\n\nTranscription to analyze:\n" + transcript
}
