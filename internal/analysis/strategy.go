// Package analysis builds the prompts sent to the language model and reads
// the scorecards it returns.
package analysis

// Response shapes a strategy expects back from the model.
const (
	ShapeSalesRubric = "sales_rubric_json"
	ShapeText        = "text"
)

// Strategy decides what the model is asked to do with a transcript.
type Strategy interface {
	// Kind is stored as the analysis kind of the result.
	Kind() string
	// Instructions is stored as the rubric prompt of the result.
	Instructions() string
	// Prompt is the full text sent to the model.
	Prompt(transcript string) string
	// ResponseShape tells renderers how to read the raw response.
	ResponseShape() string
}
