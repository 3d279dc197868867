package analysis

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed scorecard.schema.json
var scorecardSchemaJSON string

var scorecardSchema = mustCompileSchema(scorecardSchemaJSON, "scorecard.schema.json")

func mustCompileSchema(raw, name string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// ErrNoScorecard is returned when a response holds no usable scorecard.
var ErrNoScorecard = errors.New("response does not contain a scorecard")

// Criterion is one scored category.
type Criterion struct {
	Score    float64  `json:"score"`
	Feedback []string `json:"feedback"`
}

// Criteria holds the five rubric categories.
type Criteria struct {
	RapportBuilding    *Criterion `json:"rapport_building,omitempty"`
	UnderstandingNeeds *Criterion `json:"understanding_needs,omitempty"`
	ProductKnowledge   *Criterion `json:"product_knowledge,omitempty"`
	ObjectionHandling  *Criterion `json:"objection_handling,omitempty"`
	Closing            *Criterion `json:"closing,omitempty"`
}

// NamedCriterion pairs a category with its display label.
type NamedCriterion struct {
	Key   string
	Label string
	Criterion
}

// Ordered returns the present categories in rubric order.
func (c Criteria) Ordered() []NamedCriterion {
	all := []struct {
		key, label string
		c          *Criterion
	}{
		{"rapport_building", "Rapport Building & Introduction", c.RapportBuilding},
		{"understanding_needs", "Understanding Client Needs", c.UnderstandingNeeds},
		{"product_knowledge", "Product Knowledge & Value Communication", c.ProductKnowledge},
		{"objection_handling", "Objection Handling", c.ObjectionHandling},
		{"closing", "Closing & Call-to-Action", c.Closing},
	}

	out := make([]NamedCriterion, 0, len(all))
	for _, e := range all {
		if e.c != nil {
			out = append(out, NamedCriterion{Key: e.key, Label: e.label, Criterion: *e.c})
		}
	}
	return out
}

// Scorecard is the structured reading of a sales rubric response.
type Scorecard struct {
	OverallScore         float64  `json:"overall_score"`
	Criteria             Criteria `json:"criteria"`
	MissedTrainingPoints []string `json:"missed_training_points"`
	StrengthsSummary     string   `json:"strengths_summary"`
	ImprovementSummary   string   `json:"improvement_summary"`
}

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	bareObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON prefers a ```json fence, then the outermost braces, then the
// whole response.
func extractJSON(raw string) string {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if m := bareObject.FindString(raw); m != "" {
		return m
	}
	return raw
}

// ParseScorecard reads a scorecard out of a raw model response. Responses
// that are not JSON or do not match the rubric shape return ErrNoScorecard.
func ParseScorecard(raw string) (*Scorecard, error) {
	payload := extractJSON(raw)

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoScorecard, err)
	}
	if err := scorecardSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoScorecard, err)
	}

	var card Scorecard
	if err := json.Unmarshal([]byte(payload), &card); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoScorecard, err)
	}

	return &card, nil
}

// Grade is a coarse rating used to colour scores.
type Grade string

const (
	GradeStrong Grade = "strong"
	GradeFair   Grade = "fair"
	GradeWeak   Grade = "weak"
	GradePoor   Grade = "poor"
)

// Band grades a 0-10 score.
func Band(score float64) Grade {
	switch {
	case score >= 8:
		return GradeStrong
	case score >= 6:
		return GradeFair
	case score >= 4:
		return GradeWeak
	default:
		return GradePoor
	}
}
