// internal/rubric/rubric.go
package rubric

import (
	"context"

	"github.com/medtrainlab/casesim/internal/models"
)

// Verdict is the judge's call on one criterion. Index is 1-based into the
// criteria list handed to the judge; Score is 1..5.
type Verdict struct {
	Index         int    `json:"id"`
	Score         int    `json:"score"`
	Justification string `json:"justification,omitempty"`
}

// Judge scores a learner action against a set of leveled criteria. A response
// that maps no criterion at all yields a JudgeParseError; infrastructure
// failures yield an ExternalCapabilityError.
type Judge interface {
	Judge(ctx context.Context, action string, criteria []models.RubricCriterion) ([]Verdict, error)
}

// ClampScore forces a raw score into the 1..5 rubric range.
func ClampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 5 {
		return 5
	}
	return score
}
