// internal/rubric/evaluator.go
package rubric

import (
	"context"
	"strings"

	apperrors "github.com/medtrainlab/casesim/internal/errors"
	"github.com/medtrainlab/casesim/internal/models"
)

// Score thresholds for partitioning verdicts.
const (
	satisfiedScore = 4
	partialScore   = 2
)

// Outcome is the evaluation result for one turn against one event.
type Outcome struct {
	Status    models.EventStatus
	Satisfied []models.RubricCriterion
	Partial   []models.RubricCriterion
	Remaining []models.RubricCriterion
	Scores    []models.CriterionScore
	Reason    string
}

// Evaluator turns judge verdicts into event bookkeeping. FallbackStatus is
// applied when the judge responds but its output cannot be parsed; the
// default keeps the event pending so the criteria are re-judged next turn.
type Evaluator struct {
	Judge          Judge
	FallbackStatus models.EventStatus
}

// NewEvaluator creates an evaluator with the pending fallback.
func NewEvaluator(judge Judge) *Evaluator {
	return &Evaluator{Judge: judge, FallbackStatus: models.StatusPending}
}

// Evaluate scores the action against the outstanding criteria.
//
// An empty action skips the judge and leaves everything outstanding. An empty
// criteria list passes immediately. A judge parse failure is absorbed into
// FallbackStatus; any other judge error aborts the turn.
func (e *Evaluator) Evaluate(ctx context.Context, action string, remaining []models.RubricCriterion) (*Outcome, error) {
	if len(remaining) == 0 {
		return &Outcome{
			Status:    models.StatusPass,
			Satisfied: []models.RubricCriterion{},
			Partial:   []models.RubricCriterion{},
			Remaining: []models.RubricCriterion{},
			Reason:    "no outstanding criteria",
		}, nil
	}

	if strings.TrimSpace(action) == "" {
		return &Outcome{
			Status:    models.StatusPending,
			Satisfied: []models.RubricCriterion{},
			Partial:   []models.RubricCriterion{},
			Remaining: append([]models.RubricCriterion(nil), remaining...),
			Reason:    "no learner action this turn",
		}, nil
	}

	verdicts, err := e.Judge.Judge(ctx, action, remaining)
	if err != nil {
		if apperrors.IsJudgeParseError(err) {
			return &Outcome{
				Status:    e.fallback(),
				Satisfied: []models.RubricCriterion{},
				Partial:   []models.RubricCriterion{},
				Remaining: append([]models.RubricCriterion(nil), remaining...),
				Reason:    "judge output unparseable, criteria unchanged",
			}, nil
		}
		return nil, err
	}

	return partition(remaining, verdicts), nil
}

func (e *Evaluator) fallback() models.EventStatus {
	if e.FallbackStatus == "" {
		return models.StatusPending
	}
	return e.FallbackStatus
}

// partition splits the outstanding criteria by verdict score. A criterion the
// judge did not mention counts as not met and stays outstanding.
func partition(remaining []models.RubricCriterion, verdicts []Verdict) *Outcome {
	byIndex := make(map[int]Verdict, len(verdicts))
	for _, verdict := range verdicts {
		byIndex[verdict.Index] = verdict
	}

	outcome := &Outcome{
		Satisfied: []models.RubricCriterion{},
		Partial:   []models.RubricCriterion{},
		Remaining: []models.RubricCriterion{},
		Scores:    []models.CriterionScore{},
	}

	for i, criterion := range remaining {
		verdict, ok := byIndex[i+1]
		if !ok {
			outcome.Remaining = append(outcome.Remaining, criterion)
			continue
		}

		outcome.Scores = append(outcome.Scores, models.CriterionScore{
			Criterion:     criterion.Description,
			Score:         verdict.Score,
			Justification: verdict.Justification,
		})

		switch {
		case verdict.Score >= satisfiedScore:
			outcome.Satisfied = append(outcome.Satisfied, criterion)
		case verdict.Score >= partialScore:
			outcome.Partial = append(outcome.Partial, criterion)
			outcome.Remaining = append(outcome.Remaining, criterion)
		default:
			outcome.Remaining = append(outcome.Remaining, criterion)
		}
	}

	switch {
	case len(outcome.Remaining) == 0:
		outcome.Status = models.StatusPass
		outcome.Reason = "all criteria satisfied"
	case len(outcome.Satisfied) > 0 || len(outcome.Partial) > 0:
		outcome.Status = models.StatusNeedsAttention
		outcome.Reason = "partial progress on criteria"
	default:
		outcome.Status = models.StatusPending
		outcome.Reason = "no criterion progressed"
	}
	return outcome
}
