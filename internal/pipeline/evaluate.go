// internal/pipeline/evaluate.go
package pipeline

import (
	"context"

	"github.com/medtrainlab/casesim/internal/models"
)

// evaluateStage scores the learner action against the current event's
// outstanding criteria.
type evaluateStage struct {
	evaluator Evaluator
}

func (s *evaluateStage) Name() string { return "action_evaluation" }

func (s *evaluateStage) Run(ctx context.Context, turn *Turn) error {
	state := turn.State
	progress := state.Progress(state.CurrentEvent)

	outcome, err := s.evaluator.Evaluate(ctx, state.UserAction, progress.Remaining)
	if err != nil {
		return err
	}

	previous := progress.Status
	progress.Remaining = outcome.Remaining
	progress.Partial = outcome.Partial
	// Satisfied criteria left Remaining for good; completion is monotonic.
	progress.Completed = append(progress.Completed, outcome.Satisfied...)
	if outcome.Scores != nil {
		progress.Scores = outcome.Scores
	}
	progress.Status = outcome.Status
	progress.LastResult = string(outcome.Status)
	progress.Reason = outcome.Reason

	turn.evaluated = outcome
	turn.evaluatedEvent = state.CurrentEvent
	turn.freshPass = outcome.Status == models.StatusPass && previous != models.StatusPass
	return nil
}
