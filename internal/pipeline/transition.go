// internal/pipeline/transition.go
package pipeline

import (
	"context"
	"fmt"

	"github.com/medtrainlab/casesim/internal/models"
)

// transitionStage advances the event state machine. Timeout outranks
// success; anything else stays put.
type transitionStage struct{}

func (s *transitionStage) Name() string { return "transition" }

func (s *transitionStage) Run(_ context.Context, turn *Turn) error {
	state := turn.State
	event := turn.Scenario.Event(state.CurrentEvent)
	progress := state.Progress(state.CurrentEvent)

	if timedOut(state, event, progress) {
		s.failAndRetry(turn, event, progress)
		return nil
	}

	if progress.Status == models.StatusPass {
		s.advance(turn, event)
	}
	return nil
}

// timedOut reports whether the event's budget is already spent without a
// pass. The counter holds completed prior turns, so the budgeted number of
// actions all get judged before the timeout fires. TimeoutTurn of zero means
// no budget.
func timedOut(state *models.RuntimeState, event *models.CanonEvent, progress *models.EventProgress) bool {
	if event.TimeoutTurn <= 0 || progress.Status == models.StatusPass {
		return false
	}
	return state.TurnCount >= event.TimeoutTurn
}

// failAndRetry marks the event failed and restarts the session at the
// event's fail target, or the scenario's first event when none is set. Both
// the failed event and the retry target start over with their full criteria
// outstanding.
func (s *transitionStage) failAndRetry(turn *Turn, event *models.CanonEvent, progress *models.EventProgress) {
	state := turn.State

	progress.Status = models.StatusFail
	progress.LastResult = string(models.StatusFail)
	progress.Reason = "turn budget exhausted"
	progress.Remaining = append([]models.RubricCriterion{}, event.SuccessCriteria...)
	progress.Completed = []models.RubricCriterion{}
	progress.Partial = []models.RubricCriterion{}
	if turn.evaluated != nil {
		turn.evaluated.Status = models.StatusFail
	}

	targetID := event.OnFail
	if turn.Scenario.Event(targetID) == nil {
		targetID = turn.Scenario.FirstEvent()
	}
	target := turn.Scenario.Event(targetID)

	state.EventSummary[targetID] = models.NewEventProgress(target)
	moveTo(state, target)
	state.SystemNotice = fmt.Sprintf("Time ran out during %q. The scenario restarts at %q.",
		event.Title, target.Title)
}

// advance moves to the success target without a notice, so the hop turn
// still counts against the new event's budget. An event with no target is
// terminal: the session stays there and a conclusion notice goes out once.
func (s *transitionStage) advance(turn *Turn, event *models.CanonEvent) {
	state := turn.State

	target := turn.Scenario.Event(event.OnSuccess)
	if target == nil {
		if turn.freshPass {
			state.SystemNotice = fmt.Sprintf("Objective reached. %q concludes the scenario.", event.Title)
		}
		return
	}

	moveTo(state, target)
}

// moveTo repositions the session at an event, seeding its bookkeeping when
// unseen and resetting the per-event turn budget and continuity markers.
func moveTo(state *models.RuntimeState, event *models.CanonEvent) {
	state.CurrentEvent = event.ID
	state.MaxTurns = event.TimeoutTurn
	state.TurnCount = 0
	state.LastSceneEvent = ""
	state.LastPersonaDialogue = nil
	if _, ok := state.EventSummary[event.ID]; !ok {
		state.EventSummary[event.ID] = models.NewEventProgress(event)
	}
}
