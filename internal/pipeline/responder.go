// internal/pipeline/responder.go
package pipeline

import (
	"context"

	"github.com/medtrainlab/casesim/internal/chains"
)

// responderStage composes the learner-facing reply and advances the turn
// counter. Turns that carry a system notice (timeout restarts, resets) do
// not count against the event budget.
type responderStage struct {
	responder Responder
}

func (s *responderStage) Name() string { return "responder" }

func (s *responderStage) Run(ctx context.Context, turn *Turn) error {
	state := turn.State
	event := turn.Scenario.Event(state.CurrentEvent)

	input := chains.ResponderInput{
		EventTitle:   event.Title,
		SystemNotice: state.SystemNotice,
		UserAction:   state.UserAction,
		Dialogue:     state.LastPersonaDialogue,
		PolicyFlags:  state.PolicyFlags,
		Personas:     presentPersonas(turn),
		TurnCount:    state.TurnCount,
		MaxTurns:     state.MaxTurns,
	}
	if turn.evaluated != nil {
		input.Status = turn.evaluated.Status
		input.Scores = turn.evaluated.Scores
		input.RemainingCount = len(turn.evaluated.Remaining)
	}
	if progress, ok := state.EventSummary[turn.evaluatedEvent]; ok {
		input.Completed = progress.Completed
		input.Partial = progress.Partial
	}

	reply, err := s.responder.Respond(ctx, input)
	if err != nil {
		return err
	}
	state.AIReply = reply

	if state.SystemNotice == "" {
		state.TurnCount++
	}
	return nil
}
