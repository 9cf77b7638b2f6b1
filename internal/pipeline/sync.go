// internal/pipeline/sync.go
package pipeline

import (
	"context"

	"github.com/medtrainlab/casesim/internal/models"
)

// syncStage settles the turn's side effects on the state before it is
// handed back for persistence. The learner action is consumed here, and
// policy flags charge their trust cost against the active personas.
type syncStage struct{}

func (s *syncStage) Name() string { return "state_sync" }

func (s *syncStage) Run(_ context.Context, turn *Turn) error {
	state := turn.State
	event := turn.Scenario.Event(state.CurrentEvent)

	state.MaxTurns = event.TimeoutTurn
	state.Progress(state.CurrentEvent)
	state.UserAction = ""

	applyTrustPenalty(turn)
	for _, persona := range state.ActivePersonas {
		if persona.Trust < 0 {
			persona.Trust = 0
		}
		if persona.Trust > 1 {
			persona.Trust = 1
		}
	}

	if limit := turn.Options.MaxHistory; limit > 0 && len(state.DialogueHistory) > limit {
		trimmed := make([]models.DialogueEntry, limit)
		copy(trimmed, state.DialogueHistory[len(state.DialogueHistory)-limit:])
		state.DialogueHistory = trimmed
	}
	return nil
}

// applyTrustPenalty decays every active persona's trust by the penalty per
// policy flag. Personas dropping below the distress threshold turn
// distressed.
func applyTrustPenalty(turn *Turn) {
	flagged := len(turn.State.PolicyFlags)
	if flagged == 0 {
		return
	}

	penalty := turn.Options.TrustPenalty * float64(flagged)
	for _, persona := range turn.State.ActivePersonas {
		persona.Trust -= penalty
		if persona.Trust < turn.Options.DistressThreshold {
			persona.Emotion = "distressed"
		}
	}
}

// egressStage projects the finished state into the outward turn result.
// Status reports the outcome of the event the action was judged against,
// while CurrentEvent may already point at the next one.
type egressStage struct{}

func (s *egressStage) Name() string { return "egress" }

func (s *egressStage) Run(_ context.Context, turn *Turn) error {
	state := turn.State
	event := turn.Scenario.Event(state.CurrentEvent)

	result := turn.Result
	result.Reply = state.AIReply
	result.SystemNotice = state.SystemNotice
	result.CurrentEvent = state.CurrentEvent
	result.EventTitle = event.Title
	result.TurnCount = state.TurnCount
	result.Dialogue = append([]models.DialogueEntry{}, state.LastPersonaDialogue...)
	result.PolicyFlags = append([]models.PolicyFlag{}, state.PolicyFlags...)

	result.Status = models.StatusPending
	if turn.evaluated != nil {
		result.Status = turn.evaluated.Status
		result.Scores = turn.evaluated.Scores
	}
	if progress, ok := state.EventSummary[state.CurrentEvent]; ok && turn.evaluated == nil {
		result.Status = progress.Status
	}
	return nil
}
