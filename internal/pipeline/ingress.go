// internal/pipeline/ingress.go
package pipeline

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/medtrainlab/casesim/internal/errors"
	"github.com/medtrainlab/casesim/internal/models"
)

// ingressStage normalizes the turn input, applies resets and explicit event
// jumps, and clears the previous turn's outputs.
type ingressStage struct{}

func (s *ingressStage) Name() string { return "ingress" }

func (s *ingressStage) Run(_ context.Context, turn *Turn) error {
	action := strings.TrimSpace(turn.Input.UserAction)
	start := turn.Input.StartEvent

	switch {
	case turn.Input.Reset || turn.State == nil:
		if start == "" {
			start = turn.Scenario.FirstEvent()
		}
		if turn.Scenario.Event(start) == nil {
			return apperrors.NewValidationError(
				fmt.Sprintf("unknown start event %q", start), nil)
		}
		turn.State = models.InitializeState(turn.Scenario, start)

	case start != "" && start != turn.State.CurrentEvent:
		// Jump to the requested event. Per-event budget and dialogue start
		// over, but progress already banked on other events survives.
		target := turn.Scenario.Event(start)
		if target == nil {
			return apperrors.NewValidationError(
				fmt.Sprintf("unknown start event %q", start), nil)
		}
		moveTo(turn.State, target)
		turn.State.DialogueHistory = []models.DialogueEntry{}
	}

	if turn.Scenario.Event(turn.State.CurrentEvent) == nil {
		return apperrors.NewProcessingError(
			fmt.Sprintf("state points at unknown event %q", turn.State.CurrentEvent), nil)
	}

	turn.State.UserAction = action
	turn.State.AIReply = ""
	turn.State.SystemNotice = ""
	turn.State.PolicyFlags = []models.PolicyFlag{}

	if action != "" {
		turn.State.DialogueHistory = appendDialogue(turn.State.DialogueHistory, models.DialogueEntry{
			Speaker: "learner",
			Content: action,
		})
	}
	return nil
}
