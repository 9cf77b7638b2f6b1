// internal/chains/responder.go
package chains

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/medtrainlab/casesim/internal/errors"
	"github.com/medtrainlab/casesim/internal/llm"
	"github.com/medtrainlab/casesim/internal/models"
)

// ResponderInput is the turn material the facilitator reply is built from.
type ResponderInput struct {
	EventTitle     string
	Status         models.EventStatus
	SystemNotice   string
	UserAction     string
	Dialogue       []models.DialogueEntry
	Scores         []models.CriterionScore
	PolicyFlags    []models.PolicyFlag
	Personas       []*models.PersonaState
	Completed      []models.RubricCriterion
	Partial        []models.RubricCriterion
	RemainingCount int
	TurnCount      int
	MaxTurns       int
}

// ResponderChain composes the facilitator-voice reply that closes a turn.
type ResponderChain struct {
	Provider llm.Provider
	Model    string
}

const responderSystemPrompt = `You are the facilitator of a professional ` +
	`training simulation. Weave the characters' dialogue and the situation into ` +
	`one short reply to the learner, in second person, present tense. Quote the ` +
	`characters' lines verbatim where they spoke. Do not reveal scores, ` +
	`criteria, or internal bookkeeping. If a system notice is present, state ` +
	`its content plainly at the end.`

// Respond produces the learner-facing reply for the turn.
func (c *ResponderChain) Respond(ctx context.Context, in ResponderInput) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Event: %s (status: %s)\n", in.EventTitle, in.Status)
	if in.MaxTurns > 0 {
		fmt.Fprintf(&sb, "Turn %d of %d for this event.\n", in.TurnCount+1, in.MaxTurns)
	}
	if len(in.Personas) > 0 {
		sb.WriteString("\nCharacters present:\n")
		for _, persona := range in.Personas {
			fmt.Fprintf(&sb, "- %s (%s), currently %s\n", persona.Name, persona.Role, persona.Emotion)
		}
	}
	if in.UserAction != "" {
		fmt.Fprintf(&sb, "\nLearner action:\n%s\n", in.UserAction)
	}
	if len(in.Dialogue) > 0 {
		sb.WriteString("\nCharacter dialogue this turn:\n")
		for _, entry := range in.Dialogue {
			fmt.Fprintf(&sb, "%s: %s\n", entry.Speaker, entry.Content)
		}
	}
	if len(in.PolicyFlags) > 0 {
		sb.WriteString("\nPolicy concerns raised by the action:\n")
		for _, flag := range in.PolicyFlags {
			fmt.Fprintf(&sb, "- %s\n", flag.PolicyText)
		}
	}
	if len(in.Completed) > 0 {
		sb.WriteString("\nObjectives the learner has already met:\n")
		for _, criterion := range in.Completed {
			fmt.Fprintf(&sb, "- %s\n", criterion.Description)
		}
	}
	if len(in.Partial) > 0 {
		sb.WriteString("\nObjectives the learner has partly addressed:\n")
		for _, criterion := range in.Partial {
			fmt.Fprintf(&sb, "- %s\n", criterion.Description)
		}
	}
	if in.RemainingCount > 0 {
		fmt.Fprintf(&sb, "\nThe learner still has %d objective(s) open in this event. "+
			"Hint at the open ground without naming the objectives.\n", in.RemainingCount)
	}
	if in.SystemNotice != "" {
		fmt.Fprintf(&sb, "\nSystem notice to relay:\n%s\n", in.SystemNotice)
	}
	sb.WriteString("\nWrite the facilitator reply.")

	resp, err := c.Provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       sb.String(),
		SystemPrompt: responderSystemPrompt,
		Model:        c.Model,
		Temperature:  0.6,
	})
	if err != nil {
		return "", apperrors.NewExternalCapabilityError("responder call failed", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
