// internal/pipeline/dialogue.go
package pipeline

import (
	"context"

	"github.com/medtrainlab/casesim/internal/chains"
	"github.com/medtrainlab/casesim/internal/models"
)

// dialogueStage lets the present personas react to the learner's action.
type dialogueStage struct {
	personas DialogueGenerator
}

func (s *dialogueStage) Name() string { return "persona_dialogue" }

func (s *dialogueStage) Run(ctx context.Context, turn *Turn) error {
	state := turn.State
	event := turn.Scenario.Event(state.CurrentEvent)
	present := presentPersonas(turn)

	// Personas only answer the learner. A silent turn produces no dialogue.
	if state.UserAction == "" || len(present) == 0 {
		state.LastPersonaDialogue = []models.DialogueEntry{}
		return nil
	}

	entries, err := s.personas.React(ctx, chains.DialogueInput{
		CaseID:           state.CaseID,
		EventTitle:       event.Title,
		EventDescription: event.Description,
		SceneSummary:     state.SceneSummary,
		UserAction:       state.UserAction,
		Personas:         present,
		History:          historyWindow(state.DialogueHistory, turn.Options.HistoryWindow),
	})
	if err != nil {
		return err
	}

	state.LastPersonaDialogue = entries
	state.DialogueHistory = appendDialogue(state.DialogueHistory, entries...)
	return nil
}

// historyWindow returns the trailing window of the dialogue history.
func historyWindow(history []models.DialogueEntry, window int) []models.DialogueEntry {
	if window <= 0 || len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}

// appendDialogue appends entries to the history, dropping any line that
// repeats the immediately preceding one verbatim.
func appendDialogue(history []models.DialogueEntry, entries ...models.DialogueEntry) []models.DialogueEntry {
	for _, entry := range entries {
		if n := len(history); n > 0 {
			last := history[n-1]
			if last.Speaker == entry.Speaker && last.Content == entry.Content {
				continue
			}
		}
		history = append(history, entry)
	}
	return history
}
