// internal/pipeline/scene.go
package pipeline

import (
	"context"
	"sort"

	"github.com/medtrainlab/casesim/internal/chains"
	"github.com/medtrainlab/casesim/internal/models"
)

// sceneStage activates the current event's personas and refreshes the scene
// summary from the semantic index.
type sceneStage struct {
	scene    SceneSummarizer
	personas DialogueGenerator
}

func (s *sceneStage) Name() string { return "scene_semantic" }

func (s *sceneStage) Run(ctx context.Context, turn *Turn) error {
	state := turn.State
	event := turn.Scenario.Event(state.CurrentEvent)

	if err := s.activatePersonas(ctx, turn, event); err != nil {
		return err
	}

	summary, err := s.scene.Summarize(ctx, chains.SceneInput{
		CaseID:           state.CaseID,
		EventID:          event.ID,
		EventTitle:       event.Title,
		EventDescription: event.Description,
		PreviousSummary:  state.SceneSummary,
		SameEvent:        state.LastSceneEvent == event.ID,
		UserAction:       state.UserAction,
	})
	if err != nil {
		return err
	}

	state.SceneSummary = summary
	state.LastSceneEvent = event.ID
	return nil
}

// activatePersonas makes sure every NPC scripted for the event exists in the
// session, seeding fresh ones with their authored initial emotion and the
// default trust, and fetching profiles for the newcomers in one digest call.
func (s *sceneStage) activatePersonas(ctx context.Context, turn *Turn, event *models.CanonEvent) error {
	state := turn.State

	var fresh []*models.PersonaState
	for _, appearance := range event.NPCAppearance {
		if _, active := state.ActivePersonas[appearance.PersonaID]; active {
			continue
		}
		template := turn.Scenario.Persona(appearance.PersonaID)
		if template == nil {
			continue
		}

		emotion := template.EmotionInit
		if emotion == "" {
			emotion = "neutral"
		}
		role := appearance.Role
		if role == "" {
			role = template.Role
		}
		persona := &models.PersonaState{
			ID:      template.ID,
			Name:    template.Name,
			Role:    role,
			Emotion: emotion,
			Trust:   turn.Options.InitialTrust,
		}
		state.ActivePersonas[persona.ID] = persona
		fresh = append(fresh, persona)
	}

	if len(fresh) == 0 {
		return nil
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })
	digests, err := s.personas.Digest(ctx, state.CaseID, fresh)
	if err != nil {
		return err
	}
	for _, persona := range fresh {
		persona.Profile = digests[persona.ID]
	}
	return nil
}

// presentPersonas returns the current event's active personas in stable id
// order.
func presentPersonas(turn *Turn) []*models.PersonaState {
	event := turn.Scenario.Event(turn.State.CurrentEvent)
	if event == nil {
		return nil
	}

	var present []*models.PersonaState
	for _, appearance := range event.NPCAppearance {
		if persona, ok := turn.State.ActivePersonas[appearance.PersonaID]; ok {
			present = append(present, persona)
		}
	}
	sort.Slice(present, func(i, j int) bool { return present[i].ID < present[j].ID })
	return present
}
