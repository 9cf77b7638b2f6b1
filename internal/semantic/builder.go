// internal/semantic/builder.go
package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/medtrainlab/casesim/internal/models"
)

// BuildDocuments converts a scenario into the document groups the index
// serves: scene framing + canon events, persona profiles, and policy
// passages.
func BuildDocuments(scenario *models.ScenarioDefinition) map[string][]Document {
	sceneDocs := buildContextDocuments(scenario)
	sceneDocs = append(sceneDocs, buildEventDocuments(scenario)...)

	return map[string][]Document{
		KindScene:   sceneDocs,
		KindPersona: buildPersonaDocuments(scenario),
		KindPolicy:  buildPolicyDocuments(scenario),
	}
}

// Rebuild drops and re-indexes the whole case namespace.
func (idx *Index) Rebuild(ctx context.Context, scenario *models.ScenarioDefinition) error {
	if err := idx.Reset(ctx, scenario.CaseID); err != nil {
		return fmt.Errorf("reset namespace %s: %w", scenario.CaseID, err)
	}
	for kind, docs := range BuildDocuments(scenario) {
		if err := idx.Add(ctx, scenario.CaseID, kind, docs); err != nil {
			return fmt.Errorf("index %s documents: %w", kind, err)
		}
	}
	return nil
}

func buildContextDocuments(scenario *models.ScenarioDefinition) []Document {
	sceneCtx := scenario.Context
	caseID := scenario.CaseID

	var resourceLines []string
	for group, items := range sceneCtx.AvailableResources {
		resourceLines = append(resourceLines, fmt.Sprintf("%s: %s", group, strings.Join(items, ", ")))
	}

	docs := []Document{
		{
			Text: fmt.Sprintf("Case %s setting: time %s, weather %s, location %s, noise level %s.",
				caseID,
				valueOr(sceneCtx.Scene["time"], "unknown"),
				valueOr(sceneCtx.Scene["weather"], "unknown"),
				valueOr(sceneCtx.Scene["location"], "unknown"),
				valueOr(sceneCtx.Scene["noise_level"], "unknown")),
			Metadata: map[string]string{"type": "scene", "case_id": caseID},
		},
		{
			Text: fmt.Sprintf("Index event: %s. Current state: %s. First on scene: %s.",
				valueOr(sceneCtx.IndexEvent["summary"], "N/A"),
				valueOr(sceneCtx.IndexEvent["current_state"], "N/A"),
				valueOr(sceneCtx.IndexEvent["who_first_on_scene"], "N/A")),
			Metadata: map[string]string{"type": "index_event", "case_id": caseID},
		},
		{
			Text:     "Available resources: " + valueOr(strings.Join(resourceLines, "; "), "unknown."),
			Metadata: map[string]string{"type": "available_resources", "case_id": caseID},
		},
	}

	if len(sceneCtx.Constraints) > 0 {
		docs = append(docs, Document{
			Text:     "Scene constraints: " + strings.Join(sceneCtx.Constraints, "; "),
			Metadata: map[string]string{"type": "constraints", "case_id": caseID},
		})
	}
	if sceneCtx.SuccessEndState != "" {
		docs = append(docs, Document{
			Text:     "Expected success end state: " + sceneCtx.SuccessEndState,
			Metadata: map[string]string{"type": "success_end_state", "case_id": caseID},
		})
	}

	return docs
}

func buildEventDocuments(scenario *models.ScenarioDefinition) []Document {
	var docs []Document
	for _, eventID := range scenario.EventSequence {
		event := scenario.Event(eventID)
		if event == nil {
			continue
		}

		var criteria []string
		for _, criterion := range event.SuccessCriteria {
			criteria = append(criteria, criterion.Description)
		}
		var npcs []string
		for _, appearance := range event.NPCAppearance {
			npcs = append(npcs, fmt.Sprintf("%s (%s)", appearance.PersonaID, appearance.Role))
		}

		docs = append(docs, Document{
			Text: fmt.Sprintf("Canon event %s: %s. Description: %s. Success criteria: %s. NPCs present: %s. Turn budget: %d.",
				event.ID,
				valueOr(event.Title, "untitled"),
				valueOr(event.Description, "none"),
				valueOr(strings.Join(criteria, ", "), "unknown"),
				valueOr(strings.Join(npcs, ", "), "none"),
				event.TimeoutTurn),
			Metadata: map[string]string{"type": "canon_event", "case_id": scenario.CaseID, "event_id": event.ID},
		})
	}
	return docs
}

func buildPersonaDocuments(scenario *models.ScenarioDefinition) []Document {
	var docs []Document
	for _, persona := range scenario.Personas {
		emotions := make([]string, 0, len(persona.EmotionDuring)+2)
		if persona.EmotionInit != "" {
			emotions = append(emotions, persona.EmotionInit)
		}
		emotions = append(emotions, persona.EmotionDuring...)
		if persona.EmotionEnd != "" {
			emotions = append(emotions, persona.EmotionEnd)
		}

		docs = append(docs, Document{
			Text: fmt.Sprintf("Persona %s - %s (%s). Age: %s; Gender: %s. Background: %s. Personality: %s. Goal: %s. Speech pattern: %s. Emotions: %s.",
				persona.ID,
				valueOr(persona.Name, "anonymous"),
				valueOr(persona.Role, "unknown role"),
				valueOr(persona.Age, "unknown"),
				valueOr(persona.Gender, "unknown"),
				valueOr(persona.Background, "unknown"),
				valueOr(persona.Personality, "unknown"),
				valueOr(persona.Goal, "unknown"),
				valueOr(persona.SpeechPattern, "unknown"),
				valueOr(strings.Join(emotions, ", "), "unknown")),
			Metadata: map[string]string{
				"type":       "persona",
				"case_id":    scenario.CaseID,
				"persona_id": persona.ID,
				"voice_tags": strings.Join(persona.VoiceTags, ", "),
			},
		})
	}
	return docs
}

func buildPolicyDocuments(scenario *models.ScenarioDefinition) []Document {
	var docs []Document
	for i, policy := range scenario.Context.Policies {
		if policy == "" {
			continue
		}
		docs = append(docs, Document{
			Text: policy,
			Metadata: map[string]string{
				"type":      "policy",
				"case_id":   scenario.CaseID,
				"policy_id": fmt.Sprintf("policy_%d", i+1),
			},
		})
	}
	return docs
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
