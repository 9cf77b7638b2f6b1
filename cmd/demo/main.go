// cmd/demo/main.go
//
// Runs a short scripted session against a built-in scenario with canned
// capabilities instead of live LLM calls. Useful for trying the turn engine
// without any credentials.
package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/medtrainlab/casesim/internal/chains"
	"github.com/medtrainlab/casesim/internal/models"
	"github.com/medtrainlab/casesim/internal/pipeline"
	"github.com/medtrainlab/casesim/internal/rubric"
	"github.com/medtrainlab/casesim/internal/semantic"
	"github.com/medtrainlab/casesim/internal/session"
	"github.com/medtrainlab/casesim/internal/storage"
)

func main() {
	store := storage.NewMemoryStore()
	deps := pipeline.Deps{
		Scene:     scriptedScene{},
		Personas:  scriptedPersonas{},
		Responder: scriptedResponder{},
		Evaluator: rubric.NewEvaluator(keywordJudge{}),
		Searcher:  keywordSearcher{},
	}

	sessions := session.NewManager(builtinLoader{}, deps, pipeline.Options{}, store, store)

	ctx := context.Background()
	sess, err := sessions.Create(ctx, "demo-case", "")
	if err != nil {
		log.Fatalf("create session: %v", err)
	}
	fmt.Printf("session %s started at event %s\n\n", sess.ID, sess.State().CurrentEvent)

	actions := []string{
		"I introduce myself to the charge nurse and ask for a quick report.",
		"I shout at everyone to clear the room immediately.",
		"I check the patient's airway and start high-flow oxygen.",
	}
	for _, action := range actions {
		result, err := sess.RunTurn(ctx, pipeline.TurnInput{UserAction: action})
		if err != nil {
			log.Fatalf("turn failed: %v", err)
		}

		fmt.Printf("> %s\n", action)
		for _, line := range result.Dialogue {
			fmt.Printf("  %s: %s\n", line.Speaker, line.Content)
		}
		fmt.Printf("  [%s @ %s, turn %d] %s\n", result.Status, result.CurrentEvent, result.TurnCount, result.Reply)
		if result.SystemNotice != "" {
			fmt.Printf("  ** %s\n", result.SystemNotice)
		}
		fmt.Println()
	}
}

// builtinLoader serves the single embedded demo scenario.
type builtinLoader struct{}

func (builtinLoader) Load(_ context.Context, caseID string) (*models.ScenarioDefinition, error) {
	intro := &models.CanonEvent{
		ID:          "ce1",
		Title:       "Arrival and handover",
		Description: "The trainee arrives at a crowded emergency bay and must take handover.",
		SuccessCriteria: []models.RubricCriterion{
			{Description: "Introduces themselves and requests a structured report"},
		},
		NPCAppearance: []models.NPCAppearance{{PersonaID: "nurse_kim"}},
		TimeoutTurn:   4,
		OnSuccess:     "ce2",
	}
	airway := &models.CanonEvent{
		ID:          "ce2",
		Title:       "Primary survey",
		Description: "The patient is deteriorating; the airway needs assessment.",
		SuccessCriteria: []models.RubricCriterion{
			{Description: "Assesses the airway"},
			{Description: "Applies oxygen"},
		},
		NPCAppearance: []models.NPCAppearance{{PersonaID: "nurse_kim"}},
		TimeoutTurn:   5,
		OnFail:        "ce1",
	}

	return &models.ScenarioDefinition{
		CaseID:        caseID,
		Events:        map[string]*models.CanonEvent{"ce1": intro, "ce2": airway},
		EventSequence: []string{"ce1", "ce2"},
		Personas: map[string]*models.PersonaTemplate{
			"nurse_kim": {
				ID: "nurse_kim", Name: "Nurse Kim", Role: "charge nurse",
				EmotionInit: "stressed", Personality: "brisk but fair",
			},
		},
		Context: models.SceneContext{
			Policies: []string{"Do not raise your voice at staff or bystanders."},
		},
	}, nil
}

type scriptedScene struct{}

func (scriptedScene) Summarize(_ context.Context, in chains.SceneInput) (string, error) {
	return fmt.Sprintf("You are in the middle of %q. %s", in.EventTitle, in.EventDescription), nil
}

type scriptedPersonas struct{}

func (scriptedPersonas) Digest(_ context.Context, _ string, personas []*models.PersonaState) (map[string]string, error) {
	digests := make(map[string]string, len(personas))
	for _, persona := range personas {
		digests[persona.ID] = fmt.Sprintf("%s, the %s on duty", persona.Name, persona.Role)
	}
	return digests, nil
}

func (scriptedPersonas) React(_ context.Context, in chains.DialogueInput) ([]models.DialogueEntry, error) {
	entries := make([]models.DialogueEntry, 0, len(in.Personas))
	for _, persona := range in.Personas {
		line := "Understood. What do you need from me?"
		if persona.Emotion == "distressed" {
			line = "Please stop shouting. This is not helping."
		}
		entries = append(entries, models.DialogueEntry{
			Speaker: persona.Name, Content: line, PersonaID: persona.ID,
		})
	}
	return entries, nil
}

type scriptedResponder struct{}

func (scriptedResponder) Respond(_ context.Context, in chains.ResponderInput) (string, error) {
	switch {
	case in.Status == models.StatusPass:
		return "Well handled. The situation moves forward.", nil
	case len(in.PolicyFlags) > 0:
		return "The room tenses at your tone. Consider how you address the team.", nil
	default:
		return "The team waits for your next move.", nil
	}
}

// keywordJudge scores a criterion 5 when the action mentions one of its key
// words, 1 otherwise. Crude, but deterministic for the demo.
type keywordJudge struct{}

func (keywordJudge) Judge(_ context.Context, action string, criteria []models.RubricCriterion) ([]rubric.Verdict, error) {
	lowered := strings.ToLower(action)
	verdicts := make([]rubric.Verdict, 0, len(criteria))
	for i, criterion := range criteria {
		score := 1
		for _, word := range strings.Fields(strings.ToLower(criterion.Description)) {
			if len(word) > 4 && strings.Contains(lowered, strings.Trim(word, ".,")) {
				score = 5
				break
			}
		}
		verdicts = append(verdicts, rubric.Verdict{Index: i + 1, Score: score})
	}
	return verdicts, nil
}

// keywordSearcher flags the no-shouting policy when the action shouts.
type keywordSearcher struct{}

func (keywordSearcher) Search(_ context.Context, caseID, kind, query string, _ int) ([]semantic.Match, error) {
	if kind == semantic.KindPolicy && strings.Contains(strings.ToLower(query), "shout") {
		return []semantic.Match{{
			Document: semantic.Document{
				Text:     "Do not raise your voice at staff or bystanders.",
				Metadata: map[string]string{"policy_id": "policy_1", "case_id": caseID},
			},
			Score: 0.9,
		}}, nil
	}
	return nil, nil
}
