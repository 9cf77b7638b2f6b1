// internal/scenario/file_loader_test.go
package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/medtrainlab/casesim/internal/errors"
)

const caseJSON = `{
	"case_id": "demo-case",
	"canon_events": [
		{
			"id": "ce1",
			"title": "Handover",
			"description": "take the report",
			"success_criteria": [
				{
					"description": "requests a structured report",
					"levels": [
						{"score": 5, "descriptor": "full structured handover requested"},
						{"score": 3, "descriptor": "asks generally what happened"},
						{"score": 1, "descriptor": "does not engage"}
					]
				}
			],
			"npc_appearance": [{"persona_id": "p1", "role": "charge nurse"}],
			"timeout_turn": 4,
			"on_success": "ce2"
		},
		{"id": "ce2", "title": "Primary survey", "success_criteria": [], "on_fail": "ce1"}
	],
	"personas": [
		{"id": "p1", "name": "Nurse Kim", "role": "charge nurse", "emotion_init": "stressed"}
	],
	"initial_context": {
		"scene": {"location": "emergency bay"},
		"policies_safety_legal": ["No shouting."]
	}
}`

func writeCase(t *testing.T, dir, caseID, payload string) {
	t.Helper()
	caseDir := filepath.Join(dir, caseID)
	if err := os.MkdirAll(caseDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(caseDir, "case.json"), []byte(payload), 0644); err != nil {
		t.Fatalf("write case: %v", err)
	}
}

func TestFileLoaderLoadsDefinition(t *testing.T) {
	dir := t.TempDir()
	writeCase(t, dir, "demo-case", caseJSON)

	def, err := NewFileLoader(dir).Load(context.Background(), "demo-case")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if def.CaseID != "demo-case" {
		t.Errorf("case id = %q", def.CaseID)
	}
	if def.FirstEvent() != "ce1" {
		t.Errorf("first event = %q, want ce1", def.FirstEvent())
	}
	if len(def.EventSequence) != 2 || len(def.Events) != 2 {
		t.Errorf("events = %d in sequence, %d in map; want 2/2", len(def.EventSequence), len(def.Events))
	}

	event := def.Event("ce1")
	if event == nil || event.TimeoutTurn != 4 || event.OnSuccess != "ce2" {
		t.Fatalf("ce1 = %+v", event)
	}
	if len(event.SuccessCriteria) != 1 {
		t.Fatalf("criteria = %d, want 1", len(event.SuccessCriteria))
	}
	if got := event.SuccessCriteria[0].LevelDescriptor(3); got != "asks generally what happened" {
		t.Errorf("level 3 descriptor = %q", got)
	}

	persona := def.Persona("p1")
	if persona == nil || persona.EmotionInit != "stressed" {
		t.Errorf("persona = %+v", persona)
	}
	if len(def.Context.Policies) != 1 {
		t.Errorf("policies = %d, want 1", len(def.Context.Policies))
	}
}

func TestFileLoaderMissingCaseIsNotFound(t *testing.T) {
	_, err := NewFileLoader(t.TempDir()).Load(context.Background(), "absent")
	if !apperrors.IsNotFoundError(err) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestFileLoaderRejectsCaseWithoutEvents(t *testing.T) {
	dir := t.TempDir()
	writeCase(t, dir, "empty-case", `{"case_id": "empty-case", "canon_events": []}`)

	_, err := NewFileLoader(dir).Load(context.Background(), "empty-case")
	if err == nil {
		t.Fatal("expected an error for a case without events")
	}
}
