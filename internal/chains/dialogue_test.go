// internal/chains/dialogue_test.go
package chains

import (
	"testing"

	"github.com/medtrainlab/casesim/internal/models"
)

func testPersonas() []*models.PersonaState {
	return []*models.PersonaState{
		{ID: "nurse_kim", Name: "Nurse Kim"},
		{ID: "dr_ortiz", Name: "Dr. Ortiz"},
	}
}

func TestParseDialogueJSONArray(t *testing.T) {
	raw := `[{"speaker":"Nurse Kim","content":"Over here."},{"speaker":"Dr. Ortiz","content":"On my way."}]`
	entries := ParseDialogue(raw, testPersonas())

	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].PersonaID != "nurse_kim" {
		t.Errorf("entry 0 persona = %q, want nurse_kim", entries[0].PersonaID)
	}
	if entries[1].Content != "On my way." {
		t.Errorf("entry 1 content = %q", entries[1].Content)
	}
}

func TestParseDialogueAlternateKeysAndFences(t *testing.T) {
	raw := "```json\n[{\"name\":\"Nurse Kim\",\"text\":\"Busy night.\"}]\n```"
	entries := ParseDialogue(raw, testPersonas())

	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Speaker != "Nurse Kim" || entries[0].Content != "Busy night." {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestParseDialogueSingleObject(t *testing.T) {
	raw := `{"speaker":"Nurse Kim","content":"Just me tonight."}`
	entries := ParseDialogue(raw, testPersonas())
	if len(entries) != 1 || entries[0].PersonaID != "nurse_kim" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestParseDialogueLineFallback(t *testing.T) {
	raw := "Nurse Kim: The family is outside.\n- Dr. Ortiz: Keep them there for now.\nstage direction without a speaker"
	entries := ParseDialogue(raw, testPersonas())

	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[1].PersonaID != "dr_ortiz" {
		t.Errorf("entry 1 persona = %q, want dr_ortiz", entries[1].PersonaID)
	}
}

func TestParseDialogueUnknownSpeakerKeepsLine(t *testing.T) {
	raw := `[{"speaker":"Paramedic","content":"We found him on the floor."}]`
	entries := ParseDialogue(raw, testPersonas())

	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].PersonaID != "" {
		t.Errorf("persona id = %q, want empty for an unmapped speaker", entries[0].PersonaID)
	}
}

func TestParseDialogueGarbageYieldsNothing(t *testing.T) {
	for _, raw := range []string{"", "   ", "no dialogue here", "{{{"} {
		if entries := ParseDialogue(raw, testPersonas()); len(entries) != 0 {
			t.Errorf("ParseDialogue(%q) = %+v, want empty", raw, entries)
		}
	}
}
