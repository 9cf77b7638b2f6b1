// internal/storage/memory_store_test.go
package storage

import (
	"context"
	"testing"

	"github.com/medtrainlab/casesim/internal/models"
)

func TestMemoryStoreLoadAbsentSession(t *testing.T) {
	store := NewMemoryStore()
	state, err := store.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state != nil {
		t.Errorf("state = %+v, want nil for an absent session", state)
	}
}

func TestMemoryStoreIsolatesStoredState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	state := &models.RuntimeState{
		CaseID:       "case-1",
		CurrentEvent: "ce1",
		ActivePersonas: map[string]*models.PersonaState{
			"p1": {ID: "p1", Trust: 0.5},
		},
		EventSummary: map[string]*models.EventProgress{},
	}
	if err := store.Save(ctx, "s1", state); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	state.ActivePersonas["p1"].Trust = 0

	loaded, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ActivePersonas["p1"].Trust != 0.5 {
		t.Error("stored state shares memory with the saved value")
	}

	// And mutating a loaded copy must not leak either.
	loaded.ActivePersonas["p1"].Trust = 1
	again, _ := store.Load(ctx, "s1")
	if again.ActivePersonas["p1"].Trust != 0.5 {
		t.Error("stored state shares memory with a loaded value")
	}
}

func TestMemoryStoreTurnLog(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i, action := range []string{"first", "second"} {
		err := store.AppendTurn(ctx, TurnLog{SessionID: "s1", UserAction: action, TurnCount: i + 1})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	store.AppendTurn(ctx, TurnLog{SessionID: "other", UserAction: "elsewhere"})

	logs, err := store.ListTurns(ctx, "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 || logs[0].UserAction != "first" || logs[1].UserAction != "second" {
		t.Errorf("logs = %+v, want the two s1 turns in order", logs)
	}
}

func TestSnapshotTurnReflectsCurrentEvent(t *testing.T) {
	state := &models.RuntimeState{
		CaseID:       "case-1",
		CurrentEvent: "ce2",
		TurnCount:    3,
		AIReply:      "reply",
		SystemNotice: "notice",
		EventSummary: map[string]*models.EventProgress{
			"ce2": {Status: models.StatusNeedsAttention},
		},
	}

	entry := SnapshotTurn("s1", "the action", state)
	if entry.SessionID != "s1" || entry.CaseID != "case-1" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Status != models.StatusNeedsAttention {
		t.Errorf("status = %q, want needs_attention", entry.Status)
	}
	if entry.CurrentEvent != "ce2" || entry.TurnCount != 3 || entry.SystemNotice != "notice" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}
