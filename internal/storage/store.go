// internal/storage/store.go
package storage

import (
	"context"
	"time"

	"github.com/medtrainlab/casesim/internal/models"
)

// StateStore persists the per-session runtime state. Load returns (nil, nil)
// when no state exists for the session.
type StateStore interface {
	Load(ctx context.Context, sessionID string) (*models.RuntimeState, error)
	Save(ctx context.Context, sessionID string, state *models.RuntimeState) error
}

// TurnLog records one completed turn for the history endpoint.
type TurnLog struct {
	SessionID    string             `json:"session_id" bson:"session_id"`
	CaseID       string             `json:"case_id" bson:"case_id"`
	UserAction   string             `json:"user_action,omitempty" bson:"user_action,omitempty"`
	CurrentEvent string             `json:"current_event" bson:"current_event"`
	Status       models.EventStatus `json:"status" bson:"status"`
	AIReply      string             `json:"ai_reply,omitempty" bson:"ai_reply,omitempty"`
	SystemNotice string             `json:"system_notice,omitempty" bson:"system_notice,omitempty"`
	TurnCount    int                `json:"turn_count" bson:"turn_count"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
}

// TurnLogger appends and lists turn history. Implemented alongside StateStore
// by the concrete stores.
type TurnLogger interface {
	AppendTurn(ctx context.Context, entry TurnLog) error
	ListTurns(ctx context.Context, sessionID string) ([]TurnLog, error)
}

// SnapshotTurn builds the log entry for a finished turn.
func SnapshotTurn(sessionID, userAction string, state *models.RuntimeState) TurnLog {
	entry := TurnLog{
		SessionID:    sessionID,
		CaseID:       state.CaseID,
		UserAction:   userAction,
		CurrentEvent: state.CurrentEvent,
		Status:       models.StatusPending,
		AIReply:      state.AIReply,
		SystemNotice: state.SystemNotice,
		TurnCount:    state.TurnCount,
		CreatedAt:    time.Now(),
	}
	if progress, ok := state.EventSummary[state.CurrentEvent]; ok {
		entry.Status = progress.Status
	}
	return entry
}
