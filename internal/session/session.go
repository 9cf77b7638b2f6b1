// internal/session/session.go
package session

import (
	"context"
	"log"
	"sync"

	"github.com/medtrainlab/casesim/internal/models"
	"github.com/medtrainlab/casesim/internal/pipeline"
	"github.com/medtrainlab/casesim/internal/storage"
)

// Session is one learner's run through a scenario. All turn processing is
// serialized by the session mutex; concurrent turns for the same session
// queue up.
type Session struct {
	ID     string
	CaseID string

	mu       sync.Mutex
	scenario *models.ScenarioDefinition
	pipe     *pipeline.Pipeline
	state    *models.RuntimeState
	store    storage.StateStore
	turns    storage.TurnLogger
}

// RunTurn executes one turn and persists the outcome. The state only
// advances after a successful save, so a failed turn or a failed save leaves
// the session exactly where it was.
func (s *Session) RunTurn(ctx context.Context, input pipeline.TurnInput) (*pipeline.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, result, err := s.pipe.Run(ctx, s.scenario, s.state, input)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.Save(ctx, s.ID, next); err != nil {
			return nil, err
		}
	}
	s.state = next

	if s.turns != nil {
		entry := storage.SnapshotTurn(s.ID, input.UserAction, next)
		if err := s.turns.AppendTurn(ctx, entry); err != nil {
			// History is best effort; the turn itself already committed.
			log.Printf("⚠️ session %s: turn log append failed: %v", s.ID, err)
		}
	}
	return result, nil
}

// State returns a snapshot of the current runtime state.
func (s *Session) State() *models.RuntimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Scenario returns the immutable scenario definition backing the session.
func (s *Session) Scenario() *models.ScenarioDefinition {
	return s.scenario
}
