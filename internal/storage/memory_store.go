// internal/storage/memory_store.go
package storage

import (
	"context"
	"sync"

	"github.com/medtrainlab/casesim/internal/models"
)

// MemoryStore keeps states and turn logs in process memory. Used by the demo
// binary and by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*models.RuntimeState
	turns  map[string][]TurnLog
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*models.RuntimeState),
		turns:  make(map[string][]TurnLog),
	}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*models.RuntimeState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[sessionID]
	if !ok {
		return nil, nil
	}
	return state.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, state *models.RuntimeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sessionID] = state.Clone()
	return nil
}

func (s *MemoryStore) AppendTurn(_ context.Context, entry TurnLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[entry.SessionID] = append(s.turns[entry.SessionID], entry)
	return nil
}

func (s *MemoryStore) ListTurns(_ context.Context, sessionID string) ([]TurnLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TurnLog(nil), s.turns[sessionID]...), nil
}
