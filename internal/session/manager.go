// internal/session/manager.go
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/medtrainlab/casesim/internal/errors"
	"github.com/medtrainlab/casesim/internal/models"
	"github.com/medtrainlab/casesim/internal/pipeline"
	"github.com/medtrainlab/casesim/internal/scenario"
	"github.com/medtrainlab/casesim/internal/storage"
)

// Manager owns the live sessions and builds new ones from scenario
// definitions. Scenario definitions are cached per case and shared read-only
// between sessions.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	scenarios map[string]*models.ScenarioDefinition

	loader scenario.Loader
	deps   pipeline.Deps
	opts   pipeline.Options
	store  storage.StateStore
	turns  storage.TurnLogger
}

// NewManager creates a manager. store and turns may be nil for ephemeral
// setups.
func NewManager(loader scenario.Loader, deps pipeline.Deps, opts pipeline.Options, store storage.StateStore, turns storage.TurnLogger) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		scenarios: make(map[string]*models.ScenarioDefinition),
		loader:    loader,
		deps:      deps,
		opts:      opts,
		store:     store,
		turns:     turns,
	}
}

// Create starts a new session for a case. startEvent may be empty to begin
// at the scenario's first event.
func (m *Manager) Create(ctx context.Context, caseID, startEvent string) (*Session, error) {
	def, err := m.scenarioFor(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if startEvent == "" {
		startEvent = def.FirstEvent()
	}
	if def.Event(startEvent) == nil {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("case %s has no event %q", caseID, startEvent), nil)
	}

	sess := &Session{
		ID:       uuid.NewString(),
		CaseID:   caseID,
		scenario: def,
		pipe:     pipeline.New(m.deps, m.opts),
		state:    models.InitializeState(def, startEvent),
		store:    m.store,
		turns:    m.turns,
	}

	if m.store != nil {
		if err := m.store.Save(ctx, sess.ID, sess.state); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess, nil
}

// Get returns a live session, rehydrating it from the state store when the
// process lost it (restart, eviction).
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	if m.store == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("session %s not found", sessionID), nil)
	}

	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("session %s not found", sessionID), nil)
	}

	def, err := m.scenarioFor(ctx, state.CaseID)
	if err != nil {
		return nil, err
	}

	sess = &Session{
		ID:       sessionID,
		CaseID:   state.CaseID,
		scenario: def,
		pipe:     pipeline.New(m.deps, m.opts),
		state:    state,
		store:    m.store,
		turns:    m.turns,
	}

	m.mu.Lock()
	// A concurrent Get may have rehydrated first; keep the existing one.
	if existing, ok := m.sessions[sessionID]; ok {
		sess = existing
	} else {
		m.sessions[sessionID] = sess
	}
	m.mu.Unlock()
	return sess, nil
}

// End drops the session from the live set. Persisted state and history stay
// readable through the store.
func (m *Manager) End(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// History lists the session's turn log.
func (m *Manager) History(ctx context.Context, sessionID string) ([]storage.TurnLog, error) {
	if m.turns == nil {
		return []storage.TurnLog{}, nil
	}
	return m.turns.ListTurns(ctx, sessionID)
}

// Scenario returns the cached scenario definition for a case, loading it on
// first use.
func (m *Manager) Scenario(ctx context.Context, caseID string) (*models.ScenarioDefinition, error) {
	return m.scenarioFor(ctx, caseID)
}

func (m *Manager) scenarioFor(ctx context.Context, caseID string) (*models.ScenarioDefinition, error) {
	m.mu.RLock()
	def, ok := m.scenarios[caseID]
	m.mu.RUnlock()
	if ok {
		return def, nil
	}

	def, err := m.loader.Load(ctx, caseID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.scenarios[caseID] = def
	m.mu.Unlock()
	return def, nil
}
