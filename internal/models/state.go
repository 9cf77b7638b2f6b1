// internal/models/state.go
package models

// EventStatus is the per-event evaluation status tracked in EventSummary.
type EventStatus string

const (
	StatusPending        EventStatus = "pending"
	StatusNeedsAttention EventStatus = "needs_attention"
	StatusPass           EventStatus = "pass"
	StatusFail           EventStatus = "fail"
)

// PersonaState is the mutable, per-session view of an active NPC.
// Trust stays within [0,1] and decays on policy violations.
type PersonaState struct {
	ID      string  `json:"id" bson:"id"`
	Name    string  `json:"name" bson:"name"`
	Role    string  `json:"role" bson:"role"`
	Emotion string  `json:"emotion" bson:"emotion"`
	Trust   float64 `json:"trust" bson:"trust"`
	Profile string  `json:"profile,omitempty" bson:"profile,omitempty"`
}

// DialogueEntry is one line of session dialogue. PersonaID is empty for the
// learner and for free-text speakers the parser could not map to a persona.
type DialogueEntry struct {
	Speaker   string `json:"speaker" bson:"speaker"`
	Content   string `json:"content" bson:"content"`
	PersonaID string `json:"persona_id,omitempty" bson:"persona_id,omitempty"`
}

// PolicyFlag is one policy passage retrieved for the latest learner action.
type PolicyFlag struct {
	PolicyID   string `json:"policy_id" bson:"policy_id"`
	PolicyText string `json:"policy_text" bson:"policy_text"`
}

// CriterionScore is the raw judge verdict for one criterion.
type CriterionScore struct {
	Criterion     string `json:"criterion" bson:"criterion"`
	Score         int    `json:"score" bson:"score"`
	Justification string `json:"justification,omitempty" bson:"justification,omitempty"`
}

// EventProgress is the structured per-event bookkeeping record. One exists in
// RuntimeState.EventSummary for every event id the session ever visited.
type EventProgress struct {
	Status     EventStatus       `json:"status" bson:"status"`
	Remaining  []RubricCriterion `json:"remaining" bson:"remaining"`
	Completed  []RubricCriterion `json:"completed" bson:"completed"`
	Partial    []RubricCriterion `json:"partial" bson:"partial"`
	Scores     []CriterionScore  `json:"scores,omitempty" bson:"scores,omitempty"`
	LastResult string            `json:"last_result,omitempty" bson:"last_result,omitempty"`
	Reason     string            `json:"reason,omitempty" bson:"reason,omitempty"`
}

// NewEventProgress returns a pending record with the full criteria list
// outstanding.
func NewEventProgress(event *CanonEvent) *EventProgress {
	progress := &EventProgress{
		Status:    StatusPending,
		Remaining: []RubricCriterion{},
		Completed: []RubricCriterion{},
		Partial:   []RubricCriterion{},
	}
	if event != nil {
		progress.Remaining = append(progress.Remaining, event.SuccessCriteria...)
	}
	return progress
}

// RuntimeState is the mutable per-session record threaded through the turn
// pipeline. It is exclusively owned by one session.
type RuntimeState struct {
	CaseID          string                    `json:"case_id" bson:"case_id"`
	CurrentEvent    string                    `json:"current_event" bson:"current_event"`
	TurnCount       int                       `json:"turn_count" bson:"turn_count"`
	MaxTurns        int                       `json:"max_turns" bson:"max_turns"`
	SceneSummary    string                    `json:"scene_summary,omitempty" bson:"scene_summary,omitempty"`
	ActivePersonas  map[string]*PersonaState  `json:"active_personas" bson:"active_personas"`
	DialogueHistory []DialogueEntry           `json:"dialogue_history" bson:"dialogue_history"`
	UserAction      string                    `json:"user_action,omitempty" bson:"user_action,omitempty"`
	EventSummary    map[string]*EventProgress `json:"event_summary" bson:"event_summary"`
	PolicyFlags     []PolicyFlag              `json:"policy_flags" bson:"policy_flags"`
	AIReply         string                    `json:"ai_reply,omitempty" bson:"ai_reply,omitempty"`
	SystemNotice    string                    `json:"system_notice,omitempty" bson:"system_notice,omitempty"`

	// Turn-to-turn continuity markers, cleared on event change.
	LastSceneEvent      string          `json:"last_scene_event,omitempty" bson:"last_scene_event,omitempty"`
	LastPersonaDialogue []DialogueEntry `json:"last_persona_dialogue,omitempty" bson:"last_persona_dialogue,omitempty"`
}

// InitializeState creates the state for a fresh session positioned at
// startEvent, with that event's bookkeeping seeded.
func InitializeState(scenario *ScenarioDefinition, startEvent string) *RuntimeState {
	event := scenario.Event(startEvent)
	maxTurns := 0
	if event != nil {
		maxTurns = event.TimeoutTurn
	}
	return &RuntimeState{
		CaseID:          scenario.CaseID,
		CurrentEvent:    startEvent,
		MaxTurns:        maxTurns,
		ActivePersonas:  make(map[string]*PersonaState),
		DialogueHistory: []DialogueEntry{},
		EventSummary: map[string]*EventProgress{
			startEvent: NewEventProgress(event),
		},
		PolicyFlags: []PolicyFlag{},
	}
}

// Progress returns the bookkeeping record for an event id, creating a pending
// record if the event was never visited.
func (s *RuntimeState) Progress(eventID string) *EventProgress {
	if s.EventSummary == nil {
		s.EventSummary = make(map[string]*EventProgress)
	}
	if progress, ok := s.EventSummary[eventID]; ok {
		return progress
	}
	progress := NewEventProgress(nil)
	s.EventSummary[eventID] = progress
	return progress
}

// Clone deep-copies the state so a turn can run without touching the
// previously persisted version.
func (s *RuntimeState) Clone() *RuntimeState {
	if s == nil {
		return nil
	}
	clone := *s

	clone.ActivePersonas = make(map[string]*PersonaState, len(s.ActivePersonas))
	for id, persona := range s.ActivePersonas {
		copied := *persona
		clone.ActivePersonas[id] = &copied
	}

	clone.DialogueHistory = append([]DialogueEntry(nil), s.DialogueHistory...)
	clone.PolicyFlags = append([]PolicyFlag(nil), s.PolicyFlags...)
	clone.LastPersonaDialogue = append([]DialogueEntry(nil), s.LastPersonaDialogue...)

	clone.EventSummary = make(map[string]*EventProgress, len(s.EventSummary))
	for eventID, progress := range s.EventSummary {
		copied := EventProgress{
			Status:     progress.Status,
			Remaining:  append([]RubricCriterion(nil), progress.Remaining...),
			Completed:  append([]RubricCriterion(nil), progress.Completed...),
			Partial:    append([]RubricCriterion(nil), progress.Partial...),
			Scores:     append([]CriterionScore(nil), progress.Scores...),
			LastResult: progress.LastResult,
			Reason:     progress.Reason,
		}
		clone.EventSummary[eventID] = &copied
	}

	return &clone
}
