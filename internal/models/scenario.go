// internal/models/scenario.go
package models

// RubricLevel describes one achievement level of a criterion.
// Score 1 is the lowest level, 5 is full achievement.
type RubricLevel struct {
	Score      int    `json:"score" bson:"score"`
	Descriptor string `json:"descriptor" bson:"descriptor"`
}

// RubricCriterion is a single success condition with five graded levels.
type RubricCriterion struct {
	Description string        `json:"description" bson:"description"`
	Levels      []RubricLevel `json:"levels,omitempty" bson:"levels,omitempty"`
}

// LevelDescriptor returns the descriptor text for a score, or "" when the
// criterion carries no descriptor for that level.
func (c RubricCriterion) LevelDescriptor(score int) string {
	for _, level := range c.Levels {
		if level.Score == score {
			return level.Descriptor
		}
	}
	return ""
}

// NPCAppearance binds a persona to a canon event.
type NPCAppearance struct {
	PersonaID string `json:"persona_id" bson:"persona_id"`
	Role      string `json:"role,omitempty" bson:"role,omitempty"`
}

// CanonEvent is a scripted milestone in the scenario.
// TimeoutTurn == 0 means the event has no turn budget.
// OnFail == "" falls back to the scenario's first event.
type CanonEvent struct {
	ID              string            `json:"id" bson:"id"`
	Title           string            `json:"title" bson:"title"`
	Description     string            `json:"description" bson:"description"`
	SuccessCriteria []RubricCriterion `json:"success_criteria" bson:"success_criteria"`
	NPCAppearance   []NPCAppearance   `json:"npc_appearance,omitempty" bson:"npc_appearance,omitempty"`
	TimeoutTurn     int               `json:"timeout_turn,omitempty" bson:"timeout_turn,omitempty"`
	OnSuccess       string            `json:"on_success,omitempty" bson:"on_success,omitempty"`
	OnFail          string            `json:"on_fail,omitempty" bson:"on_fail,omitempty"`
}

// PersonaTemplate is the immutable authoring-time description of an NPC.
type PersonaTemplate struct {
	ID            string   `json:"id" bson:"id"`
	Name          string   `json:"name" bson:"name"`
	Role          string   `json:"role" bson:"role"`
	Age           string   `json:"age,omitempty" bson:"age,omitempty"`
	Gender        string   `json:"gender,omitempty" bson:"gender,omitempty"`
	Background    string   `json:"background,omitempty" bson:"background,omitempty"`
	Personality   string   `json:"personality,omitempty" bson:"personality,omitempty"`
	Goal          string   `json:"goal,omitempty" bson:"goal,omitempty"`
	SpeechPattern string   `json:"speech_pattern,omitempty" bson:"speech_pattern,omitempty"`
	EmotionInit   string   `json:"emotion_init,omitempty" bson:"emotion_init,omitempty"`
	EmotionDuring []string `json:"emotion_during,omitempty" bson:"emotion_during,omitempty"`
	EmotionEnd    string   `json:"emotion_end,omitempty" bson:"emotion_end,omitempty"`
	VoiceTags     []string `json:"voice_tags,omitempty" bson:"voice_tags,omitempty"`
}

// SceneContext carries the static scene framing of a case.
type SceneContext struct {
	Scene              map[string]string   `json:"scene,omitempty" bson:"scene,omitempty"`
	IndexEvent         map[string]string   `json:"index_event,omitempty" bson:"index_event,omitempty"`
	AvailableResources map[string][]string `json:"available_resources,omitempty" bson:"available_resources,omitempty"`
	Constraints        []string            `json:"constraints,omitempty" bson:"constraints,omitempty"`
	Policies           []string            `json:"policies_safety_legal,omitempty" bson:"policies_safety_legal,omitempty"`
	SuccessEndState    string              `json:"success_end_state,omitempty" bson:"success_end_state,omitempty"`
}

// ScenarioDefinition is the static, per-case definition loaded once per
// session and shared read-only across sessions of the same case.
type ScenarioDefinition struct {
	CaseID        string                      `json:"case_id" bson:"case_id"`
	Events        map[string]*CanonEvent      `json:"events" bson:"events"`
	EventSequence []string                    `json:"event_sequence" bson:"event_sequence"`
	Personas      map[string]*PersonaTemplate `json:"personas" bson:"personas"`
	Context       SceneContext                `json:"context" bson:"context"`
}

// Event returns the canon event for an id, or nil when unknown.
func (s *ScenarioDefinition) Event(eventID string) *CanonEvent {
	if s == nil {
		return nil
	}
	return s.Events[eventID]
}

// Persona returns the persona template for an id, or nil when unknown.
func (s *ScenarioDefinition) Persona(personaID string) *PersonaTemplate {
	if s == nil {
		return nil
	}
	return s.Personas[personaID]
}

// FirstEvent returns the id of the first event in authoring order.
func (s *ScenarioDefinition) FirstEvent() string {
	if s == nil || len(s.EventSequence) == 0 {
		return ""
	}
	return s.EventSequence[0]
}
