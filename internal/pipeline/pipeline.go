// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"

	"github.com/medtrainlab/casesim/internal/chains"
	apperrors "github.com/medtrainlab/casesim/internal/errors"
	"github.com/medtrainlab/casesim/internal/models"
	"github.com/medtrainlab/casesim/internal/rubric"
	"github.com/medtrainlab/casesim/internal/semantic"
)

// SceneSummarizer produces the per-turn situation summary.
type SceneSummarizer interface {
	Summarize(ctx context.Context, in chains.SceneInput) (string, error)
}

// DialogueGenerator drives NPC profiles and in-character dialogue.
type DialogueGenerator interface {
	Digest(ctx context.Context, caseID string, personas []*models.PersonaState) (map[string]string, error)
	React(ctx context.Context, in chains.DialogueInput) ([]models.DialogueEntry, error)
}

// Responder composes the learner-facing reply that closes a turn.
type Responder interface {
	Respond(ctx context.Context, in chains.ResponderInput) (string, error)
}

// Evaluator scores a learner action against outstanding criteria.
type Evaluator interface {
	Evaluate(ctx context.Context, action string, remaining []models.RubricCriterion) (*rubric.Outcome, error)
}

// Deps are the external capabilities the stages draw on.
type Deps struct {
	Scene     SceneSummarizer
	Personas  DialogueGenerator
	Responder Responder
	Evaluator Evaluator
	Searcher  semantic.Searcher
}

// Options tune the turn mechanics. Zero values fall back to the defaults
// below.
type Options struct {
	// TrustPenalty is subtracted from every active persona's trust per
	// policy flag raised in the turn.
	TrustPenalty float64
	// DistressThreshold is the trust level below which personas turn
	// distressed.
	DistressThreshold float64
	// InitialTrust seeds newly activated personas.
	InitialTrust float64
	// PolicyMinScore is the minimum similarity for a policy passage to be
	// flagged.
	PolicyMinScore float64
	// HistoryWindow bounds how many dialogue lines the generators see.
	HistoryWindow int
	// MaxHistory bounds the stored dialogue history.
	MaxHistory int
	// TopK bounds semantic retrieval per query.
	TopK int
}

const (
	defaultTrustPenalty      = 0.1
	defaultDistressThreshold = 0.3
	defaultInitialTrust      = 0.5
	defaultPolicyMinScore    = 0.5
	defaultHistoryWindow     = 5
	defaultMaxHistory        = 200
	defaultTopK              = 3
)

func (o Options) withDefaults() Options {
	if o.TrustPenalty == 0 {
		o.TrustPenalty = defaultTrustPenalty
	}
	if o.DistressThreshold == 0 {
		o.DistressThreshold = defaultDistressThreshold
	}
	if o.InitialTrust == 0 {
		o.InitialTrust = defaultInitialTrust
	}
	if o.PolicyMinScore == 0 {
		o.PolicyMinScore = defaultPolicyMinScore
	}
	if o.HistoryWindow == 0 {
		o.HistoryWindow = defaultHistoryWindow
	}
	if o.MaxHistory == 0 {
		o.MaxHistory = defaultMaxHistory
	}
	if o.TopK == 0 {
		o.TopK = defaultTopK
	}
	return o
}

// TurnInput is the learner-side input for one turn.
type TurnInput struct {
	UserAction string
	// Reset discards the session state and restarts at StartEvent.
	Reset bool
	// StartEvent positions the session at a specific event. On reset it
	// overrides the entry event; otherwise it jumps the running session
	// there, keeping progress banked on other events. Empty means stay, or
	// the scenario's first event on reset.
	StartEvent string
}

// Result is the outward-facing outcome of a completed turn.
type Result struct {
	Reply        string                  `json:"reply"`
	SystemNotice string                  `json:"system_notice,omitempty"`
	CurrentEvent string                  `json:"current_event"`
	EventTitle   string                  `json:"event_title,omitempty"`
	Status       models.EventStatus      `json:"status"`
	TurnCount    int                     `json:"turn_count"`
	Dialogue     []models.DialogueEntry  `json:"dialogue"`
	PolicyFlags  []models.PolicyFlag     `json:"policy_flags"`
	Scores       []models.CriterionScore `json:"scores,omitempty"`
}

// Turn is the working record threaded through the stages. Stages mutate
// State and fill Result; the original state stays untouched.
type Turn struct {
	Scenario *models.ScenarioDefinition
	State    *models.RuntimeState
	Input    TurnInput
	Options  Options
	Result   *Result

	// evaluated is the rubric outcome for the event the action was judged
	// against, kept separate because a transition may move CurrentEvent
	// before the responder runs. evaluatedEvent names that event.
	evaluated      *rubric.Outcome
	evaluatedEvent string
	// freshPass marks that the evaluated event reached pass this turn.
	freshPass bool
}

// Stage is one step of the turn pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, turn *Turn) error
}

// Pipeline runs the fixed stage sequence over a cloned state. Any stage
// error aborts the turn and leaves the input state as it was.
type Pipeline struct {
	stages []Stage
	opts   Options
}

// New builds the standard nine-stage pipeline.
func New(deps Deps, opts Options) *Pipeline {
	return &Pipeline{
		opts: opts.withDefaults(),
		stages: []Stage{
			&ingressStage{},
			&sceneStage{scene: deps.Scene, personas: deps.Personas},
			&dialogueStage{personas: deps.Personas},
			&policyStage{searcher: deps.Searcher},
			&evaluateStage{evaluator: deps.Evaluator},
			&transitionStage{},
			&responderStage{responder: deps.Responder},
			&syncStage{},
			&egressStage{},
		},
	}
}

// Run executes one turn. The returned state is a new value; the caller's
// state is never mutated, so a failed turn commits nothing.
func (p *Pipeline) Run(ctx context.Context, scenario *models.ScenarioDefinition, state *models.RuntimeState, input TurnInput) (*models.RuntimeState, *Result, error) {
	if scenario == nil {
		return nil, nil, apperrors.NewValidationError("nil scenario", nil)
	}

	turn := &Turn{
		Scenario: scenario,
		State:    state.Clone(),
		Input:    input,
		Options:  p.opts,
		Result:   &Result{},
	}

	for _, stage := range p.stages {
		if err := stage.Run(ctx, turn); err != nil {
			return nil, nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
	}
	return turn.State, turn.Result, nil
}
