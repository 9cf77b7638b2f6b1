// internal/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/medtrainlab/casesim/internal/chains"
	"github.com/medtrainlab/casesim/internal/models"
	"github.com/medtrainlab/casesim/internal/rubric"
	"github.com/medtrainlab/casesim/internal/semantic"
)

// --- fakes -----------------------------------------------------------------

type fakeScene struct{ calls int }

func (f *fakeScene) Summarize(_ context.Context, in chains.SceneInput) (string, error) {
	f.calls++
	return "scene for " + in.EventID, nil
}

type fakePersonas struct{ reactCalls int }

func (f *fakePersonas) Digest(_ context.Context, _ string, personas []*models.PersonaState) (map[string]string, error) {
	digests := make(map[string]string, len(personas))
	for _, persona := range personas {
		digests[persona.ID] = "profile of " + persona.Name
	}
	return digests, nil
}

func (f *fakePersonas) React(_ context.Context, in chains.DialogueInput) ([]models.DialogueEntry, error) {
	f.reactCalls++
	entries := make([]models.DialogueEntry, 0, len(in.Personas))
	for _, persona := range in.Personas {
		entries = append(entries, models.DialogueEntry{
			Speaker: persona.Name, Content: "noted", PersonaID: persona.ID,
		})
	}
	return entries, nil
}

type fakeResponder struct {
	last chains.ResponderInput
	err  error
}

func (f *fakeResponder) Respond(_ context.Context, in chains.ResponderInput) (string, error) {
	f.last = in
	if f.err != nil {
		return "", f.err
	}
	return "reply", nil
}

// scriptJudge replays one score list per call; the last list repeats.
type scriptJudge struct {
	scores [][]int
	calls  int
}

func (j *scriptJudge) Judge(_ context.Context, _ string, criteria []models.RubricCriterion) ([]rubric.Verdict, error) {
	j.calls++
	list := j.scores[len(j.scores)-1]
	if j.calls <= len(j.scores) {
		list = j.scores[j.calls-1]
	}

	verdicts := make([]rubric.Verdict, 0, len(criteria))
	for i := range criteria {
		score := 1
		if i < len(list) {
			score = list[i]
		}
		verdicts = append(verdicts, rubric.Verdict{Index: i + 1, Score: score})
	}
	return verdicts, nil
}

// fakeSearcher flags policy matches when the query mentions "breach".
type fakeSearcher struct{ flagScore float64 }

func (f *fakeSearcher) Search(_ context.Context, caseID, kind, query string, _ int) ([]semantic.Match, error) {
	if kind == semantic.KindPolicy && strings.Contains(query, "breach") {
		score := f.flagScore
		if score == 0 {
			score = 0.9
		}
		return []semantic.Match{{
			Document: semantic.Document{
				Text:     "No unauthorized disclosure.",
				Metadata: map[string]string{"policy_id": "policy_1", "case_id": caseID},
			},
			Score: score,
		}}, nil
	}
	return nil, nil
}

type fixture struct {
	scene     *fakeScene
	personas  *fakePersonas
	responder *fakeResponder
	judge     *scriptJudge
	searcher  *fakeSearcher
	pipe      *Pipeline
	scenario  *models.ScenarioDefinition
}

func newFixture(t *testing.T, scores [][]int, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		scene:     &fakeScene{},
		personas:  &fakePersonas{},
		responder: &fakeResponder{},
		judge:     &scriptJudge{scores: scores},
		searcher:  &fakeSearcher{},
		scenario:  testScenario(),
	}
	f.pipe = New(Deps{
		Scene:     f.scene,
		Personas:  f.personas,
		Responder: f.responder,
		Evaluator: rubric.NewEvaluator(f.judge),
		Searcher:  f.searcher,
	}, opts)
	return f
}

func testScenario() *models.ScenarioDefinition {
	intro := &models.CanonEvent{
		ID:    "ce1",
		Title: "Handover",
		SuccessCriteria: []models.RubricCriterion{
			{Description: "takes a structured report"},
		},
		NPCAppearance: []models.NPCAppearance{{PersonaID: "p1"}},
		TimeoutTurn:   3,
		OnSuccess:     "ce2",
	}
	survey := &models.CanonEvent{
		ID:    "ce2",
		Title: "Primary survey",
		SuccessCriteria: []models.RubricCriterion{
			{Description: "assesses the airway"},
			{Description: "applies oxygen"},
		},
		NPCAppearance: []models.NPCAppearance{{PersonaID: "p1"}},
		TimeoutTurn:   2,
		OnFail:        "ce1",
	}
	return &models.ScenarioDefinition{
		CaseID:        "case-1",
		Events:        map[string]*models.CanonEvent{"ce1": intro, "ce2": survey},
		EventSequence: []string{"ce1", "ce2"},
		Personas: map[string]*models.PersonaTemplate{
			"p1": {ID: "p1", Name: "Nurse Kim", Role: "charge nurse", EmotionInit: "stressed"},
		},
	}
}

func runTurn(t *testing.T, f *fixture, state *models.RuntimeState, action string) (*models.RuntimeState, *Result) {
	t.Helper()
	next, result, err := f.pipe.Run(context.Background(), f.scenario, state, TurnInput{UserAction: action})
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	return next, result
}

// --- tests -----------------------------------------------------------------

func TestPassAdvancesToSuccessTarget(t *testing.T) {
	f := newFixture(t, [][]int{{5}}, Options{})
	state := models.InitializeState(f.scenario, "ce1")

	next, result := runTurn(t, f, state, "I take a structured report")

	if next.CurrentEvent != "ce2" {
		t.Fatalf("current event = %q, want ce2", next.CurrentEvent)
	}
	if result.Status != models.StatusPass {
		t.Errorf("result status = %q, want pass", result.Status)
	}
	if next.SystemNotice != "" {
		t.Errorf("system notice = %q, want none on a success hop", next.SystemNotice)
	}
	if next.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1 (the hop turn counts against ce2)", next.TurnCount)
	}
	if next.MaxTurns != 2 {
		t.Errorf("max turns = %d, want the new event's budget 2", next.MaxTurns)
	}

	ce1 := next.EventSummary["ce1"]
	if ce1.Status != models.StatusPass || len(ce1.Completed) != 1 || len(ce1.Remaining) != 0 {
		t.Errorf("ce1 progress = %+v, want pass with 1 completed", ce1)
	}
	ce2 := next.EventSummary["ce2"]
	if ce2 == nil || ce2.Status != models.StatusPending || len(ce2.Remaining) != 2 {
		t.Errorf("ce2 progress = %+v, want fresh pending record", ce2)
	}
}

func TestPartialScoreKeepsCriterionOutstanding(t *testing.T) {
	f := newFixture(t, [][]int{{3}}, Options{})
	state := models.InitializeState(f.scenario, "ce1")

	next, result := runTurn(t, f, state, "I ask vaguely what happened")

	if next.CurrentEvent != "ce1" {
		t.Fatalf("current event = %q, want ce1", next.CurrentEvent)
	}
	if result.Status != models.StatusNeedsAttention {
		t.Errorf("result status = %q, want needs_attention", result.Status)
	}
	progress := next.EventSummary["ce1"]
	if len(progress.Remaining) != 1 || len(progress.Partial) != 1 || len(progress.Completed) != 0 {
		t.Errorf("progress = %+v, want criterion partial and still outstanding", progress)
	}
	if next.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", next.TurnCount)
	}
}

func TestScoreOneMakesNoProgress(t *testing.T) {
	f := newFixture(t, [][]int{{1}}, Options{})
	state := models.InitializeState(f.scenario, "ce1")

	next, result := runTurn(t, f, state, "I stare at the wall")

	if result.Status != models.StatusPending {
		t.Errorf("result status = %q, want pending", result.Status)
	}
	progress := next.EventSummary["ce1"]
	if len(progress.Remaining) != 1 || len(progress.Completed) != 0 || len(progress.Partial) != 0 {
		t.Errorf("progress = %+v, want untouched criteria", progress)
	}
}

func TestEmptyActionSkipsJudgeButCountsTurn(t *testing.T) {
	f := newFixture(t, [][]int{{5}}, Options{})
	state := models.InitializeState(f.scenario, "ce1")

	next, result := runTurn(t, f, state, "   ")

	if f.judge.calls != 0 {
		t.Errorf("judge called %d times, want 0 for a silent turn", f.judge.calls)
	}
	if result.Status != models.StatusPending {
		t.Errorf("result status = %q, want pending", result.Status)
	}
	if next.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1 (silent turns still spend the budget)", next.TurnCount)
	}
	if f.personas.reactCalls != 0 {
		t.Errorf("personas reacted %d times, want 0 without a learner action", f.personas.reactCalls)
	}
	if len(result.Dialogue) != 0 {
		t.Errorf("dialogue = %+v, want none on a silent turn", result.Dialogue)
	}
	for _, entry := range next.DialogueHistory {
		if entry.Speaker == "learner" {
			t.Error("silent turn must not add a learner dialogue line")
		}
	}
}

func TestTimeoutFailsAndRestartsAtFallback(t *testing.T) {
	f := newFixture(t, [][]int{{1, 1}}, Options{})
	state := models.InitializeState(f.scenario, "ce2")

	// ce2 has a budget of 2 turns; both get judged before the timeout fires.
	state, _ = runTurn(t, f, state, "first fumble")
	state, _ = runTurn(t, f, state, "second fumble")
	if state.CurrentEvent != "ce2" || state.TurnCount != 2 {
		t.Fatalf("after turn 2: event %q count %d", state.CurrentEvent, state.TurnCount)
	}

	next, result := runTurn(t, f, state, "third fumble")

	if next.CurrentEvent != "ce1" {
		t.Fatalf("current event = %q, want fallback ce1", next.CurrentEvent)
	}
	if result.Status != models.StatusFail {
		t.Errorf("result status = %q, want fail", result.Status)
	}
	if next.SystemNotice == "" {
		t.Error("expected a timeout notice")
	}
	if next.TurnCount != 0 {
		t.Errorf("turn count = %d, want 0 after restart", next.TurnCount)
	}
	if got := next.EventSummary["ce2"].Status; got != models.StatusFail {
		t.Errorf("ce2 status = %q, want fail", got)
	}
	// The retried event starts a fresh attempt.
	ce1 := next.EventSummary["ce1"]
	if ce1.Status != models.StatusPending || len(ce1.Remaining) != 1 || len(ce1.Completed) != 0 {
		t.Errorf("ce1 progress = %+v, want a full reset", ce1)
	}
}

func TestTimeoutWithoutFailTargetRestartsAtFirstEvent(t *testing.T) {
	f := newFixture(t, [][]int{{1}}, Options{})
	f.scenario.Events["ce2"].OnFail = ""
	state := models.InitializeState(f.scenario, "ce2")

	state, _ = runTurn(t, f, state, "fumble")
	state, _ = runTurn(t, f, state, "fumble again")
	next, _ := runTurn(t, f, state, "still fumbling")

	if next.CurrentEvent != "ce1" {
		t.Fatalf("current event = %q, want first event ce1", next.CurrentEvent)
	}
}

func TestTimeoutResetsTheFailedEventAttempt(t *testing.T) {
	f := newFixture(t, [][]int{{5, 1}, {1}}, Options{})
	state := models.InitializeState(f.scenario, "ce2")

	state, _ = runTurn(t, f, state, "I assess the airway")
	if got := len(state.EventSummary["ce2"].Completed); got != 1 {
		t.Fatalf("after turn 1: %d completed, want 1", got)
	}
	state, _ = runTurn(t, f, state, "I hesitate")
	next, _ := runTurn(t, f, state, "I hesitate again")

	// The failed attempt leaves nothing banked; the retry starts from zero.
	ce2 := next.EventSummary["ce2"]
	if ce2.Status != models.StatusFail {
		t.Errorf("ce2 status = %q, want fail", ce2.Status)
	}
	if len(ce2.Remaining) != 2 || len(ce2.Completed) != 0 || len(ce2.Partial) != 0 {
		t.Errorf("ce2 progress = %d remaining, %d completed, %d partial, want 2/0/0",
			len(ce2.Remaining), len(ce2.Completed), len(ce2.Partial))
	}
	if next.CurrentEvent != "ce1" {
		t.Errorf("current event = %q, want fallback ce1", next.CurrentEvent)
	}
}

func TestCompletedCriteriaAreMonotonic(t *testing.T) {
	f := newFixture(t, [][]int{{5, 1}, {5}}, Options{})
	f.scenario.Events["ce2"].TimeoutTurn = 10
	state := models.InitializeState(f.scenario, "ce2")

	state, _ = runTurn(t, f, state, "I assess the airway")
	progress := state.EventSummary["ce2"]
	if len(progress.Completed) != 1 || len(progress.Remaining) != 1 {
		t.Fatalf("after turn 1: %d completed, %d remaining", len(progress.Completed), len(progress.Remaining))
	}

	// Second turn only judges the one remaining criterion.
	next, result := runTurn(t, f, state, "I apply oxygen")
	progress = next.EventSummary["ce2"]
	if len(progress.Completed) != 2 || len(progress.Remaining) != 0 {
		t.Fatalf("after turn 2: %d completed, %d remaining", len(progress.Completed), len(progress.Remaining))
	}
	if result.Status != models.StatusPass {
		t.Errorf("result status = %q, want pass", result.Status)
	}
	// ce2 has no success target; the session stays and concludes.
	if next.CurrentEvent != "ce2" {
		t.Errorf("current event = %q, want terminal ce2", next.CurrentEvent)
	}
	if next.SystemNotice == "" {
		t.Error("expected a conclusion notice on the terminal pass")
	}
}

func TestEventWithoutCriteriaPassesImmediately(t *testing.T) {
	f := newFixture(t, [][]int{{5}}, Options{})
	f.scenario.Events["ce1"].SuccessCriteria = nil
	state := models.InitializeState(f.scenario, "ce1")

	next, result := runTurn(t, f, state, "hello")

	if f.judge.calls != 0 {
		t.Errorf("judge called %d times, want 0 for an event without criteria", f.judge.calls)
	}
	if result.Status != models.StatusPass {
		t.Errorf("result status = %q, want pass", result.Status)
	}
	if next.CurrentEvent != "ce2" {
		t.Errorf("current event = %q, want ce2", next.CurrentEvent)
	}
}

func TestPolicyFlagsDecayTrust(t *testing.T) {
	f := newFixture(t, [][]int{{1}}, Options{InitialTrust: 0.35})
	state := models.InitializeState(f.scenario, "ce1")

	next, _ := runTurn(t, f, state, "I breach confidentiality loudly")

	if len(next.PolicyFlags) != 1 {
		t.Fatalf("policy flags = %d, want 1", len(next.PolicyFlags))
	}
	if next.PolicyFlags[0].PolicyID != "policy_1" {
		t.Errorf("policy id = %q, want policy_1", next.PolicyFlags[0].PolicyID)
	}

	persona := next.ActivePersonas["p1"]
	if diff := persona.Trust - 0.25; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("trust = %v, want 0.25", persona.Trust)
	}
	if persona.Emotion != "distressed" {
		t.Errorf("emotion = %q, want distressed below the threshold", persona.Emotion)
	}
}

func TestTrustNeverDropsBelowZero(t *testing.T) {
	f := newFixture(t, [][]int{{1}}, Options{TrustPenalty: 0.6})
	state := models.InitializeState(f.scenario, "ce1")

	state, _ = runTurn(t, f, state, "breach one")
	next, _ := runTurn(t, f, state, "breach two")

	if trust := next.ActivePersonas["p1"].Trust; trust != 0 {
		t.Errorf("trust = %v, want clamp at 0", trust)
	}
}

func TestWeakPolicyMatchesAreIgnored(t *testing.T) {
	f := newFixture(t, [][]int{{1}}, Options{})
	f.searcher.flagScore = 0.2
	state := models.InitializeState(f.scenario, "ce1")

	next, _ := runTurn(t, f, state, "a minor breach of etiquette")

	if len(next.PolicyFlags) != 0 {
		t.Errorf("policy flags = %d, want 0 below the similarity floor", len(next.PolicyFlags))
	}
}

func TestFailedStageCommitsNothing(t *testing.T) {
	f := newFixture(t, [][]int{{5}}, Options{})
	f.responder.err = errors.New("upstream down")
	state := models.InitializeState(f.scenario, "ce1")
	before := fmt.Sprintf("%+v", state)

	_, _, err := f.pipe.Run(context.Background(), f.scenario, state, TurnInput{UserAction: "hi"})
	if err == nil {
		t.Fatal("expected the turn to fail")
	}
	if after := fmt.Sprintf("%+v", state); after != before {
		t.Error("input state mutated by a failed turn")
	}
}

func TestResetRestartsTheSession(t *testing.T) {
	f := newFixture(t, [][]int{{5}, {1}}, Options{})
	state := models.InitializeState(f.scenario, "ce1")

	state, _ = runTurn(t, f, state, "I take a structured report")
	if state.CurrentEvent != "ce2" {
		t.Fatalf("setup: current event = %q, want ce2", state.CurrentEvent)
	}

	next, _, err := f.pipe.Run(context.Background(), f.scenario, state, TurnInput{Reset: true})
	if err != nil {
		t.Fatalf("reset turn failed: %v", err)
	}
	if next.CurrentEvent != "ce1" {
		t.Errorf("current event = %q, want ce1 after reset", next.CurrentEvent)
	}
	if len(next.DialogueHistory) != 0 && next.DialogueHistory[0].Speaker == "learner" {
		t.Error("reset must discard the previous dialogue history")
	}
	ce1 := next.EventSummary["ce1"]
	if ce1 == nil || len(ce1.Remaining) != 1 {
		t.Errorf("ce1 progress = %+v, want a fresh record", ce1)
	}
}

func TestStartEventJumpKeepsBankedProgress(t *testing.T) {
	f := newFixture(t, [][]int{{1}}, Options{})
	state := models.InitializeState(f.scenario, "ce1")

	state, _ = runTurn(t, f, state, "I look around")
	if len(state.DialogueHistory) == 0 {
		t.Fatal("setup: expected dialogue from the first turn")
	}

	next, _, err := f.pipe.Run(context.Background(), f.scenario, state,
		TurnInput{UserAction: "I start the survey", StartEvent: "ce2"})
	if err != nil {
		t.Fatalf("jump turn failed: %v", err)
	}

	if next.CurrentEvent != "ce2" {
		t.Fatalf("current event = %q, want ce2", next.CurrentEvent)
	}
	if next.MaxTurns != 2 || next.TurnCount != 1 {
		t.Errorf("budget = %d/%d, want fresh count 1 of 2", next.TurnCount, next.MaxTurns)
	}
	// Only the jump turn's lines survive; older dialogue is discarded.
	for _, entry := range next.DialogueHistory {
		if entry.Content == "I look around" {
			t.Error("jump must reset the dialogue history")
		}
	}
	if next.EventSummary["ce1"] == nil {
		t.Error("jump must keep the progress record of other events")
	}
}

func TestUnknownStartEventIsRejected(t *testing.T) {
	f := newFixture(t, [][]int{{5}}, Options{})
	state := models.InitializeState(f.scenario, "ce1")

	_, _, err := f.pipe.Run(context.Background(), f.scenario, state, TurnInput{Reset: true, StartEvent: "nope"})
	if err == nil {
		t.Fatal("expected a validation error for an unknown start event")
	}

	_, _, err = f.pipe.Run(context.Background(), f.scenario, state, TurnInput{StartEvent: "nope"})
	if err == nil {
		t.Fatal("expected a validation error for an unknown jump target")
	}
}

func TestActionIsConsumedByTheTurn(t *testing.T) {
	f := newFixture(t, [][]int{{1}}, Options{})
	state := models.InitializeState(f.scenario, "ce1")

	next, _ := runTurn(t, f, state, "I take a breath")

	if next.UserAction != "" {
		t.Errorf("user action = %q, want cleared after the turn", next.UserAction)
	}
}

func TestRepeatedLineIsNotAppendedTwice(t *testing.T) {
	f := newFixture(t, [][]int{{1}}, Options{})
	f.scenario.Events["ce1"].NPCAppearance = nil
	state := models.InitializeState(f.scenario, "ce1")

	state, _ = runTurn(t, f, state, "I wait")
	next, _ := runTurn(t, f, state, "I wait")

	learner := 0
	for _, entry := range next.DialogueHistory {
		if entry.Speaker == "learner" {
			learner++
		}
	}
	if learner != 1 {
		t.Errorf("learner lines = %d, want consecutive duplicates collapsed to 1", learner)
	}
}

func TestResponderReceivesTurnContext(t *testing.T) {
	f := newFixture(t, [][]int{{5, 3}}, Options{})
	state := models.InitializeState(f.scenario, "ce2")

	runTurn(t, f, state, "I assess the airway and fiddle with the mask")

	in := f.responder.last
	if in.TurnCount != 0 || in.MaxTurns != 2 {
		t.Errorf("budget = %d/%d, want turn 0 of 2", in.TurnCount, in.MaxTurns)
	}
	if len(in.Personas) != 1 || in.Personas[0].Name != "Nurse Kim" {
		t.Errorf("personas = %+v, want the present roster", in.Personas)
	}
	if len(in.Completed) != 1 || len(in.Partial) != 1 || in.RemainingCount != 1 {
		t.Errorf("progress = %d completed, %d partial, %d remaining, want 1/1/1",
			len(in.Completed), len(in.Partial), in.RemainingCount)
	}
}

func TestPersonasActivateWithProfileAndInitialEmotion(t *testing.T) {
	f := newFixture(t, [][]int{{1}}, Options{})
	state := models.InitializeState(f.scenario, "ce1")

	next, result := runTurn(t, f, state, "hello")

	persona := next.ActivePersonas["p1"]
	if persona == nil {
		t.Fatal("persona p1 not activated")
	}
	if persona.Emotion != "stressed" {
		t.Errorf("emotion = %q, want authored initial emotion", persona.Emotion)
	}
	if persona.Trust != defaultInitialTrust {
		t.Errorf("trust = %v, want default %v", persona.Trust, defaultInitialTrust)
	}
	if persona.Profile == "" {
		t.Error("expected a digest profile on activation")
	}
	if len(result.Dialogue) != 1 || result.Dialogue[0].PersonaID != "p1" {
		t.Errorf("dialogue = %+v, want one line from p1", result.Dialogue)
	}
}

func TestDeterministicAcrossIdenticalRuns(t *testing.T) {
	run := func() *Result {
		f := newFixture(t, [][]int{{3}}, Options{})
		state := models.InitializeState(f.scenario, "ce1")
		_, result := runTurn(t, f, state, "I breach protocol while asking for a report")
		return result
	}

	a, b := run(), run()
	if fmt.Sprintf("%+v", a) != fmt.Sprintf("%+v", b) {
		t.Errorf("identical inputs produced different results:\n%+v\n%+v", a, b)
	}
}
