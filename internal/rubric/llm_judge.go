// internal/rubric/llm_judge.go
package rubric

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/medtrainlab/casesim/internal/errors"
	"github.com/medtrainlab/casesim/internal/llm"
	"github.com/medtrainlab/casesim/internal/models"
)

const judgeSystemPrompt = `You are a strict simulation assessor. Score every ` +
	`criterion by semantic reasoning, not keyword overlap. Return plain JSON ` +
	`only, shaped exactly like:
{
  "evaluations": [
    {"id": 1, "score": 5, "justification": "..."},
    {"id": 2, "score": 3, "justification": "..."}
  ]
}
Constraints:
- id is the positive criterion number.
- score is an integer from 1 (lowest) to 5 (fully achieved).
- Do not add any text outside the JSON.`

// LLMJudge scores actions through an LLM provider.
type LLMJudge struct {
	Provider llm.Provider
	Model    string
}

// NewLLMJudge creates a judge over the given provider.
func NewLLMJudge(provider llm.Provider) *LLMJudge {
	return &LLMJudge{Provider: provider}
}

// Judge asks the model for a 1..5 score per criterion, including the leveled
// descriptors so the model anchors its scale on the rubric.
func (j *LLMJudge) Judge(ctx context.Context, action string, criteria []models.RubricCriterion) ([]Verdict, error) {
	prompt := buildJudgePrompt(action, criteria)

	resp, err := j.Provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: judgeSystemPrompt,
		Model:        j.Model,
		Temperature:  0.1,
		JSONOutput:   true,
	})
	if err != nil {
		return nil, apperrors.NewExternalCapabilityError("rubric judge call failed", err)
	}

	verdicts, err := ParseVerdicts(resp.Text, len(criteria))
	if err != nil {
		return nil, err
	}
	return verdicts, nil
}

func buildJudgePrompt(action string, criteria []models.RubricCriterion) string {
	var sb strings.Builder
	sb.WriteString("Learner action:\n")
	sb.WriteString(action)
	sb.WriteString("\n\nSuccess criteria with achievement levels:\n")
	for i, criterion := range criteria {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, criterion.Description)
		for _, level := range criterion.Levels {
			if level.Descriptor == "" {
				continue
			}
			fmt.Fprintf(&sb, "   level %d: %s\n", level.Score, level.Descriptor)
		}
	}
	sb.WriteString("\nScore each criterion 1-5 against its level descriptors. " +
		"A score of 4 or 5 means the action satisfies the criterion; 2 or 3 means " +
		"partial progress; 1 means not met.")
	return sb.String()
}

type judgePayload struct {
	Evaluations []judgeItem `json:"evaluations"`
}

type judgeItem struct {
	ID            json.Number `json:"id"`
	Score         json.Number `json:"score"`
	Status        string      `json:"status"`
	Justification string      `json:"justification"`
}

// ParseVerdicts extracts verdicts from raw judge output. It tolerates code
// fences, a bare top-level list, and the legacy status-word shape
// (satisfied/partial/not_met). A response mapping no criterion is a
// JudgeParseError.
func ParseVerdicts(raw string, criteriaCount int) ([]Verdict, error) {
	cleaned := stripCodeFences(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil, apperrors.NewJudgeParseError("empty judge response", nil)
	}

	var payload judgePayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		// Some models return the evaluations list without the wrapper object.
		var bare []judgeItem
		if err := json.Unmarshal([]byte(cleaned), &bare); err != nil {
			return nil, apperrors.NewJudgeParseError("judge response is not valid JSON", err)
		}
		payload.Evaluations = bare
	}

	var verdicts []Verdict
	for _, item := range payload.Evaluations {
		index, err := strconv64(item.ID)
		if err != nil || index < 1 || index > criteriaCount {
			continue
		}

		score, err := strconv64(item.Score)
		if err != nil || score == 0 {
			score = statusWordScore(item.Status)
		}
		if score == 0 {
			continue
		}

		verdicts = append(verdicts, Verdict{
			Index:         index,
			Score:         ClampScore(score),
			Justification: strings.TrimSpace(item.Justification),
		})
	}

	if len(verdicts) == 0 {
		return nil, apperrors.NewJudgeParseError("judge response mapped no criteria", nil)
	}
	return verdicts, nil
}

func strconv64(n json.Number) (int, error) {
	value, err := n.Int64()
	if err != nil {
		return 0, err
	}
	return int(value), nil
}

// statusWordScore bridges the legacy judge output shape to the score scale.
func statusWordScore(status string) int {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "satisfied":
		return 5
	case "partial":
		return 3
	case "not_met":
		return 1
	default:
		return 0
	}
}

func stripCodeFences(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
