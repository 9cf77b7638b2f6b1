// internal/chains/persona.go
package chains

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/medtrainlab/casesim/internal/errors"
	"github.com/medtrainlab/casesim/internal/llm"
	"github.com/medtrainlab/casesim/internal/models"
	"github.com/medtrainlab/casesim/internal/semantic"
)

// DialogueInput carries the conversational context for one persona turn.
type DialogueInput struct {
	CaseID           string
	EventTitle       string
	EventDescription string
	SceneSummary     string
	UserAction       string
	Personas         []*models.PersonaState
	History          []models.DialogueEntry
}

// PersonaChain drives NPC behavior: background digests at event entry and
// in-character dialogue each turn.
type PersonaChain struct {
	Provider llm.Provider
	Searcher semantic.Searcher
	Model    string
	TopK     int
}

const digestSystemPrompt = `You condense character notes. For every character ` +
	`listed, write exactly one line in the form "- <id>: <one sentence profile>". ` +
	`No other output.`

// Digest builds a one-line profile per persona from the indexed persona
// passages. Personas missing from the model output keep an empty profile.
func (c *PersonaChain) Digest(ctx context.Context, caseID string, personas []*models.PersonaState) (map[string]string, error) {
	if len(personas) == 0 {
		return map[string]string{}, nil
	}

	var sb strings.Builder
	sb.WriteString("Characters:\n")
	for _, persona := range personas {
		fmt.Fprintf(&sb, "- id=%s name=%s role=%s\n", persona.ID, persona.Name, persona.Role)

		matches, err := c.Searcher.Search(ctx, caseID, semantic.KindPersona, persona.Name, c.topK())
		if err != nil {
			return nil, apperrors.NewExternalCapabilityError("persona retrieval failed", err)
		}
		for _, match := range matches {
			fmt.Fprintf(&sb, "  note: %s\n", match.Text)
		}
	}

	resp, err := c.Provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       sb.String(),
		SystemPrompt: digestSystemPrompt,
		Model:        c.Model,
		Temperature:  0.2,
	})
	if err != nil {
		return nil, apperrors.NewExternalCapabilityError("persona digest call failed", err)
	}

	return parseDigest(resp.Text, personas), nil
}

// parseDigest maps "- id: profile" lines back to known persona ids.
func parseDigest(raw string, personas []*models.PersonaState) map[string]string {
	known := make(map[string]bool, len(personas))
	for _, persona := range personas {
		known[persona.ID] = true
	}

	digests := make(map[string]string, len(personas))
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		id, profile, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		id = strings.TrimSpace(id)
		if known[id] {
			digests[id] = strings.TrimSpace(profile)
		}
	}
	return digests
}

const dialogueSystemPrompt = `You voice the non-player characters of a training ` +
	`simulation. Respond as a JSON array, one object per speaking character:
[{"speaker": "<character name>", "content": "<what they say>"}]
Rules:
- Stay strictly in character; obey each character's emotion and trust level.
- Low trust means guarded, short answers. High trust means cooperative ones.
- Only characters present in the scene may speak. Not every character must.
- No narration, no learner lines, JSON only.`

// React generates the NPC dialogue for the latest learner action.
func (c *PersonaChain) React(ctx context.Context, in DialogueInput) ([]models.DialogueEntry, error) {
	if len(in.Personas) == 0 {
		return []models.DialogueEntry{}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Event: %s\n%s\n", in.EventTitle, in.EventDescription)
	if in.SceneSummary != "" {
		fmt.Fprintf(&sb, "\nScene:\n%s\n", in.SceneSummary)
	}
	sb.WriteString("\nCharacters present:\n")
	for _, persona := range in.Personas {
		fmt.Fprintf(&sb, "- %s (%s), emotion: %s, trust: %.2f", persona.Name, persona.Role, persona.Emotion, persona.Trust)
		if persona.Profile != "" {
			fmt.Fprintf(&sb, ", profile: %s", persona.Profile)
		}
		sb.WriteString("\n")
	}
	if len(in.History) > 0 {
		sb.WriteString("\nRecent dialogue:\n")
		for _, entry := range in.History {
			fmt.Fprintf(&sb, "%s: %s\n", entry.Speaker, entry.Content)
		}
	}
	if in.UserAction != "" {
		fmt.Fprintf(&sb, "\nLearner says or does:\n%s\n", in.UserAction)
	} else {
		sb.WriteString("\nThe learner stays silent this turn.\n")
	}
	sb.WriteString("\nWrite the characters' responses.")

	resp, err := c.Provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       sb.String(),
		SystemPrompt: dialogueSystemPrompt,
		Model:        c.Model,
		Temperature:  0.7,
		JSONOutput:   true,
	})
	if err != nil {
		return nil, apperrors.NewExternalCapabilityError("persona dialogue call failed", err)
	}

	return ParseDialogue(resp.Text, in.Personas), nil
}

func (c *PersonaChain) topK() int {
	if c.TopK > 0 {
		return c.TopK
	}
	return defaultTopK
}
