// internal/chains/scene.go
package chains

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/medtrainlab/casesim/internal/errors"
	"github.com/medtrainlab/casesim/internal/llm"
	"github.com/medtrainlab/casesim/internal/semantic"
)

const defaultTopK = 3

// SceneInput carries everything the scene summarizer needs for one turn.
type SceneInput struct {
	CaseID           string
	EventID          string
	EventTitle       string
	EventDescription string
	PreviousSummary  string
	SameEvent        bool
	UserAction       string
}

// SceneChain produces the per-turn scene summary from retrieved scene
// passages and the current event framing.
type SceneChain struct {
	Provider llm.Provider
	Searcher semantic.Searcher
	Model    string
	TopK     int
}

const sceneSystemPrompt = `You narrate a training simulation scene. Write a ` +
	`compact present-tense summary of the current situation in 2-4 sentences. ` +
	`Describe only what is observable in the scene. No advice, no evaluation, ` +
	`no dialogue.`

// Summarize retrieves scene passages for the case and asks the model for the
// turn's situation summary. When the session stays on the same event, the
// previous summary is handed back so the scene evolves instead of resetting.
func (c *SceneChain) Summarize(ctx context.Context, in SceneInput) (string, error) {
	query := in.EventDescription
	if in.UserAction != "" {
		query = query + "\n" + in.UserAction
	}

	matches, err := c.Searcher.Search(ctx, in.CaseID, semantic.KindScene, query, c.topK())
	if err != nil {
		return "", apperrors.NewExternalCapabilityError("scene retrieval failed", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Current event: %s\n%s\n", in.EventTitle, in.EventDescription)
	if len(matches) > 0 {
		sb.WriteString("\nScene background:\n")
		for _, match := range matches {
			fmt.Fprintf(&sb, "- %s\n", match.Text)
		}
	}
	if in.SameEvent && in.PreviousSummary != "" {
		fmt.Fprintf(&sb, "\nPrevious summary (continue from it, do not restart):\n%s\n", in.PreviousSummary)
	}
	if in.UserAction != "" {
		fmt.Fprintf(&sb, "\nLatest learner action:\n%s\n", in.UserAction)
	}
	sb.WriteString("\nWrite the updated scene summary.")

	resp, err := c.Provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       sb.String(),
		SystemPrompt: sceneSystemPrompt,
		Model:        c.Model,
		Temperature:  0.4,
	})
	if err != nil {
		return "", apperrors.NewExternalCapabilityError("scene summarizer call failed", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (c *SceneChain) topK() int {
	if c.TopK > 0 {
		return c.TopK
	}
	return defaultTopK
}
