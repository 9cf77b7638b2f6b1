// internal/pipeline/policy.go
package pipeline

import (
	"context"

	apperrors "github.com/medtrainlab/casesim/internal/errors"
	"github.com/medtrainlab/casesim/internal/models"
	"github.com/medtrainlab/casesim/internal/semantic"
)

// policyStage flags policy passages the learner's action brushes against.
// Silent turns raise no flags.
type policyStage struct {
	searcher semantic.Searcher
}

func (s *policyStage) Name() string { return "policy_lookup" }

func (s *policyStage) Run(ctx context.Context, turn *Turn) error {
	state := turn.State
	state.PolicyFlags = []models.PolicyFlag{}

	if state.UserAction == "" {
		return nil
	}

	matches, err := s.searcher.Search(ctx, state.CaseID, semantic.KindPolicy, state.UserAction, turn.Options.TopK)
	if err != nil {
		return apperrors.NewExternalCapabilityError("policy retrieval failed", err)
	}

	for _, match := range matches {
		if match.Score < turn.Options.PolicyMinScore {
			continue
		}
		state.PolicyFlags = append(state.PolicyFlags, models.PolicyFlag{
			PolicyID:   match.Metadata["policy_id"],
			PolicyText: match.Text,
		})
	}
	return nil
}
