// internal/scenario/loader.go
package scenario

import (
	"context"
	"fmt"

	"github.com/medtrainlab/casesim/internal/errors"
	"github.com/medtrainlab/casesim/internal/models"
)

// Loader resolves a case id into its static scenario definition.
type Loader interface {
	Load(ctx context.Context, caseID string) (*models.ScenarioDefinition, error)
}

// rawCase is the authoring shape shared by the Mongo and file loaders:
// events as an ordered list, personas as a list.
type rawCase struct {
	CaseID      string                    `json:"case_id" bson:"case_id"`
	CanonEvents []*models.CanonEvent      `json:"canon_events" bson:"canon_events"`
	Personas    []*models.PersonaTemplate `json:"personas" bson:"personas"`
	Context     models.SceneContext       `json:"initial_context" bson:"initial_context"`
}

func (r *rawCase) toDefinition() (*models.ScenarioDefinition, error) {
	definition := &models.ScenarioDefinition{
		CaseID:   r.CaseID,
		Events:   make(map[string]*models.CanonEvent, len(r.CanonEvents)),
		Personas: make(map[string]*models.PersonaTemplate, len(r.Personas)),
		Context:  r.Context,
	}

	for _, event := range r.CanonEvents {
		if event == nil || event.ID == "" {
			continue
		}
		definition.Events[event.ID] = event
		definition.EventSequence = append(definition.EventSequence, event.ID)
	}
	for _, persona := range r.Personas {
		if persona == nil || persona.ID == "" {
			continue
		}
		definition.Personas[persona.ID] = persona
	}

	if len(definition.EventSequence) == 0 {
		return nil, fmt.Errorf("case %q has no canon events", r.CaseID)
	}
	return definition, nil
}

func notFound(caseID string) error {
	return errors.NewNotFoundError(fmt.Sprintf("case %q not found", caseID), nil)
}
