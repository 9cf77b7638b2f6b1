// internal/scenario/mongo_loader.go
package scenario

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/medtrainlab/casesim/internal/errors"
	"github.com/medtrainlab/casesim/internal/models"
)

// MongoLoader reads cases from the authoring collections: one skeleton per
// case (canon events), one context per case, personas as individual rows.
type MongoLoader struct {
	db *mongo.Database
}

// NewMongoLoader creates a loader over the given database.
func NewMongoLoader(db *mongo.Database) *MongoLoader {
	return &MongoLoader{db: db}
}

type skeletonDocument struct {
	CaseID      string               `bson:"case_id"`
	CanonEvents []*models.CanonEvent `bson:"canon_events"`
}

type contextDocument struct {
	CaseID         string              `bson:"case_id"`
	InitialContext models.SceneContext `bson:"initial_context"`
}

// Load assembles a ScenarioDefinition for caseID. Missing skeleton means the
// case does not exist; context and personas are optional.
func (l *MongoLoader) Load(ctx context.Context, caseID string) (*models.ScenarioDefinition, error) {
	var skeleton skeletonDocument
	err := l.db.Collection("skeletons").FindOne(ctx, bson.M{"case_id": caseID}).Decode(&skeleton)
	if err == mongo.ErrNoDocuments {
		return nil, notFound(caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("load skeleton for %s: %w", caseID, err)
	}

	var caseContext contextDocument
	err = l.db.Collection("contexts").FindOne(ctx, bson.M{"case_id": caseID}).Decode(&caseContext)
	if err != nil && err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("load context for %s: %w", caseID, err)
	}

	cursor, err := l.db.Collection("personas").Find(ctx, bson.M{"case_id": caseID})
	if err != nil {
		return nil, fmt.Errorf("load personas for %s: %w", caseID, err)
	}
	var personas []*models.PersonaTemplate
	if err := cursor.All(ctx, &personas); err != nil {
		return nil, fmt.Errorf("decode personas for %s: %w", caseID, err)
	}

	raw := rawCase{
		CaseID:      caseID,
		CanonEvents: skeleton.CanonEvents,
		Personas:    personas,
		Context:     caseContext.InitialContext,
	}
	definition, err := raw.toDefinition()
	if err != nil {
		return nil, errors.NewNotFoundError(err.Error(), nil)
	}
	return definition, nil
}
