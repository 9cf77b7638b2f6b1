// internal/storage/mongo_store.go
package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medtrainlab/casesim/internal/models"
)

// MongoStore persists session states and turn logs in MongoDB.
type MongoStore struct {
	states *mongo.Collection
	turns  *mongo.Collection
}

// NewMongoStore creates the store over the session_states and session_turns
// collections.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		states: db.Collection("session_states"),
		turns:  db.Collection("session_turns"),
	}
}

type stateDocument struct {
	SessionID string               `bson:"session_id"`
	CaseID    string               `bson:"case_id"`
	State     *models.RuntimeState `bson:"state"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

// Load fetches the latest persisted state, or (nil, nil) when absent.
func (s *MongoStore) Load(ctx context.Context, sessionID string) (*models.RuntimeState, error) {
	var doc stateDocument
	err := s.states.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", sessionID, err)
	}
	return doc.State, nil
}

// Save upserts the session state.
func (s *MongoStore) Save(ctx context.Context, sessionID string, state *models.RuntimeState) error {
	doc := stateDocument{
		SessionID: sessionID,
		CaseID:    state.CaseID,
		State:     state,
		UpdatedAt: time.Now(),
	}
	_, err := s.states.ReplaceOne(ctx,
		bson.M{"session_id": sessionID},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save state %s: %w", sessionID, err)
	}
	return nil
}

// AppendTurn inserts one turn log row.
func (s *MongoStore) AppendTurn(ctx context.Context, entry TurnLog) error {
	if _, err := s.turns.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("append turn %s: %w", entry.SessionID, err)
	}
	return nil
}

// ListTurns returns a session's turn logs in chronological order.
func (s *MongoStore) ListTurns(ctx context.Context, sessionID string) ([]TurnLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.turns.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list turns %s: %w", sessionID, err)
	}
	defer cursor.Close(ctx)

	var logs []TurnLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("decode turns %s: %w", sessionID, err)
	}
	return logs, nil
}

// EnsureIndexes creates the lookup indexes. Failures are non-fatal for the
// caller; they only cost query speed.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.states.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.turns.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}
