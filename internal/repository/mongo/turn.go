package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicathon/patientsim/internal/config"
	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TurnRepository implements domain.TranscriptRepository on MongoDB, for
// deployments that keep transcripts outside the relational store.
type TurnRepository struct {
	client   *mongo.Client
	turns    *mongo.Collection
	counters *mongo.Collection
}

// NewTurnRepository connects and returns a mongo-backed transcript store.
func NewTurnRepository(ctx context.Context, cfg config.MongoConfig) (*TurnRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	db := client.Database(cfg.Database)
	return &TurnRepository{
		client:   client,
		turns:    db.Collection("turns"),
		counters: db.Collection("turn_counters"),
	}, nil
}

// Close disconnects the underlying client.
func (r *TurnRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

type turnDoc struct {
	ID        string `bson:"_id"`
	SessionID string `bson:"session_id"`
	Speaker   string `bson:"speaker"`
	Content   string `bson:"content"`
	Seq       int    `bson:"seq"`
	CreatedAt int64  `bson:"created_at"`
}

// Append assigns the next per-session sequence number through an atomic
// counter increment, then inserts the turn. The counter update is the
// serialization point for concurrent appends to one session.
func (r *TurnRepository) Append(ctx context.Context, turn *domain.Turn) error {
	var counter struct {
		Seq int `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": turn.SessionID.String()},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return fmt.Errorf("failed to assign sequence: %w", err)
	}
	turn.Seq = counter.Seq

	doc := turnDoc{
		ID:        turn.ID.String(),
		SessionID: turn.SessionID.String(),
		Speaker:   string(turn.Speaker),
		Content:   turn.Content,
		Seq:       turn.Seq,
		CreatedAt: turn.CreatedAt.UnixMilli(),
	}
	if _, err := r.turns.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// ListBySession retrieves the full transcript in sequence order.
func (r *TurnRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Turn, error) {
	cursor, err := r.turns.Find(ctx,
		bson.M{"session_id": sessionID.String()},
		options.Find().SetSort(bson.M{"seq": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer cursor.Close(ctx)

	var turns []domain.Turn
	for cursor.Next(ctx) {
		var doc turnDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode turn: %w", err)
		}
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse turn id: %w", err)
		}
		turns = append(turns, domain.Turn{
			ID:        id,
			SessionID: sessionID,
			Speaker:   domain.Speaker(doc.Speaker),
			Content:   doc.Content,
			Seq:       doc.Seq,
			CreatedAt: time.UnixMilli(doc.CreatedAt),
		})
	}
	return turns, cursor.Err()
}
