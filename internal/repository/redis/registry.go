package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/google/uuid"
)

const (
	dialoguePrefix = "dialogue:"
	// Contexts are rehydratable from the transcript store, so a TTL is
	// safe: an expired entry looks like any other cache miss.
	dialogueTTL = 24 * time.Hour
)

// DialogueRegistry implements domain.DialogueRegistry in Redis, shared
// across instances so a relay can land on any replica.
type DialogueRegistry struct {
	client *Client
}

// NewDialogueRegistry creates a new dialogue registry
func NewDialogueRegistry(client *Client) *DialogueRegistry {
	return &DialogueRegistry{client: client}
}

// Get retrieves the cached context for a session; (nil, nil) on a miss.
func (r *DialogueRegistry) Get(ctx context.Context, sessionID uuid.UUID) (*domain.DialogueContext, error) {
	key := fmt.Sprintf("%s%s", dialoguePrefix, sessionID.String())

	data, err := r.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, nil // Cache miss
	}

	var dc domain.DialogueContext
	if err := json.Unmarshal(data, &dc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dialogue context: %w", err)
	}

	return &dc, nil
}

// Put stores the context for a session.
func (r *DialogueRegistry) Put(ctx context.Context, dc *domain.DialogueContext) error {
	key := fmt.Sprintf("%s%s", dialoguePrefix, dc.SessionID.String())

	data, err := json.Marshal(dc)
	if err != nil {
		return fmt.Errorf("failed to marshal dialogue context: %w", err)
	}

	return r.client.rdb.Set(ctx, key, data, dialogueTTL).Err()
}

// Remove drops the context for a session.
func (r *DialogueRegistry) Remove(ctx context.Context, sessionID uuid.UUID) error {
	key := fmt.Sprintf("%s%s", dialoguePrefix, sessionID.String())
	return r.client.rdb.Del(ctx, key).Err()
}
