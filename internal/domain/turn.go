package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerCaller Speaker = "caller"
	SpeakerAgent  Speaker = "agent"
)

// Turn is one message in a session's transcript. Turns are append-only:
// once stored they are never updated or deleted, and Seq is strictly
// increasing per session with no gaps.
type Turn struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Speaker   Speaker   `json:"speaker"`
	Content   string    `json:"content"`
	Seq       int       `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptRepository is the append-only transcript store, the source
// of truth for conversation history and evaluation input. Append assigns
// the sequence number; concurrent appends to the same session are
// serialized by the implementation.
type TranscriptRepository interface {
	Append(ctx context.Context, turn *Turn) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Turn, error)
}
