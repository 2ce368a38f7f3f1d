package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Fragment is one role-tagged message in a dialogue context. It mirrors
// turn content, trimmed to what the AI gateway needs to continue the
// conversation.
type Fragment struct {
	Speaker Speaker `json:"speaker"`
	Content string  `json:"content"`
}

// DialogueContext is the cached state needed to continue a dialogue
// without replaying the full transcript. It is always reconstructable
// from the transcript store; a registry miss means rehydrate, never
// "session does not exist".
type DialogueContext struct {
	SessionID uuid.UUID  `json:"session_id"`
	Fragments []Fragment `json:"fragments"`
	TouchedAt time.Time  `json:"touched_at"`
}

// Append adds one fragment and refreshes the touched time.
func (c *DialogueContext) Append(speaker Speaker, content string) {
	c.Fragments = append(c.Fragments, Fragment{Speaker: speaker, Content: content})
	c.TouchedAt = time.Now()
}

// ContextFromTurns rebuilds a dialogue context from stored turns.
func ContextFromTurns(sessionID uuid.UUID, turns []Turn) *DialogueContext {
	dc := &DialogueContext{SessionID: sessionID, TouchedAt: time.Now()}
	for _, t := range turns {
		dc.Fragments = append(dc.Fragments, Fragment{Speaker: t.Speaker, Content: t.Content})
	}
	return dc
}

// DialogueRegistry is the session registry: a shared cache of dialogue
// contexts keyed by session id. Get returns (nil, nil) on a miss. There
// is no eviction contract beyond explicit Remove on completion.
type DialogueRegistry interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*DialogueContext, error)
	Put(ctx context.Context, dc *DialogueContext) error
	Remove(ctx context.Context, sessionID uuid.UUID) error
}
