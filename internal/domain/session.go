package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a practice session.
type SessionState string

const (
	SessionActive     SessionState = "active"
	SessionCompleting SessionState = "completing"
	SessionCompleted  SessionState = "completed"
	SessionAbandoned  SessionState = "abandoned"
)

// SessionMode distinguishes free practice from a mock-exam case.
type SessionMode string

const (
	ModePractice SessionMode = "practice"
	ModeExamCase SessionMode = "exam_case"
)

// Session represents one conversational practice attempt with the
// simulated patient. At most one session per owner may be active at a
// time; starting a new one abandons the previous.
type Session struct {
	ID         uuid.UUID    `json:"id"`
	OwnerID    uuid.UUID    `json:"owner_id"`
	ScenarioID uuid.UUID    `json:"scenario_id"`
	PersonaID  uuid.UUID    `json:"persona_id"`
	Mode       SessionMode  `json:"mode"`
	State      SessionState `json:"state"`
	ExamID     *uuid.UUID   `json:"exam_id,omitempty"`
	FinalScore *int         `json:"final_score,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    *time.Time   `json:"ended_at,omitempty"`
}

// SessionRepository defines the interface for session storage.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]Session, error)
	UpdateState(ctx context.Context, id uuid.UUID, state SessionState) error
	// MarkCompleting moves the session to completing and records the end time.
	MarkCompleting(ctx context.Context, id uuid.UUID, endedAt time.Time) error
	// RecordScore sets the final score and moves the session to completed.
	// The evaluation coordinator is the only caller.
	RecordScore(ctx context.Context, id uuid.UUID, score int) error
}
