package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ExamType selects how exam case slots are filled.
type ExamType string

const (
	ExamRandom    ExamType = "random"
	ExamSpecified ExamType = "specified"
)

// ExamState is the lifecycle state of an exam session.
type ExamState string

const (
	ExamStarted ExamState = "started"
	ExamDone    ExamState = "completed"
)

// CaseSlot is one position in an exam. SessionID stays nil until the
// case is started; Score stays nil until its evaluation is recorded.
type CaseSlot struct {
	Position   int        `json:"position"` // 1..N
	ScenarioID uuid.UUID  `json:"scenario_id"`
	SessionID  *uuid.UUID `json:"session_id,omitempty"`
	Score      *int       `json:"score,omitempty"`
}

// ExamSession groups several practice sessions into one graded attempt.
// The aggregate score is the rounded mean of the recorded slot scores,
// defined only once the exam is completed.
type ExamSession struct {
	ID             uuid.UUID  `json:"id"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	Type           ExamType   `json:"type"`
	State          ExamState  `json:"state"`
	Slots          []CaseSlot `json:"slots"`
	AggregateScore *int       `json:"aggregate_score,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// ExamRepository persists exam sessions and their slots.
type ExamRepository interface {
	Create(ctx context.Context, exam *ExamSession) error
	Get(ctx context.Context, id uuid.UUID) (*ExamSession, error)
	// LinkSlot records the session started for a case position.
	LinkSlot(ctx context.Context, examID uuid.UUID, position int, sessionID uuid.UUID) error
	// Complete writes all slot scores, the aggregate and the completed
	// state in a single transaction. A completion timeout must leave the
	// stored exam untouched, so partial writes are not allowed.
	Complete(ctx context.Context, exam *ExamSession) error
}
