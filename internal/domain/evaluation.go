package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChecklistOutcome records one rubric checklist item verdict.
type ChecklistOutcome struct {
	Category  string `json:"category"`
	Item      string `json:"item"`
	Passed    bool   `json:"passed"`
	Rationale string `json:"rationale"`
}

// ImprovementArea pairs a weakness with actionable advice.
type ImprovementArea struct {
	Area   string `json:"area"`
	Advice string `json:"advice"`
}

// EvaluationResult is the structured grading output for one completed
// session. At most one result exists per session and it is immutable
// once written.
type EvaluationResult struct {
	ID           uuid.UUID          `json:"id"`
	SessionID    uuid.UUID          `json:"session_id"`
	OverallScore int                `json:"overall_score"` // 0..100
	Summary      string             `json:"summary"`
	Checklist    []ChecklistOutcome `json:"checklist"`
	Strengths    []string           `json:"strengths"`
	Improvements []ImprovementArea  `json:"improvements"`
	CreatedAt    time.Time          `json:"created_at"`
}

// FeedbackStatus is what a polling caller sees.
type FeedbackStatus string

const (
	FeedbackEvaluating FeedbackStatus = "evaluating"
	FeedbackReady      FeedbackStatus = "ready"
)

// Feedback is the poll-until-ready envelope for an evaluation.
type Feedback struct {
	Status FeedbackStatus    `json:"status"`
	Result *EvaluationResult `json:"result,omitempty"`
}

// EvaluationRepository stores evaluation results. Create must enforce
// uniqueness per session and return ErrEvaluationExists on a duplicate.
// GetBySession returns (nil, nil) when no result has been written yet.
type EvaluationRepository interface {
	Create(ctx context.Context, result *EvaluationResult) error
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*EvaluationResult, error)
}
