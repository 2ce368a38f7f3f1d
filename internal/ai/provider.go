package ai

import "context"

// Role tags a dialogue message for the engine.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is one role-tagged entry in the dialogue history handed to
// the engine.
type Message struct {
	Role    Role
	Content string
}

// Stream is a finite, non-restartable sequence of reply fragments.
// Recv returns io.EOF when the reply is complete; any other error means
// the stream died partway and cannot be resumed.
type Stream interface {
	Recv() (string, error)
	Close()
}

// ChecklistItem is one rubric item verdict in an evaluation.
type ChecklistItem struct {
	Category  string `json:"category"`
	Item      string `json:"item"`
	Passed    bool   `json:"passed"`
	Rationale string `json:"rationale"`
}

// Improvement pairs a weakness with actionable advice.
type Improvement struct {
	Area   string `json:"area"`
	Advice string `json:"advice"`
}

// Evaluation is the structured grading payload returned by the engine.
type Evaluation struct {
	OverallScore int             `json:"overall_score"`
	Summary      string          `json:"summary"`
	Checklist    []ChecklistItem `json:"checklist"`
	Strengths    []string        `json:"strengths"`
	Improvements []Improvement   `json:"improvements"`
}

// Provider defines the interface for patient-simulation engines
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// OpenSession produces the patient's opening turn for a fresh
	// session, given the composed scenario/persona script.
	OpenSession(ctx context.Context, script string) (string, error)

	// StreamReply continues the dialogue, yielding the reply one
	// fragment at a time.
	StreamReply(ctx context.Context, script string, history []Message, message string) (Stream, error)

	// Evaluate grades a finished transcript against a rubric.
	Evaluate(ctx context.Context, transcript string, rubric string) (*Evaluation, error)
}
