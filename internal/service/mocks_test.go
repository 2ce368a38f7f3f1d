package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/clinicathon/patientsim/internal/ai"
	"github.com/clinicathon/patientsim/internal/domain"
)

// MockSessionRepository is a mock implementation of domain.SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Session, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *MockSessionRepository) UpdateState(ctx context.Context, id uuid.UUID, state domain.SessionState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

func (m *MockSessionRepository) MarkCompleting(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	args := m.Called(ctx, id, endedAt)
	return args.Error(0)
}

func (m *MockSessionRepository) RecordScore(ctx context.Context, id uuid.UUID, score int) error {
	args := m.Called(ctx, id, score)
	return args.Error(0)
}

// MockTranscriptRepository is a mock implementation of domain.TranscriptRepository
type MockTranscriptRepository struct {
	mock.Mock
}

func (m *MockTranscriptRepository) Append(ctx context.Context, turn *domain.Turn) error {
	args := m.Called(ctx, turn)
	return args.Error(0)
}

func (m *MockTranscriptRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Turn, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Turn), args.Error(1)
}

// MockCatalogRepository is a mock implementation of domain.CatalogRepository
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) GetScenario(ctx context.Context, id uuid.UUID) (*domain.Scenario, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Scenario), args.Error(1)
}

func (m *MockCatalogRepository) GetPersona(ctx context.Context, id uuid.UUID) (*domain.Persona, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Persona), args.Error(1)
}

func (m *MockCatalogRepository) ListCategories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCatalogRepository) ListByCategory(ctx context.Context, category string) ([]domain.Scenario, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Scenario), args.Error(1)
}

// MockEvaluationRepository is a mock implementation of domain.EvaluationRepository
type MockEvaluationRepository struct {
	mock.Mock
}

func (m *MockEvaluationRepository) Create(ctx context.Context, result *domain.EvaluationResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockEvaluationRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*domain.EvaluationResult, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EvaluationResult), args.Error(1)
}

// MockExamRepository is a mock implementation of domain.ExamRepository
type MockExamRepository struct {
	mock.Mock
}

func (m *MockExamRepository) Create(ctx context.Context, exam *domain.ExamSession) error {
	args := m.Called(ctx, exam)
	return args.Error(0)
}

func (m *MockExamRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ExamSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExamSession), args.Error(1)
}

func (m *MockExamRepository) LinkSlot(ctx context.Context, examID uuid.UUID, position int, sessionID uuid.UUID) error {
	args := m.Called(ctx, examID, position, sessionID)
	return args.Error(0)
}

func (m *MockExamRepository) Complete(ctx context.Context, exam *domain.ExamSession) error {
	args := m.Called(ctx, exam)
	return args.Error(0)
}

// MockProvider is a mock implementation of ai.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) IsConfigured() bool { return true }

func (m *MockProvider) OpenSession(ctx context.Context, script string) (string, error) {
	args := m.Called(ctx, script)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) StreamReply(ctx context.Context, script string, history []ai.Message, message string) (ai.Stream, error) {
	args := m.Called(ctx, script, history, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ai.Stream), args.Error(1)
}

func (m *MockProvider) Evaluate(ctx context.Context, transcript string, rubric string) (*ai.Evaluation, error) {
	args := m.Called(ctx, transcript, rubric)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ai.Evaluation), args.Error(1)
}

// fakeStream replays canned fragments, then finishes with err (io.EOF
// for a clean end).
type fakeStream struct {
	fragments []string
	err       error
	pos       int
}

func newFakeStream(fragments ...string) *fakeStream {
	return &fakeStream{fragments: fragments, err: io.EOF}
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos >= len(s.fragments) {
		return "", s.err
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *fakeStream) Close() {}

func newTestRouter(provider ai.Provider) *ai.Router {
	router := ai.NewRouter("mock")
	router.RegisterProvider(provider)
	return router
}
