package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clinicathon/patientsim/internal/ai"
	"github.com/clinicathon/patientsim/internal/domain"
)

type evaluationFixture struct {
	sessions    *MockSessionRepository
	transcripts *MockTranscriptRepository
	results     *MockEvaluationRepository
	catalog     *MockCatalogRepository
	provider    *MockProvider
	service     *EvaluationService
}

func newEvaluationFixture() *evaluationFixture {
	f := &evaluationFixture{
		sessions:    new(MockSessionRepository),
		transcripts: new(MockTranscriptRepository),
		results:     new(MockEvaluationRepository),
		catalog:     new(MockCatalogRepository),
		provider:    new(MockProvider),
	}
	f.service = NewEvaluationService(f.sessions, f.transcripts, f.results, f.catalog, newTestRouter(f.provider), 5*time.Second)
	return f
}

func TestEvaluationService_Evaluate(t *testing.T) {
	f := newEvaluationFixture()
	scenario := testScenario()
	session := &domain.Session{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		ScenarioID: scenario.ID,
		State:      domain.SessionCompleting,
	}
	turns := []domain.Turn{
		{Speaker: domain.SpeakerAgent, Content: "My chest hurts.", Seq: 1},
		{Speaker: domain.SpeakerCaller, Content: "When did it start?", Seq: 2},
		{Speaker: domain.SpeakerAgent, Content: "An hour ago.", Seq: 3},
	}
	grade := &ai.Evaluation{
		OverallScore: 72,
		Summary:      "Solid history taking, weak safety netting.",
		Checklist: []ai.ChecklistItem{
			{Category: "history", Item: "onset", Passed: true, Rationale: "asked directly"},
		},
		Strengths:    []string{"clear questions"},
		Improvements: []ai.Improvement{{Area: "safety netting", Advice: "state return criteria"}},
	}

	f.sessions.On("Get", mock.Anything, session.ID).Return(session, nil)
	f.results.On("GetBySession", mock.Anything, session.ID).Return(nil, nil)
	f.catalog.On("GetScenario", mock.Anything, scenario.ID).Return(scenario, nil)
	f.transcripts.On("ListBySession", mock.Anything, session.ID).Return(turns, nil)
	f.provider.On("Evaluate", mock.Anything, mock.Anything, scenario.Rubric).Return(grade, nil)

	var stored *domain.EvaluationResult
	f.results.On("Create", mock.Anything, mock.AnythingOfType("*domain.EvaluationResult")).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*domain.EvaluationResult)
		}).
		Return(nil)
	f.sessions.On("RecordScore", mock.Anything, session.ID, 72).Return(nil)

	err := f.service.Evaluate(context.Background(), session.ID)
	require.NoError(t, err)

	require.NotNil(t, stored)
	assert.Equal(t, session.ID, stored.SessionID)
	assert.Equal(t, 72, stored.OverallScore)
	assert.Len(t, stored.Checklist, 1)
	assert.Equal(t, []string{"clear questions"}, stored.Strengths)
	f.sessions.AssertCalled(t, "RecordScore", mock.Anything, session.ID, 72)
}

func TestEvaluationService_Evaluate_ActiveSession(t *testing.T) {
	f := newEvaluationFixture()
	session := &domain.Session{ID: uuid.New(), State: domain.SessionActive}

	f.sessions.On("Get", mock.Anything, session.ID).Return(session, nil)

	err := f.service.Evaluate(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
	f.results.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEvaluationService_Evaluate_AlreadyGraded(t *testing.T) {
	f := newEvaluationFixture()
	session := &domain.Session{ID: uuid.New(), State: domain.SessionCompleting}

	f.sessions.On("Get", mock.Anything, session.ID).Return(session, nil)
	f.results.On("GetBySession", mock.Anything, session.ID).Return(&domain.EvaluationResult{SessionID: session.ID}, nil)

	err := f.service.Evaluate(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrEvaluationExists)
	f.provider.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluationService_Evaluate_EngineFailureStoresNothing(t *testing.T) {
	f := newEvaluationFixture()
	scenario := testScenario()
	session := &domain.Session{ID: uuid.New(), ScenarioID: scenario.ID, State: domain.SessionCompleting}

	f.sessions.On("Get", mock.Anything, session.ID).Return(session, nil)
	f.results.On("GetBySession", mock.Anything, session.ID).Return(nil, nil)
	f.catalog.On("GetScenario", mock.Anything, scenario.ID).Return(scenario, nil)
	f.transcripts.On("ListBySession", mock.Anything, session.ID).Return([]domain.Turn{}, nil)
	f.provider.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).Return(nil, ai.ErrMalformedEvaluation)

	err := f.service.Evaluate(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
	f.results.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.sessions.AssertNotCalled(t, "RecordScore", mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluationService_GetResult(t *testing.T) {
	f := newEvaluationFixture()
	ownerID := uuid.New()
	session := &domain.Session{ID: uuid.New(), OwnerID: ownerID, State: domain.SessionCompleting}

	result := &domain.EvaluationResult{SessionID: session.ID, OverallScore: 88}
	f.sessions.On("Get", mock.Anything, session.ID).Return(session, nil)
	// First poll finds nothing stored; the relaunched grading task and
	// the second poll both see the stored result.
	f.results.On("GetBySession", mock.Anything, session.ID).Return(nil, nil).Once()
	f.results.On("GetBySession", mock.Anything, session.ID).Return(result, nil)

	feedback, err := f.service.GetResult(context.Background(), session.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackEvaluating, feedback.Status)
	assert.Nil(t, feedback.Result)
	f.service.Wait()

	feedback, err = f.service.GetResult(context.Background(), session.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackReady, feedback.Status)
	assert.Equal(t, 88, feedback.Result.OverallScore)
}

func TestEvaluationService_GetResult_RelaunchesFailedEvaluation(t *testing.T) {
	f := newEvaluationFixture()
	ownerID := uuid.New()
	scenario := testScenario()
	session := &domain.Session{ID: uuid.New(), OwnerID: ownerID, ScenarioID: scenario.ID, State: domain.SessionCompleting}
	grade := &ai.Evaluation{OverallScore: 64, Summary: "Missed red flags."}

	f.sessions.On("Get", mock.Anything, session.ID).Return(session, nil)
	f.results.On("GetBySession", mock.Anything, session.ID).Return(nil, nil)
	f.catalog.On("GetScenario", mock.Anything, scenario.ID).Return(scenario, nil)
	f.transcripts.On("ListBySession", mock.Anything, session.ID).Return([]domain.Turn{
		{Speaker: domain.SpeakerAgent, Content: "I feel dizzy.", Seq: 1},
	}, nil)
	f.provider.On("Evaluate", mock.Anything, mock.Anything, scenario.Rubric).Return(grade, nil)
	f.results.On("Create", mock.Anything, mock.AnythingOfType("*domain.EvaluationResult")).Return(nil)
	f.sessions.On("RecordScore", mock.Anything, session.ID, 64).Return(nil)

	// The earlier grading task died without storing anything, so the
	// poll reports evaluating and kicks off a fresh one.
	feedback, err := f.service.GetResult(context.Background(), session.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackEvaluating, feedback.Status)

	f.service.Wait()
	f.provider.AssertCalled(t, "Evaluate", mock.Anything, mock.Anything, scenario.Rubric)
	f.sessions.AssertCalled(t, "RecordScore", mock.Anything, session.ID, 64)
}

func TestEvaluationService_GetResult_WrongOwner(t *testing.T) {
	f := newEvaluationFixture()
	session := &domain.Session{ID: uuid.New(), OwnerID: uuid.New(), State: domain.SessionCompleting}

	f.sessions.On("Get", mock.Anything, session.ID).Return(session, nil)

	_, err := f.service.GetResult(context.Background(), session.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
