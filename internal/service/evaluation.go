package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinicathon/patientsim/internal/ai"
	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EvaluationService grades completed sessions in the background and
// exposes the poll-until-ready contract to callers.
type EvaluationService struct {
	sessions    domain.SessionRepository
	transcripts domain.TranscriptRepository
	results     domain.EvaluationRepository
	catalog     domain.CatalogRepository
	engines     *ai.Router
	timeout     time.Duration

	wg sync.WaitGroup
	// inFlight holds the ids of sessions with a grading task running,
	// so a poll never doubles up on a live task.
	inFlight sync.Map
}

// NewEvaluationService creates a new evaluation service
func NewEvaluationService(
	sessions domain.SessionRepository,
	transcripts domain.TranscriptRepository,
	results domain.EvaluationRepository,
	catalog domain.CatalogRepository,
	engines *ai.Router,
	timeout time.Duration,
) *EvaluationService {
	return &EvaluationService{
		sessions:    sessions,
		transcripts: transcripts,
		results:     results,
		catalog:     catalog,
		engines:     engines,
		timeout:     timeout,
	}
}

// Launch runs Evaluate on its own task, detached from the triggering
// request. Failures are logged, never swallowed; the session stays in
// completing and the next result poll relaunches the grading. A no-op
// while a task for the session is already running.
func (s *EvaluationService) Launch(sessionID uuid.UUID) {
	if _, running := s.inFlight.LoadOrStore(sessionID, struct{}{}); running {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Delete(sessionID)
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.Evaluate(ctx, sessionID); err != nil {
			log.Error().Err(err).
				Str("session_id", sessionID.String()).
				Msg("evaluation failed, session left in completing")
		}
	}()
}

// Wait blocks until all launched evaluations have finished. Used on
// shutdown so in-flight grading is not cut off.
func (s *EvaluationService) Wait() {
	s.wg.Wait()
}

// Evaluate grades one session: load the transcript and the scenario's
// rubric, call the engine, store the result and flip the session to
// completed. A second call for the same session is a conflict and
// stores nothing.
func (s *EvaluationService) Evaluate(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.State == domain.SessionActive {
		return fmt.Errorf("%w: cannot evaluate an active session", domain.ErrSessionNotActive)
	}

	if existing, err := s.results.GetBySession(ctx, sessionID); err != nil {
		return err
	} else if existing != nil {
		return domain.ErrEvaluationExists
	}

	scenario, err := s.catalog.GetScenario(ctx, session.ScenarioID)
	if err != nil {
		return err
	}
	turns, err := s.transcripts.ListBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	provider, err := s.engines.Default()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}

	transcript := ai.FormatTranscript(turnsToMessages(turns))
	eval, err := provider.Evaluate(ctx, transcript, scenario.Rubric)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}

	result := &domain.EvaluationResult{
		ID:           uuid.New(),
		SessionID:    sessionID,
		OverallScore: eval.OverallScore,
		Summary:      eval.Summary,
		CreatedAt:    time.Now(),
	}
	for _, c := range eval.Checklist {
		result.Checklist = append(result.Checklist, domain.ChecklistOutcome{
			Category:  c.Category,
			Item:      c.Item,
			Passed:    c.Passed,
			Rationale: c.Rationale,
		})
	}
	result.Strengths = append(result.Strengths, eval.Strengths...)
	for _, imp := range eval.Improvements {
		result.Improvements = append(result.Improvements, domain.ImprovementArea{
			Area:   imp.Area,
			Advice: imp.Advice,
		})
	}

	if err := s.results.Create(ctx, result); err != nil {
		return err
	}
	if err := s.sessions.RecordScore(ctx, sessionID, result.OverallScore); err != nil {
		return err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Int("score", result.OverallScore).
		Msg("evaluation stored")
	return nil
}

// GetResult reports evaluation progress for an owned session. Callers
// poll until the status flips from evaluating to ready.
func (s *EvaluationService) GetResult(ctx context.Context, sessionID, ownerID uuid.UUID) (*domain.Feedback, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	result, err := s.results.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		// A grading task that failed leaves the session in completing
		// with nothing stored; relaunch it so the poll converges instead
		// of reporting evaluating forever.
		if session.State == domain.SessionCompleting {
			s.Launch(sessionID)
		}
		return &domain.Feedback{Status: domain.FeedbackEvaluating}, nil
	}
	return &domain.Feedback{Status: domain.FeedbackReady, Result: result}, nil
}

func turnsToMessages(turns []domain.Turn) []ai.Message {
	msgs := make([]ai.Message, 0, len(turns))
	for _, t := range turns {
		role := ai.RoleUser
		if t.Speaker == domain.SpeakerAgent {
			role = ai.RoleAgent
		}
		msgs = append(msgs, ai.Message{Role: role, Content: t.Content})
	}
	return msgs
}
