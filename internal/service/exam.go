package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ExamService fans a mock exam out into independent case sessions and
// aggregates their evaluations into one composite score.
type ExamService struct {
	exams    domain.ExamRepository
	catalog  domain.CatalogRepository
	sessions *SessionService
	results  domain.EvaluationRepository

	caseCount    int
	pollInterval time.Duration
	maxWait      time.Duration
}

// NewExamService creates a new exam service
func NewExamService(
	exams domain.ExamRepository,
	catalog domain.CatalogRepository,
	sessions *SessionService,
	results domain.EvaluationRepository,
	caseCount int,
	pollInterval time.Duration,
	maxWait time.Duration,
) *ExamService {
	return &ExamService{
		exams:        exams,
		catalog:      catalog,
		sessions:     sessions,
		results:      results,
		caseCount:    caseCount,
		pollInterval: pollInterval,
		maxWait:      maxWait,
	}
}

// Start builds an exam of caseCount slots. Random exams draw one
// scenario per distinct top-level category; specified exams place the
// requested scenarios first and fill the remainder from categories not
// yet used.
func (s *ExamService) Start(ctx context.Context, ownerID uuid.UUID, examType domain.ExamType, requested []uuid.UUID) (*domain.ExamSession, error) {
	var slots []domain.CaseSlot
	var err error
	switch examType {
	case domain.ExamRandom:
		slots, err = s.randomSlots(ctx)
	case domain.ExamSpecified:
		slots, err = s.specifiedSlots(ctx, requested)
	default:
		return nil, fmt.Errorf("unknown exam type: %s", examType)
	}
	if err != nil {
		return nil, err
	}

	exam := &domain.ExamSession{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Type:      examType,
		State:     domain.ExamStarted,
		Slots:     slots,
		CreatedAt: time.Now(),
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, err
	}

	log.Info().
		Str("exam_id", exam.ID.String()).
		Str("type", string(examType)).
		Int("cases", len(slots)).
		Msg("exam started")
	return exam, nil
}

func (s *ExamService) randomSlots(ctx context.Context) ([]domain.CaseSlot, error) {
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if len(categories) < s.caseCount {
		return nil, fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientCategories, len(categories), s.caseCount)
	}

	rand.Shuffle(len(categories), func(i, j int) {
		categories[i], categories[j] = categories[j], categories[i]
	})

	slots := make([]domain.CaseSlot, 0, s.caseCount)
	for _, category := range categories[:s.caseCount] {
		scenario, err := s.pickFromCategory(ctx, category, nil)
		if err != nil {
			return nil, err
		}
		slots = append(slots, domain.CaseSlot{
			Position:   len(slots) + 1,
			ScenarioID: scenario.ID,
		})
	}
	return slots, nil
}

func (s *ExamService) specifiedSlots(ctx context.Context, requested []uuid.UUID) ([]domain.CaseSlot, error) {
	if len(requested) > s.caseCount {
		return nil, fmt.Errorf("at most %d scenarios may be requested", s.caseCount)
	}

	slots := make([]domain.CaseSlot, 0, s.caseCount)
	chosen := make(map[uuid.UUID]bool)
	usedCategories := make(map[string]bool)
	for _, id := range requested {
		if chosen[id] {
			return nil, fmt.Errorf("duplicate scenario requested: %s", id)
		}
		scenario, err := s.catalog.GetScenario(ctx, id)
		if err != nil {
			return nil, err
		}
		chosen[id] = true
		usedCategories[scenario.Category] = true
		slots = append(slots, domain.CaseSlot{
			Position:   len(slots) + 1,
			ScenarioID: scenario.ID,
		})
	}

	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	var unused []string
	for _, c := range categories {
		if !usedCategories[c] {
			unused = append(unused, c)
		}
	}

	remaining := s.caseCount - len(slots)
	if len(unused) < remaining {
		return nil, fmt.Errorf("%w: have %d unused, need %d more", domain.ErrInsufficientCategories, len(unused), remaining)
	}

	rand.Shuffle(len(unused), func(i, j int) {
		unused[i], unused[j] = unused[j], unused[i]
	})
	for _, category := range unused {
		if len(slots) == s.caseCount {
			break
		}
		scenario, err := s.pickFromCategory(ctx, category, chosen)
		if err != nil {
			if errors.Is(err, domain.ErrScenarioNotFound) {
				// Every scenario in this category was already requested;
				// try the next one.
				continue
			}
			return nil, err
		}
		chosen[scenario.ID] = true
		slots = append(slots, domain.CaseSlot{
			Position:   len(slots) + 1,
			ScenarioID: scenario.ID,
		})
	}
	if len(slots) < s.caseCount {
		return nil, fmt.Errorf("%w: categories exhausted at %d of %d slots", domain.ErrInsufficientCategories, len(slots), s.caseCount)
	}
	return slots, nil
}

// pickFromCategory draws uniformly from the category, skipping excluded ids.
func (s *ExamService) pickFromCategory(ctx context.Context, category string, exclude map[uuid.UUID]bool) (*domain.Scenario, error) {
	scenarios, err := s.catalog.ListByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	candidates := scenarios[:0]
	for _, sc := range scenarios {
		if !exclude[sc.ID] {
			candidates = append(candidates, sc)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: category %q", domain.ErrScenarioNotFound, category)
	}
	picked := candidates[rand.IntN(len(candidates))]
	return &picked, nil
}

// CaseStart is the handle returned when a slot's session starts or
// resumes. OpeningTurn is nil on resume.
type CaseStart struct {
	Session     *domain.Session `json:"session"`
	OpeningTurn *domain.Turn    `json:"opening_turn,omitempty"`
}

// StartCase lazily starts the session behind one case slot, or returns
// the already-linked session when the case was started before.
func (s *ExamService) StartCase(ctx context.Context, examID uuid.UUID, caseNumber int, ownerID uuid.UUID) (*CaseStart, error) {
	exam, err := s.getOwned(ctx, examID, ownerID)
	if err != nil {
		return nil, err
	}
	if exam.State == domain.ExamDone {
		return nil, fmt.Errorf("%w: %s", domain.ErrExamCompleted, examID)
	}
	if caseNumber < 1 || caseNumber > len(exam.Slots) {
		return nil, fmt.Errorf("%w: case %d of exam %s", domain.ErrCaseNotFound, caseNumber, examID)
	}

	slot := exam.Slots[caseNumber-1]
	if slot.SessionID != nil {
		session, err := s.sessions.Get(ctx, *slot.SessionID, ownerID)
		if err != nil {
			return nil, err
		}
		return &CaseStart{Session: session}, nil
	}

	session, opening, err := s.sessions.Start(ctx, ownerID, slot.ScenarioID, nil, domain.ModeExamCase, &examID)
	if err != nil {
		return nil, err
	}
	if err := s.exams.LinkSlot(ctx, examID, caseNumber, session.ID); err != nil {
		return nil, err
	}
	return &CaseStart{Session: session, OpeningTurn: opening}, nil
}

// Complete is the synchronization point: it polls the evaluation store
// for every started case until all results exist or the bounded wait
// elapses. On success all slot scores, the aggregate mean and the
// completed state are committed together; on timeout nothing is written
// and the call can simply be retried.
func (s *ExamService) Complete(ctx context.Context, examID, ownerID uuid.UUID) (*domain.ExamSession, error) {
	exam, err := s.getOwned(ctx, examID, ownerID)
	if err != nil {
		return nil, err
	}
	if exam.State == domain.ExamDone {
		// Repeated completion attempts are idempotent.
		return exam, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.maxWait)
	defer cancel()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		pending := 0
		for i := range exam.Slots {
			slot := &exam.Slots[i]
			// Never-started slots are excluded from the wait-set and
			// from the aggregate.
			if slot.SessionID == nil || slot.Score != nil {
				continue
			}
			result, err := s.results.GetBySession(waitCtx, *slot.SessionID)
			if err != nil {
				return nil, err
			}
			if result == nil {
				pending++
				continue
			}
			score := result.OverallScore
			slot.Score = &score
		}
		if pending == 0 {
			break
		}
		select {
		case <-waitCtx.Done():
			log.Info().
				Str("exam_id", examID.String()).
				Int("pending", pending).
				Msg("exam completion timed out waiting for evaluations")
			return nil, fmt.Errorf("%w: %d of %d", domain.ErrEvaluationsPending, pending, len(exam.Slots))
		case <-ticker.C:
		}
	}

	sum, count := 0, 0
	for _, slot := range exam.Slots {
		if slot.Score != nil {
			sum += *slot.Score
			count++
		}
	}
	aggregate := 0
	if count > 0 {
		aggregate = int(math.Round(float64(sum) / float64(count)))
	}

	now := time.Now()
	exam.State = domain.ExamDone
	exam.AggregateScore = &aggregate
	exam.CompletedAt = &now
	if err := s.exams.Complete(ctx, exam); err != nil {
		if errors.Is(err, domain.ErrExamCompleted) {
			// Lost a race with a concurrent completion; the stored exam
			// is the one that counts.
			return s.exams.Get(ctx, examID)
		}
		return nil, err
	}

	log.Info().
		Str("exam_id", examID.String()).
		Int("aggregate", aggregate).
		Int("scored_cases", count).
		Msg("exam completed")
	return exam, nil
}

// Get returns an exam owned by the caller.
func (s *ExamService) Get(ctx context.Context, examID, ownerID uuid.UUID) (*domain.ExamSession, error) {
	return s.getOwned(ctx, examID, ownerID)
}

func (s *ExamService) getOwned(ctx context.Context, examID, ownerID uuid.UUID) (*domain.ExamSession, error) {
	exam, err := s.exams.Get(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", domain.ErrExamNotFound, examID)
	}
	return exam, nil
}
