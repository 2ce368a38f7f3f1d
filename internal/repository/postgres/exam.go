package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamRepository implements domain.ExamRepository
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new exam repository
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func (r *ExamRepository) Create(ctx context.Context, exam *domain.ExamSession) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO exams (id, owner_id, exam_type, state, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, query,
		exam.ID,
		exam.OwnerID,
		exam.Type,
		exam.State,
		exam.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create exam: %w", err)
	}

	slotQuery := `
		INSERT INTO exam_slots (exam_id, position, scenario_id)
		VALUES ($1, $2, $3)
	`
	for _, slot := range exam.Slots {
		if _, err := tx.Exec(ctx, slotQuery, exam.ID, slot.Position, slot.ScenarioID); err != nil {
			return fmt.Errorf("failed to create exam slot %d: %w", slot.Position, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit exam: %w", err)
	}
	return nil
}

func (r *ExamRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ExamSession, error) {
	query := `
		SELECT id, owner_id, exam_type, state, aggregate_score, created_at, completed_at
		FROM exams
		WHERE id = $1
	`
	var e domain.ExamSession
	var examType, state string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID,
		&e.OwnerID,
		&examType,
		&state,
		&e.AggregateScore,
		&e.CreatedAt,
		&e.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	e.Type = domain.ExamType(examType)
	e.State = domain.ExamState(state)

	slotQuery := `
		SELECT position, scenario_id, session_id, score
		FROM exam_slots
		WHERE exam_id = $1
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, slotQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list exam slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.CaseSlot
		if err := rows.Scan(&s.Position, &s.ScenarioID, &s.SessionID, &s.Score); err != nil {
			return nil, fmt.Errorf("failed to scan exam slot: %w", err)
		}
		e.Slots = append(e.Slots, s)
	}
	return &e, nil
}

func (r *ExamRepository) LinkSlot(ctx context.Context, examID uuid.UUID, position int, sessionID uuid.UUID) error {
	query := `
		UPDATE exam_slots SET session_id = $1
		WHERE exam_id = $2 AND position = $3
	`
	tag, err := r.pool.Exec(ctx, query, sessionID, examID, position)
	if err != nil {
		return fmt.Errorf("failed to link exam slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCaseNotFound
	}
	return nil
}

// Complete writes slot scores, aggregate and terminal state in one
// transaction. Nothing is written unless everything is.
func (r *ExamRepository) Complete(ctx context.Context, exam *domain.ExamSession) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	slotQuery := `
		UPDATE exam_slots SET score = $1
		WHERE exam_id = $2 AND position = $3
	`
	for _, slot := range exam.Slots {
		if slot.Score == nil {
			continue
		}
		if _, err := tx.Exec(ctx, slotQuery, slot.Score, exam.ID, slot.Position); err != nil {
			return fmt.Errorf("failed to record slot %d score: %w", slot.Position, err)
		}
	}

	examQuery := `
		UPDATE exams SET state = $1, aggregate_score = $2, completed_at = $3
		WHERE id = $4 AND state = $5
	`
	tag, err := tx.Exec(ctx, examQuery,
		domain.ExamDone,
		exam.AggregateScore,
		exam.CompletedAt,
		exam.ID,
		domain.ExamStarted,
	)
	if err != nil {
		return fmt.Errorf("failed to complete exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExamCompleted
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit exam completion: %w", err)
	}
	return nil
}
