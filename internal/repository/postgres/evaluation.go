package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EvaluationRepository implements domain.EvaluationRepository
type EvaluationRepository struct {
	pool *pgxpool.Pool
}

// NewEvaluationRepository creates a new evaluation repository
func NewEvaluationRepository(pool *pgxpool.Pool) *EvaluationRepository {
	return &EvaluationRepository{pool: pool}
}

// Create inserts an evaluation result. The session_id unique constraint
// makes re-evaluation of the same session a conflict, surfaced as
// domain.ErrEvaluationExists.
func (r *EvaluationRepository) Create(ctx context.Context, result *domain.EvaluationResult) error {
	checklist, err := json.Marshal(result.Checklist)
	if err != nil {
		return fmt.Errorf("failed to marshal checklist: %w", err)
	}
	strengths, err := json.Marshal(result.Strengths)
	if err != nil {
		return fmt.Errorf("failed to marshal strengths: %w", err)
	}
	improvements, err := json.Marshal(result.Improvements)
	if err != nil {
		return fmt.Errorf("failed to marshal improvements: %w", err)
	}

	query := `
		INSERT INTO evaluations (id, session_id, overall_score, summary, checklist, strengths, improvements, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		result.ID,
		result.SessionID,
		result.OverallScore,
		result.Summary,
		checklist,
		strengths,
		improvements,
		result.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrEvaluationExists
		}
		return fmt.Errorf("failed to create evaluation: %w", err)
	}
	return nil
}

// GetBySession returns the stored result for a session, or (nil, nil)
// when no evaluation has been written yet.
func (r *EvaluationRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*domain.EvaluationResult, error) {
	query := `
		SELECT id, session_id, overall_score, summary, checklist, strengths, improvements, created_at
		FROM evaluations
		WHERE session_id = $1
	`
	var res domain.EvaluationResult
	var checklist, strengths, improvements []byte
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&res.ID,
		&res.SessionID,
		&res.OverallScore,
		&res.Summary,
		&checklist,
		&strengths,
		&improvements,
		&res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	if err := json.Unmarshal(checklist, &res.Checklist); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checklist: %w", err)
	}
	if err := json.Unmarshal(strengths, &res.Strengths); err != nil {
		return nil, fmt.Errorf("failed to unmarshal strengths: %w", err)
	}
	if err := json.Unmarshal(improvements, &res.Improvements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal improvements: %w", err)
	}
	return &res, nil
}
