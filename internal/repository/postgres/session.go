package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, owner_id, scenario_id, persona_id, mode, state, exam_id, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.OwnerID,
		session.ScenarioID,
		session.PersonaID,
		session.Mode,
		session.State,
		session.ExamID,
		session.StartedAt,
	)
	if err != nil {
		// Partial unique index on (owner_id) WHERE state = 'active':
		// losing a concurrent-start race surfaces as a conflict the
		// service can supersede and retry.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: owner %s", domain.ErrSessionConflict, session.OwnerID)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, owner_id, scenario_id, persona_id, mode, state, exam_id, final_score, started_at, ended_at
		FROM sessions
		WHERE id = $1
	`
	var s domain.Session
	var mode, state string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.OwnerID,
		&s.ScenarioID,
		&s.PersonaID,
		&mode,
		&state,
		&s.ExamID,
		&s.FinalScore,
		&s.StartedAt,
		&s.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	s.Mode = domain.SessionMode(mode)
	s.State = domain.SessionState(state)
	return &s, nil
}

func (r *SessionRepository) FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Session, error) {
	query := `
		SELECT id, owner_id, scenario_id, persona_id, mode, state, exam_id, final_score, started_at, ended_at
		FROM sessions
		WHERE owner_id = $1 AND state = $2
	`
	rows, err := r.pool.Query(ctx, query, ownerID, domain.SessionActive)
	if err != nil {
		return nil, fmt.Errorf("failed to find active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		var mode, state string
		if err := rows.Scan(
			&s.ID,
			&s.OwnerID,
			&s.ScenarioID,
			&s.PersonaID,
			&mode,
			&state,
			&s.ExamID,
			&s.FinalScore,
			&s.StartedAt,
			&s.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.Mode = domain.SessionMode(mode)
		s.State = domain.SessionState(state)
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (r *SessionRepository) UpdateState(ctx context.Context, id uuid.UUID, state domain.SessionState) error {
	query := `UPDATE sessions SET state = $1 WHERE id = $2`
	tag, err := r.pool.Exec(ctx, query, state, id)
	if err != nil {
		return fmt.Errorf("failed to update session state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) MarkCompleting(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	query := `
		UPDATE sessions SET state = $1, ended_at = $2
		WHERE id = $3 AND state = $4
	`
	tag, err := r.pool.Exec(ctx, query, domain.SessionCompleting, endedAt, id, domain.SessionActive)
	if err != nil {
		return fmt.Errorf("failed to mark session completing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotActive
	}
	return nil
}

func (r *SessionRepository) RecordScore(ctx context.Context, id uuid.UUID, score int) error {
	// Guarded on completing so a score is written at most once and never
	// against an active or abandoned session.
	query := `
		UPDATE sessions SET state = $1, final_score = $2
		WHERE id = $3 AND state = $4
	`
	tag, err := r.pool.Exec(ctx, query, domain.SessionCompleted, score, id, domain.SessionCompleting)
	if err != nil {
		return fmt.Errorf("failed to record session score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotActive
	}
	return nil
}
