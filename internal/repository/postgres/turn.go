package postgres

import (
	"context"
	"fmt"

	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TurnRepository implements domain.TranscriptRepository on postgres.
type TurnRepository struct {
	pool *pgxpool.Pool
}

// NewTurnRepository creates a new transcript repository
func NewTurnRepository(pool *pgxpool.Pool) *TurnRepository {
	return &TurnRepository{pool: pool}
}

// Append inserts a turn with the next sequence number for its session.
// An advisory transaction lock on the session id serializes concurrent
// appends to the same session, so sequence numbers are gapless even
// under interleaving with other sessions' appends.
func (r *TurnRepository) Append(ctx context.Context, turn *domain.Turn) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text))`, turn.SessionID); err != nil {
		return fmt.Errorf("failed to lock session transcript: %w", err)
	}

	query := `
		INSERT INTO turns (id, session_id, speaker, content, seq, created_at)
		SELECT $1, $2, $3, $4, COALESCE(MAX(seq), 0) + 1, $5
		FROM turns WHERE session_id = $2
		RETURNING seq
	`
	if err := tx.QueryRow(ctx, query,
		turn.ID,
		turn.SessionID,
		turn.Speaker,
		turn.Content,
		turn.CreatedAt,
	).Scan(&turn.Seq); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

// ListBySession retrieves the full transcript in sequence order.
func (r *TurnRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Turn, error) {
	query := `
		SELECT id, session_id, speaker, content, seq, created_at
		FROM turns
		WHERE session_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var speaker string
		if err := rows.Scan(
			&t.ID,
			&t.SessionID,
			&speaker,
			&t.Content,
			&t.Seq,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Speaker = domain.Speaker(speaker)
		turns = append(turns, t)
	}
	return turns, nil
}
