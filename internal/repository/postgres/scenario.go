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

// CatalogRepository implements domain.CatalogRepository. The scenario
// catalog is maintained by the content service; this side only reads.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetScenario(ctx context.Context, id uuid.UUID) (*domain.Scenario, error) {
	query := `
		SELECT id, title, category, script, rubric, default_persona_id
		FROM scenarios
		WHERE id = $1
	`
	var s domain.Scenario
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.Title,
		&s.Category,
		&s.Script,
		&s.Rubric,
		&s.DefaultPersonaID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScenarioNotFound
		}
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}
	return &s, nil
}

func (r *CatalogRepository) GetPersona(ctx context.Context, id uuid.UUID) (*domain.Persona, error) {
	query := `SELECT id, name, script FROM personas WHERE id = $1`
	var p domain.Persona
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Script)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPersonaNotFound
		}
		return nil, fmt.Errorf("failed to get persona: %w", err)
	}
	return &p, nil
}

func (r *CatalogRepository) ListCategories(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT category FROM scenarios ORDER BY category`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, nil
}

func (r *CatalogRepository) ListByCategory(ctx context.Context, category string) ([]domain.Scenario, error) {
	query := `
		SELECT id, title, category, script, rubric, default_persona_id
		FROM scenarios
		WHERE category = $1
	`
	rows, err := r.pool.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []domain.Scenario
	for rows.Next() {
		var s domain.Scenario
		if err := rows.Scan(
			&s.ID,
			&s.Title,
			&s.Category,
			&s.Script,
			&s.Rubric,
			&s.DefaultPersonaID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}
