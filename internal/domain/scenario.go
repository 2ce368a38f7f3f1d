package domain

import (
	"context"

	"github.com/google/uuid"
)

// Scenario is a catalog entry describing one simulated case: the rule
// script driving the patient persona and the rubric used for grading.
// The catalog itself is an external collaborator; this service only
// reads it.
type Scenario struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Category         string    `json:"category"`
	Script           string    `json:"script"`
	Rubric           string    `json:"rubric"`
	DefaultPersonaID uuid.UUID `json:"default_persona_id"`
}

// Persona is a patient voice variant layered on top of a scenario script.
type Persona struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Script string    `json:"script"`
}

// CatalogRepository is the scenario/persona lookup collaborator.
type CatalogRepository interface {
	GetScenario(ctx context.Context, id uuid.UUID) (*Scenario, error)
	GetPersona(ctx context.Context, id uuid.UUID) (*Persona, error)
	// ListCategories returns the distinct top-level categories.
	ListCategories(ctx context.Context) ([]string, error)
	ListByCategory(ctx context.Context, category string) ([]Scenario, error)
}
