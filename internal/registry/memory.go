// Package registry provides an in-process dialogue registry for
// single-instance deployments and tests. Multi-instance deployments use
// the redis-backed registry instead.
package registry

import (
	"context"
	"sync"

	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/google/uuid"
)

// Memory is a map-backed domain.DialogueRegistry. Mutations are atomic
// per key under a single mutex.
type Memory struct {
	mu       sync.RWMutex
	contexts map[uuid.UUID]*domain.DialogueContext
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{contexts: make(map[uuid.UUID]*domain.DialogueContext)}
}

func (m *Memory) Get(_ context.Context, sessionID uuid.UUID) (*domain.DialogueContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dc, ok := m.contexts[sessionID]
	if !ok {
		return nil, nil
	}
	// Copy so callers never mutate the stored slice in place.
	cp := *dc
	cp.Fragments = append([]domain.Fragment(nil), dc.Fragments...)
	return &cp, nil
}

func (m *Memory) Put(_ context.Context, dc *domain.DialogueContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *dc
	cp.Fragments = append([]domain.Fragment(nil), dc.Fragments...)
	m.contexts[dc.SessionID] = &cp
	return nil
}

func (m *Memory) Remove(_ context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, sessionID)
	return nil
}
