package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicathon/patientsim/internal/domain"
)

func TestMemory_MissReturnsNil(t *testing.T) {
	m := NewMemory()

	dc, err := m.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, dc)
}

func TestMemory_PutGetRemove(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sessionID := uuid.New()

	dc := &domain.DialogueContext{SessionID: sessionID}
	dc.Append(domain.SpeakerAgent, "Hello doctor.")
	require.NoError(t, m.Put(ctx, dc))

	got, err := m.Get(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Fragments, 1)
	assert.Equal(t, "Hello doctor.", got.Fragments[0].Content)

	require.NoError(t, m.Remove(ctx, sessionID))
	got, err = m.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sessionID := uuid.New()

	dc := &domain.DialogueContext{SessionID: sessionID}
	dc.Append(domain.SpeakerAgent, "original")
	require.NoError(t, m.Put(ctx, dc))

	got, err := m.Get(ctx, sessionID)
	require.NoError(t, err)
	got.Fragments[0].Content = "mutated"
	got.Append(domain.SpeakerCaller, "extra")

	fresh, err := m.Get(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, fresh.Fragments, 1)
	assert.Equal(t, "original", fresh.Fragments[0].Content)
}

func TestMemory_PutOverwrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sessionID := uuid.New()

	first := &domain.DialogueContext{SessionID: sessionID}
	first.Append(domain.SpeakerAgent, "one")
	require.NoError(t, m.Put(ctx, first))

	second := &domain.DialogueContext{SessionID: sessionID}
	second.Append(domain.SpeakerAgent, "one")
	second.Append(domain.SpeakerCaller, "two")
	require.NoError(t, m.Put(ctx, second))

	got, err := m.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, got.Fragments, 2)
}
