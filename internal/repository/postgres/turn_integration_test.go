//go:build integration

package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicathon/patientsim/internal/domain"
)

// Run with TEST_DATABASE_URL pointing at a database with the migrations
// applied, e.g.
//
//	TEST_DATABASE_URL=postgres://localhost:5432/patientsim_test go test -tags integration ./internal/repository/postgres/
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// seedSession satisfies the turns foreign keys with a throwaway
// persona, scenario and session, and removes them on cleanup.
func seedSession(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	personaID := uuid.New()
	scenarioID := uuid.New()
	sessionID := uuid.New()

	_, err := pool.Exec(ctx,
		`INSERT INTO personas (id, name, script) VALUES ($1, 'test persona', 'script')`, personaID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO scenarios (id, title, category, script, rubric, default_persona_id)
		 VALUES ($1, 'test scenario', 'test', 'script', 'rubric', $2)`, scenarioID, personaID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO sessions (id, owner_id, scenario_id, persona_id, mode, state, started_at)
		 VALUES ($1, $2, $3, $4, 'practice', 'completed', $5)`,
		sessionID, uuid.New(), scenarioID, personaID, time.Now())
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
		pool.Exec(ctx, `DELETE FROM scenarios WHERE id = $1`, scenarioID)
		pool.Exec(ctx, `DELETE FROM personas WHERE id = $1`, personaID)
	})
	return sessionID
}

func TestTurnRepository_Append_ConcurrentSequencing(t *testing.T) {
	pool := testPool(t)
	repo := NewTurnRepository(pool)
	sessionID := seedSession(t, pool)

	const writers = 8
	const turnsPerWriter = 5

	var wg sync.WaitGroup
	errs := make(chan error, writers*turnsPerWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < turnsPerWriter; i++ {
				errs <- repo.Append(context.Background(), &domain.Turn{
					ID:        uuid.New(),
					SessionID: sessionID,
					Speaker:   domain.SpeakerCaller,
					Content:   "message",
					CreatedAt: time.Now(),
				})
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	turns, err := repo.ListBySession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, turns, writers*turnsPerWriter)

	// Strictly increasing and gapless from 1.
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.Seq)
	}
}

func TestTurnRepository_Append_IsolatedPerSession(t *testing.T) {
	pool := testPool(t)
	repo := NewTurnRepository(pool)
	first := seedSession(t, pool)
	second := seedSession(t, pool)

	for _, sessionID := range []uuid.UUID{first, second, first, second, first} {
		require.NoError(t, repo.Append(context.Background(), &domain.Turn{
			ID:        uuid.New(),
			SessionID: sessionID,
			Speaker:   domain.SpeakerAgent,
			Content:   "message",
			CreatedAt: time.Now(),
		}))
	}

	turns, err := repo.ListBySession(context.Background(), first)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.Seq)
	}

	turns, err = repo.ListBySession(context.Background(), second)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.Seq)
	}
}
