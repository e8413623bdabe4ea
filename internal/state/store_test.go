package state

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewWithDB(db)
}

func TestStore(t *testing.T) {
	store := setupTestStore(t)

	t.Run("LastProcessedRoundTrip", func(t *testing.T) {
		_, ok, err := store.LastProcessed("upstream")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.SetLastProcessed("upstream", "abc123"))

		commit, ok, err := store.LastProcessed("upstream")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "abc123", commit)

		// Remotes are independent.
		_, ok, err = store.LastProcessed("other")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.SetLastProcessed("upstream", "def456"))
		commit, _, err := store.LastProcessed("upstream")
		require.NoError(t, err)
		assert.Equal(t, "def456", commit)
	})

	t.Run("RunsOrderedByStart", func(t *testing.T) {
		base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
		for _, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
			run := &Run{
				ID:        uuid.NewString(),
				Remote:    "upstream",
				StartedAt: base.Add(offset),
				Commits:   []string{"c1"},
			}
			require.NoError(t, store.RecordRun(run))
		}

		runs, err := store.Runs()
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.True(t, runs[0].StartedAt.Before(runs[1].StartedAt))
		assert.True(t, runs[1].StartedAt.Before(runs[2].StartedAt))
	})

	t.Run("RunErrorPreserved", func(t *testing.T) {
		run := &Run{
			ID:        uuid.NewString(),
			Remote:    "upstream",
			StartedAt: time.Now().UTC(),
			Error:     "PATCH_APPLY: every apply strategy failed",
		}
		require.NoError(t, store.RecordRun(run))

		runs, err := store.Runs()
		require.NoError(t, err)
		found := false
		for _, r := range runs {
			if r.ID == run.ID {
				found = true
				assert.Equal(t, run.Error, r.Error)
			}
		}
		assert.True(t, found)
	})
}
