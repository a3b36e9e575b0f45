package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/keeeei13c/speedy-english-training/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]HistoryStore {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tutor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]HistoryStore{
		BackendMemory: NewMemoryStore(),
		BackendSQLite: sqlite,
	}
}

func TestHistoryStore(t *testing.T) {
	system := models.Turn{Role: models.RoleSystem, Content: "be a tutor"}

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			turns, err := store.History(ctx, "a")
			require.NoError(t, err)
			assert.Empty(t, turns)

			require.NoError(t, store.Reset(ctx, "a", system))
			require.NoError(t, store.Append(ctx, "a", models.Turn{Role: models.RoleUser, Content: "Start"}))
			require.NoError(t, store.Append(ctx, "a", models.Turn{Role: models.RoleAssistant, Content: "{}"}))
			require.NoError(t, store.Append(ctx, "b", models.Turn{Role: models.RoleUser, Content: "other"}))

			turns, err = store.History(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []models.Turn{
				system,
				{Role: models.RoleUser, Content: "Start"},
				{Role: models.RoleAssistant, Content: "{}"},
			}, turns)

			require.NoError(t, store.Reset(ctx, "a", system))
			turns, err = store.History(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []models.Turn{system}, turns)

			turns, err = store.History(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, []models.Turn{{Role: models.RoleUser, Content: "other"}}, turns)
		})
	}
}

func TestMemoryStoreHistoryIsACopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Append(ctx, "a", models.Turn{Role: models.RoleUser, Content: "hi"}))

	turns, err := store.History(ctx, "a")
	require.NoError(t, err)
	turns[0].Content = "changed"

	again, err := store.History(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "hi", again[0].Content)
}

func TestOpen(t *testing.T) {
	store, err := Open("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(BackendSQLite, ":memory:")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open("redis", "")
	assert.Error(t, err)
}
