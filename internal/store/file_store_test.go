package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/store"
)

func newFileStore(t *testing.T) *store.FileStore {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newFileStore(t)

	require.NoError(t, s.Write("habits_h1", model.Document{"id": "h1", "name": "run", "streak": float64(3)}))

	value, err := s.Read("habits_h1")
	require.NoError(t, err)
	doc, err := store.AsDocument(value)
	require.NoError(t, err)
	assert.Equal(t, "run", doc["name"])
}

func TestFileStoreMissing(t *testing.T) {
	s := newFileStore(t)
	_, err := s.Read("habits_404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFileStoreDeleteIdempotent(t *testing.T) {
	s := newFileStore(t)

	require.NoError(t, s.Write("habits_h1", model.Document{"id": "h1"}))
	require.NoError(t, s.Delete("habits_h1"))
	require.NoError(t, s.Delete("habits_h1"))

	_, err := s.Read("habits_h1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFileStoreKeys(t *testing.T) {
	s := newFileStore(t)

	require.NoError(t, s.Write("goals", []model.Document{}))
	require.NoError(t, s.Write("goals_g1", model.Document{"id": "g1"}))
	require.NoError(t, s.Write("goals_g2", model.Document{"id": "g2"}))
	require.NoError(t, s.Write("notes_n1", model.Document{"id": "n1"}))

	keys, err := s.Keys("goals")
	require.NoError(t, err)
	assert.Equal(t, []string{"goals", "goals_g1", "goals_g2"}, keys)
}
