package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mathscrap/mathscrap-backend/internal/logger"
)

func newStore(t *testing.T) BlobStore {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	store, err := NewLocalStore(log, filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return store
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	handle, err := store.Save(ctx, "photo.png", []byte("image bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	data, err := store.Load(ctx, handle)
	require.NoError(t, err)
	require.Equal(t, []byte("image bytes"), data)
}

func TestSaveSanitizesName(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	handle, err := store.Save(ctx, "../../etc/passwd", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "passwd", filepath.Base(handle))
}

func TestSaveRejectsEmptyName(t *testing.T) {
	store := newStore(t)

	_, err := store.Save(context.Background(), "  ", []byte("x"))
	require.Error(t, err)
}

func TestLoadMissingBlob(t *testing.T) {
	store := newStore(t)

	_, err := store.Load(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
}
