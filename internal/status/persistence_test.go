package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_UpsertAndGet(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", StatusFileName)
	store := NewFileStore(path)
	require.NotNil(t, store)

	ctx := context.Background()
	next := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.UpsertStatus(ctx, RunningStatus(next)))

	// Verify file was created and no temp file is left behind
	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := store.GetStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded.NextSyncTime)
	assert.Equal(t, SyncStateRunning, loaded.Status)
	assert.True(t, next.Equal(*loaded.NextSyncTime))
}

func TestFileStore_GetMissingFile(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), StatusFileName))

	loaded, err := store.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncStateNotRunning, loaded.Status)
	assert.Nil(t, loaded.NextSyncTime)
}

func TestFileStore_OverwritesPreviousStatus(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), StatusFileName))
	ctx := context.Background()

	require.NoError(t, store.UpsertStatus(ctx, RunningStatus(time.Now())))
	require.NoError(t, store.UpsertStatus(ctx, NotRunningStatus()))

	loaded, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncStateNotRunning, loaded.Status)
	assert.Nil(t, loaded.NextSyncTime)
}

func TestFileStore_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), StatusFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path).GetStatus(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal status data")
}

func TestFileStore_RejectsInvalidStatus(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), StatusFileName)
	err := NewFileStore(path).UpsertStatus(context.Background(), &SyncStatus{Status: SyncStateRunning})
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	initial, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncStateNotRunning, initial.Status)

	next := time.Now()
	require.NoError(t, store.UpsertStatus(ctx, RunningStatus(next)))

	loaded, err := store.GetStatus(ctx)
	require.NoError(t, err)
	loaded.Status = SyncStateUnHealthy
	*loaded.NextSyncTime = next.Add(time.Hour)

	again, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncStateRunning, again.Status)
	assert.True(t, next.Equal(*again.NextSyncTime))
}
