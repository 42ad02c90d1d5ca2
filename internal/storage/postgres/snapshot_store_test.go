package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-strategy-lab/internal/storage"
)

func TestSnapshotStore_PutAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	data := []byte(`{"meta":{"symbol":"USDJPY","last_timestamp":1700000000000}}`)
	require.NoError(t, store.Put(ctx, "run1", 1700000000000, data))

	got, err := store.Get(ctx, "run1", 1700000000000)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSnapshotStore_AppendOnly(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	require.NoError(t, store.Put(ctx, "run1", 1700000000000, []byte("a")))

	err := store.Put(ctx, "run1", 1700000000000, []byte("b"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// The original snapshot is untouched.
	got, err := store.Get(ctx, "run1", 1700000000000)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
}

func TestSnapshotStore_GetLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	// Inserted out of order: latest resolves by last_timestamp.
	require.NoError(t, store.Put(ctx, "run1", 1700000600000, []byte("mid")))
	require.NoError(t, store.Put(ctx, "run1", 1700000900000, []byte("newest")))
	require.NoError(t, store.Put(ctx, "run1", 1700000300000, []byte("oldest")))

	got, err := store.GetLatest(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, []byte("newest"), got)
}

func TestSnapshotStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	_, err := store.Get(ctx, "run1", 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetLatest(ctx, "run1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	assert.ErrorIs(t, store.Put(ctx, "", 1, []byte("x")), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Put(ctx, "run1", 1, nil), storage.ErrInvalidInput)
}

func TestSnapshotStore_RunIsolation(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	require.NoError(t, store.Put(ctx, "run1", 100, []byte("r1")))
	require.NoError(t, store.Put(ctx, "run2", 200, []byte("r2")))

	got, err := store.GetLatest(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, []byte("r1"), got)
}
