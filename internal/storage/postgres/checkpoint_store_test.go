package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

func TestCheckpointStore_GetBeforeFirstWrite(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)

	_, err := store.Get(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCheckpointStore_PutAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCheckpointStore(pool)

	cp := &domain.Checkpoint{
		LastLedger: 4298565,
		LastCursor: "0004298565-0000000012",
		UpdatedAt:  1700000000,
	}
	require.NoError(t, store.Put(ctx, cp))

	got, err := store.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint32(4298565), got.LastLedger)
	assert.Equal(t, "0004298565-0000000012", got.LastCursor)
	assert.Equal(t, int64(1700000000), got.UpdatedAt)
}

func TestCheckpointStore_PutReplacesSingleton(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCheckpointStore(pool)

	require.NoError(t, store.Put(ctx, &domain.Checkpoint{LastLedger: 100, LastCursor: "c1", UpdatedAt: 1}))
	require.NoError(t, store.Put(ctx, &domain.Checkpoint{LastLedger: 200, LastCursor: "c2", UpdatedAt: 2}))

	got, err := store.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint32(200), got.LastLedger)
	assert.Equal(t, "c2", got.LastCursor)

	// Still exactly one row.
	var n int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM indexer_checkpoint`).Scan(&n))
	assert.Equal(t, int64(1), n)
}
