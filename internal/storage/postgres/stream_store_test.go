package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

const (
	testSender    = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	testRecipient = "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"
	testToken     = "CDLZFC3SYJYDZT7K67VZ75HPJVIEUVNIXF47ZG2FB2RMQQVU2HHGCYSC"
)

// makeTestStream builds a stream with deterministic field values.
func makeTestStream(id int64) *domain.Stream {
	return &domain.Stream{
		StreamID:        id,
		Sender:          testSender,
		Recipient:       testRecipient,
		TokenAddress:    testToken,
		RatePerSecond:   "100",
		DepositedAmount: "5000",
		WithdrawnAmount: "0",
		StartTime:       1000,
		LastUpdateTime:  1000,
		IsActive:        true,
	}
}

func TestStreamStore_UpsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStreamStore(pool)

	stream := makeTestStream(42)
	require.NoError(t, store.Upsert(ctx, stream))

	got, err := store.GetByID(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), got.StreamID)
	assert.Equal(t, testSender, got.Sender)
	assert.Equal(t, testRecipient, got.Recipient)
	assert.Equal(t, testToken, got.TokenAddress)
	assert.Equal(t, "100", got.RatePerSecond)
	assert.Equal(t, "5000", got.DepositedAmount)
	assert.Equal(t, "0", got.WithdrawnAmount)
	assert.Equal(t, int64(1000), got.StartTime)
	assert.Equal(t, int64(1000), got.LastUpdateTime)
	assert.True(t, got.IsActive)
}

func TestStreamStore_FullAmountRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStreamStore(pool)

	// Boundary values of the signed 128-bit range must survive the
	// NUMERIC column round-trip without precision loss.
	stream := makeTestStream(1)
	stream.DepositedAmount = "170141183460469231731687303715884105727"
	stream.WithdrawnAmount = "-170141183460469231731687303715884105728"
	require.NoError(t, store.Upsert(ctx, stream))

	got, err := store.GetByID(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, "170141183460469231731687303715884105727", got.DepositedAmount)
	assert.Equal(t, "-170141183460469231731687303715884105728", got.WithdrawnAmount)
}

func TestStreamStore_UpsertReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStreamStore(pool)

	stream := makeTestStream(7)
	require.NoError(t, store.Upsert(ctx, stream))

	stream.DepositedAmount = "9000"
	stream.WithdrawnAmount = "500"
	stream.LastUpdateTime = 2000
	stream.IsActive = false
	require.NoError(t, store.Upsert(ctx, stream))

	got, err := store.GetByID(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, "9000", got.DepositedAmount)
	assert.Equal(t, "500", got.WithdrawnAmount)
	assert.Equal(t, int64(2000), got.LastUpdateTime)
	assert.False(t, got.IsActive)
}

func TestStreamStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStreamStore(pool)

	_, err := store.GetByID(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStreamStore_AddWithdrawn(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStreamStore(pool)

	require.NoError(t, store.Upsert(ctx, makeTestStream(7)))

	require.NoError(t, store.AddWithdrawn(ctx, 7, "300", 1100))
	require.NoError(t, store.AddWithdrawn(ctx, 7, "200", 1200))

	got, err := store.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "500", got.WithdrawnAmount)
	assert.Equal(t, int64(1200), got.LastUpdateTime)

	// Untouched columns keep their values.
	assert.Equal(t, "5000", got.DepositedAmount)
	assert.True(t, got.IsActive)
}

func TestStreamStore_AddWithdrawnMissingStream(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStreamStore(pool)

	err := store.AddWithdrawn(ctx, 404, "100", 1100)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStreamStore_GetByParticipant(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStreamStore(pool)

	asSender := makeTestStream(1)
	asSender.StartTime = 1000

	asRecipient := makeTestStream(2)
	asRecipient.Sender = testRecipient
	asRecipient.Recipient = testSender
	asRecipient.StartTime = 2000

	unrelated := makeTestStream(3)
	unrelated.Sender = testToken
	unrelated.Recipient = testToken

	for _, s := range []*domain.Stream{asSender, asRecipient, unrelated} {
		require.NoError(t, store.Upsert(ctx, s))
	}

	got, err := store.GetByParticipant(ctx, testSender)
	require.NoError(t, err)

	// Both directions match, newest start_time first.
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].StreamID)
	assert.Equal(t, int64(1), got[1].StreamID)
}

func TestStreamStore_GetActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStreamStore(pool)

	active := makeTestStream(1)
	cancelled := makeTestStream(2)
	cancelled.IsActive = false

	require.NoError(t, store.Upsert(ctx, active))
	require.NoError(t, store.Upsert(ctx, cancelled))

	got, err := store.GetActive(ctx)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].StreamID)
}
