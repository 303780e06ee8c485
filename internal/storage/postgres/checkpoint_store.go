package postgres

import (
	"context"
	"fmt"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore using PostgreSQL.
// The indexer_checkpoint table holds exactly one row.
type CheckpointStore struct {
	db querier
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{db: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Get retrieves the checkpoint. Returns ErrNotFound before the first write.
func (s *CheckpointStore) Get(ctx context.Context) (*domain.Checkpoint, error) {
	query := `SELECT last_ledger, last_cursor, updated_at FROM indexer_checkpoint WHERE id = 1`

	var cp domain.Checkpoint
	var ledger int64

	err := s.db.QueryRow(ctx, query).Scan(&ledger, &cp.LastCursor, &cp.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}

	cp.LastLedger = uint32(ledger)
	return &cp, nil
}

// Put replaces the checkpoint atomically.
func (s *CheckpointStore) Put(ctx context.Context, cp *domain.Checkpoint) error {
	query := `
		INSERT INTO indexer_checkpoint (id, last_ledger, last_cursor, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			last_ledger = EXCLUDED.last_ledger,
			last_cursor = EXCLUDED.last_cursor,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.Exec(ctx, query, int64(cp.LastLedger), cp.LastCursor, cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}
