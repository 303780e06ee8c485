package memory

import (
	"context"
	"sync"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu sync.RWMutex
	cp *domain.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{}
}

// Get retrieves the checkpoint. Returns ErrNotFound before the first write.
func (s *CheckpointStore) Get(_ context.Context) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cp == nil {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	cpCopy := *s.cp
	return &cpCopy, nil
}

// Put replaces the checkpoint atomically.
func (s *CheckpointStore) Put(_ context.Context, cp *domain.Checkpoint) error {
	if cp == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	cpCopy := *cp
	s.cp = &cpCopy
	return nil
}

// Verify interface compliance at compile time.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)
