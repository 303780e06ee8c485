package memory

import (
	"context"
	"sync"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu   sync.RWMutex
	data map[string]*domain.User // keyed by public_key
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		data: make(map[string]*domain.User),
	}
}

// Upsert inserts the user if absent. Existing rows keep their first_seen.
func (s *UserStore) Upsert(_ context.Context, u *domain.User) error {
	if u == nil || u.PublicKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[u.PublicKey]; exists {
		return nil
	}

	// Store a copy to prevent external mutation
	userCopy := *u
	s.data[u.PublicKey] = &userCopy
	return nil
}

// GetByKey retrieves a user by public key. Returns ErrNotFound if not exists.
func (s *UserStore) GetByKey(_ context.Context, publicKey string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.data[publicKey]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	userCopy := *u
	return &userCopy, nil
}

// Count returns the number of known users.
func (s *UserStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.data)), nil
}

// snapshot copies the current state for transactional rollback.
func (s *UserStore) snapshot() map[string]*domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string]*domain.User, len(s.data))
	for key, u := range s.data {
		userCopy := *u
		snap[key] = &userCopy
	}
	return snap
}

// restore replaces the current state with a snapshot.
func (s *UserStore) restore(snap map[string]*domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = snap
}

// Verify interface compliance at compile time.
var _ storage.UserStore = (*UserStore)(nil)
