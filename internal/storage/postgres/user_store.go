package postgres

import (
	"context"
	"fmt"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

// UserStore implements storage.UserStore using PostgreSQL.
type UserStore struct {
	db querier
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{db: pool}
}

// Compile-time interface check.
var _ storage.UserStore = (*UserStore)(nil)

// Upsert inserts the user if absent. Existing rows keep their first_seen.
func (s *UserStore) Upsert(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (public_key, first_seen)
		VALUES ($1, $2)
		ON CONFLICT (public_key) DO NOTHING
	`

	_, err := s.db.Exec(ctx, query, u.PublicKey, u.FirstSeen)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetByKey retrieves a user by public key. Returns ErrNotFound if not exists.
func (s *UserStore) GetByKey(ctx context.Context, publicKey string) (*domain.User, error) {
	query := `SELECT public_key, first_seen FROM users WHERE public_key = $1`

	var u domain.User
	err := s.db.QueryRow(ctx, query, publicKey).Scan(&u.PublicKey, &u.FirstSeen)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user by key: %w", err)
	}
	return &u, nil
}

// Count returns the number of known users.
func (s *UserStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
