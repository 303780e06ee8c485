package storage

import (
	"context"

	"soroban-stream-indexer/internal/domain"
)

// StreamStore provides access to streams storage.
type StreamStore interface {
	// Upsert inserts a stream or replaces the existing row keyed on stream_id.
	Upsert(ctx context.Context, s *domain.Stream) error

	// GetByID retrieves a stream by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, streamID int64) (*domain.Stream, error)

	// AddWithdrawn adds delta (a base-10 decimal string) to the stream's
	// withdrawn amount and sets last_update_time, as a single statement
	// so the accumulation cannot lose concurrent updates. Returns
	// ErrNotFound when the stream does not exist.
	AddWithdrawn(ctx context.Context, streamID int64, delta string, updateTime int64) error

	// GetByParticipant retrieves streams where the address is sender or
	// recipient, ordered by start_time DESC.
	GetByParticipant(ctx context.Context, address string) ([]*domain.Stream, error)

	// GetActive retrieves all active streams, ordered by start_time DESC.
	GetActive(ctx context.Context) ([]*domain.Stream, error)
}

// StreamEventStore provides access to stream_events storage.
type StreamEventStore interface {
	// Insert appends a new event. Returns ErrDuplicateKey if an event with
	// the same (stream_id, event_type, tx_hash, ledger_sequence) exists.
	Insert(ctx context.Context, e *domain.StreamEvent) error

	// Exists reports whether an event with the same deduplication tuple
	// has already been recorded.
	Exists(ctx context.Context, streamID int64, eventType domain.EventType, txHash string, ledger uint32) (bool, error)

	// GetByStreamID retrieves all events for a stream, ordered by ledger_sequence ASC.
	GetByStreamID(ctx context.Context, streamID int64) ([]*domain.StreamEvent, error)

	// CountByType returns recorded event counts grouped by event type.
	CountByType(ctx context.Context) (map[domain.EventType]int64, error)
}

// UserStore provides access to users storage.
type UserStore interface {
	// Upsert inserts the user if absent. Existing rows keep their first_seen.
	Upsert(ctx context.Context, u *domain.User) error

	// GetByKey retrieves a user by public key. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, publicKey string) (*domain.User, error)

	// Count returns the number of known users.
	Count(ctx context.Context) (int64, error)
}

// CheckpointStore provides access to the singleton indexer checkpoint.
type CheckpointStore interface {
	// Get retrieves the checkpoint. Returns ErrNotFound before the first write.
	Get(ctx context.Context) (*domain.Checkpoint, error)

	// Put replaces the checkpoint atomically.
	Put(ctx context.Context, cp *domain.Checkpoint) error
}

// ActivityStore provides access to the stream_activity analytics table.
type ActivityStore interface {
	// InsertBulk adds multiple activity rows. Rows are write-once.
	InsertBulk(ctx context.Context, rows []*domain.ActivityRow) error

	// GetByStreamID retrieves all activity for a stream, ordered by ledger ASC.
	GetByStreamID(ctx context.Context, streamID int64) ([]*domain.ActivityRow, error)

	// Totals returns per-event-type counts and amount sums across all streams.
	Totals(ctx context.Context) ([]*domain.ActivityTotal, error)
}

// Tx exposes transaction-scoped stores for one atomic unit of work.
// Every store obtained from a Tx runs its statements on the same
// underlying transaction.
type Tx interface {
	Streams() StreamStore
	StreamEvents() StreamEventStore
	Users() UserStore
}

// UnitOfWork runs a function inside a single database transaction.
// The transaction commits if fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
