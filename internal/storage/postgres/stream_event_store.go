package postgres

import (
	"context"
	"fmt"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

// StreamEventStore implements storage.StreamEventStore using PostgreSQL.
type StreamEventStore struct {
	db querier
}

// NewStreamEventStore creates a new StreamEventStore.
func NewStreamEventStore(pool *Pool) *StreamEventStore {
	return &StreamEventStore{db: pool}
}

// Compile-time interface check.
var _ storage.StreamEventStore = (*StreamEventStore)(nil)

// Insert appends a new event. Returns ErrDuplicateKey if an event with
// the same (stream_id, event_type, tx_hash, ledger_sequence) exists.
func (s *StreamEventStore) Insert(ctx context.Context, e *domain.StreamEvent) error {
	query := `
		INSERT INTO stream_events (
			stream_id, event_type, amount, tx_hash, ledger_sequence, timestamp, metadata
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
	`

	_, err := s.db.Exec(ctx, query,
		e.StreamID,
		string(e.EventType),
		e.Amount,
		e.TxHash,
		int64(e.LedgerSequence),
		e.Timestamp,
		e.Metadata,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert stream event: %w", err)
	}
	return nil
}

// Exists reports whether an event with the same deduplication tuple
// has already been recorded.
func (s *StreamEventStore) Exists(ctx context.Context, streamID int64, eventType domain.EventType, txHash string, ledger uint32) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM stream_events
			WHERE stream_id = $1 AND event_type = $2 AND tx_hash = $3 AND ledger_sequence = $4
		)
	`

	var exists bool
	err := s.db.QueryRow(ctx, query, streamID, string(eventType), txHash, int64(ledger)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check stream event exists: %w", err)
	}
	return exists, nil
}

// GetByStreamID retrieves all events for a stream, ordered by ledger_sequence ASC.
func (s *StreamEventStore) GetByStreamID(ctx context.Context, streamID int64) ([]*domain.StreamEvent, error) {
	query := `
		SELECT id, stream_id, event_type, amount::text, tx_hash, ledger_sequence, timestamp, metadata
		FROM stream_events
		WHERE stream_id = $1
		ORDER BY ledger_sequence ASC, id ASC
	`

	rows, err := s.db.Query(ctx, query, streamID)
	if err != nil {
		return nil, fmt.Errorf("get stream events: %w", err)
	}
	defer rows.Close()

	var events []*domain.StreamEvent

	for rows.Next() {
		var e domain.StreamEvent
		var typeStr string
		var ledger int64

		err := rows.Scan(
			&e.ID,
			&e.StreamID,
			&typeStr,
			&e.Amount,
			&e.TxHash,
			&ledger,
			&e.Timestamp,
			&e.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stream event row: %w", err)
		}

		e.EventType = domain.EventType(typeStr)
		e.LedgerSequence = uint32(ledger)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stream event rows: %w", err)
	}

	return events, nil
}

// CountByType returns recorded event counts grouped by event type.
func (s *StreamEventStore) CountByType(ctx context.Context) (map[domain.EventType]int64, error) {
	query := `SELECT event_type, COUNT(*) FROM stream_events GROUP BY event_type`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count stream events: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventType]int64)

	for rows.Next() {
		var typeStr string
		var n int64
		if err := rows.Scan(&typeStr, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[domain.EventType(typeStr)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate count rows: %w", err)
	}

	return counts, nil
}
