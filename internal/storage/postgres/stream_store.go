package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

// StreamStore implements storage.StreamStore using PostgreSQL.
type StreamStore struct {
	db querier
}

// NewStreamStore creates a new StreamStore.
func NewStreamStore(pool *Pool) *StreamStore {
	return &StreamStore{db: pool}
}

// Compile-time interface check.
var _ storage.StreamStore = (*StreamStore)(nil)

// streamColumns is the SELECT list shared by all stream queries. Amount
// columns are NUMERIC(39,0) and cast to text so they scan into strings
// without precision loss.
const streamColumns = `
	stream_id, sender, recipient, token_address,
	rate_per_second::text, deposited_amount::text, withdrawn_amount::text,
	start_time, last_update_time, is_active
`

// Upsert inserts a stream or replaces the existing row keyed on stream_id.
func (s *StreamStore) Upsert(ctx context.Context, st *domain.Stream) error {
	query := `
		INSERT INTO streams (
			stream_id, sender, recipient, token_address,
			rate_per_second, deposited_amount, withdrawn_amount,
			start_time, last_update_time, is_active
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10)
		ON CONFLICT (stream_id) DO UPDATE SET
			sender = EXCLUDED.sender,
			recipient = EXCLUDED.recipient,
			token_address = EXCLUDED.token_address,
			rate_per_second = EXCLUDED.rate_per_second,
			deposited_amount = EXCLUDED.deposited_amount,
			withdrawn_amount = EXCLUDED.withdrawn_amount,
			start_time = EXCLUDED.start_time,
			last_update_time = EXCLUDED.last_update_time,
			is_active = EXCLUDED.is_active
	`

	_, err := s.db.Exec(ctx, query,
		st.StreamID,
		st.Sender,
		st.Recipient,
		st.TokenAddress,
		st.RatePerSecond,
		st.DepositedAmount,
		st.WithdrawnAmount,
		st.StartTime,
		st.LastUpdateTime,
		st.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert stream: %w", err)
	}
	return nil
}

// GetByID retrieves a stream by its ID. Returns ErrNotFound if not exists.
func (s *StreamStore) GetByID(ctx context.Context, streamID int64) (*domain.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams WHERE stream_id = $1`

	row := s.db.QueryRow(ctx, query, streamID)
	st, err := scanStream(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get stream by id: %w", err)
	}
	return st, nil
}

// AddWithdrawn adds delta to the stream's withdrawn amount and sets
// last_update_time. The arithmetic runs in the database so concurrent
// accumulations cannot lose updates.
func (s *StreamStore) AddWithdrawn(ctx context.Context, streamID int64, delta string, updateTime int64) error {
	query := `
		UPDATE streams
		SET withdrawn_amount = withdrawn_amount + $2::numeric,
			last_update_time = $3
		WHERE stream_id = $1
	`

	tag, err := s.db.Exec(ctx, query, streamID, delta, updateTime)
	if err != nil {
		return fmt.Errorf("add withdrawn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByParticipant retrieves streams where the address is sender or
// recipient, ordered by start_time DESC.
func (s *StreamStore) GetByParticipant(ctx context.Context, address string) ([]*domain.Stream, error) {
	query := `
		SELECT ` + streamColumns + `
		FROM streams
		WHERE sender = $1 OR recipient = $1
		ORDER BY start_time DESC, stream_id DESC
	`

	rows, err := s.db.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("get streams by participant: %w", err)
	}
	defer rows.Close()

	return scanStreams(rows)
}

// GetActive retrieves all active streams, ordered by start_time DESC.
func (s *StreamStore) GetActive(ctx context.Context) ([]*domain.Stream, error) {
	query := `
		SELECT ` + streamColumns + `
		FROM streams
		WHERE is_active
		ORDER BY start_time DESC, stream_id DESC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get active streams: %w", err)
	}
	defer rows.Close()

	return scanStreams(rows)
}

// scanStream scans a single row into a Stream.
func scanStream(row pgx.Row) (*domain.Stream, error) {
	var st domain.Stream

	err := row.Scan(
		&st.StreamID,
		&st.Sender,
		&st.Recipient,
		&st.TokenAddress,
		&st.RatePerSecond,
		&st.DepositedAmount,
		&st.WithdrawnAmount,
		&st.StartTime,
		&st.LastUpdateTime,
		&st.IsActive,
	)
	if err != nil {
		return nil, err
	}

	return &st, nil
}

// scanStreams scans multiple rows into a slice of Stream.
func scanStreams(rows pgx.Rows) ([]*domain.Stream, error) {
	var streams []*domain.Stream

	for rows.Next() {
		var st domain.Stream

		err := rows.Scan(
			&st.StreamID,
			&st.Sender,
			&st.Recipient,
			&st.TokenAddress,
			&st.RatePerSecond,
			&st.DepositedAmount,
			&st.WithdrawnAmount,
			&st.StartTime,
			&st.LastUpdateTime,
			&st.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stream row: %w", err)
		}

		streams = append(streams, &st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stream rows: %w", err)
	}

	return streams, nil
}
