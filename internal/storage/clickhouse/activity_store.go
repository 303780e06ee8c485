package clickhouse

import (
	"context"
	"fmt"
	"math/big"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

// ActivityStore implements storage.ActivityStore using ClickHouse.
// The stream_activity table is a plain MergeTree; rows are write-once
// and duplicates from replays are tolerated (aggregates use them as-is,
// replays are already filtered upstream by the event log).
type ActivityStore struct {
	conn *Conn
}

// NewActivityStore creates a new ActivityStore.
func NewActivityStore(conn *Conn) *ActivityStore {
	return &ActivityStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ActivityStore = (*ActivityStore)(nil)

// InsertBulk adds multiple activity rows. Rows are write-once.
func (s *ActivityStore) InsertBulk(ctx context.Context, rows []*domain.ActivityRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO stream_activity (
			stream_id, event_type, amount, tx_hash, ledger, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		amount := r.Amount
		if amount == nil {
			amount = big.NewInt(0)
		}

		err = batch.Append(
			r.StreamID, string(r.EventType), amount,
			r.TxHash, r.Ledger, r.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByStreamID retrieves all activity for a stream, ordered by ledger ASC.
func (s *ActivityStore) GetByStreamID(ctx context.Context, streamID int64) ([]*domain.ActivityRow, error) {
	query := `
		SELECT stream_id, event_type, amount, tx_hash, ledger, timestamp
		FROM stream_activity
		WHERE stream_id = ?
		ORDER BY ledger ASC, event_type ASC
	`

	rows, err := s.conn.Query(ctx, query, streamID)
	if err != nil {
		return nil, fmt.Errorf("query by stream id: %w", err)
	}
	defer rows.Close()

	return scanActivity(rows)
}

// Totals returns per-event-type counts and amount sums across all streams.
func (s *ActivityStore) Totals(ctx context.Context) ([]*domain.ActivityTotal, error) {
	query := `
		SELECT event_type, count(*) AS events, sum(amount) AS total
		FROM stream_activity
		GROUP BY event_type
		ORDER BY event_type ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	var totals []*domain.ActivityTotal

	for rows.Next() {
		var t domain.ActivityTotal
		var typeStr string
		var events uint64
		total := new(big.Int)

		if err := rows.Scan(&typeStr, &events, total); err != nil {
			return nil, fmt.Errorf("scan totals row: %w", err)
		}

		t.EventType = domain.EventType(typeStr)
		t.Events = int64(events)
		t.TotalAmount = total
		totals = append(totals, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate totals rows: %w", err)
	}

	return totals, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanActivity scans multiple rows into a slice of ActivityRow.
func scanActivity(rows chRows) ([]*domain.ActivityRow, error) {
	var out []*domain.ActivityRow

	for rows.Next() {
		var r domain.ActivityRow
		var typeStr string
		amount := new(big.Int)

		err := rows.Scan(
			&r.StreamID, &typeStr, amount,
			&r.TxHash, &r.Ledger, &r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}

		r.EventType = domain.EventType(typeStr)
		r.Amount = amount
		out = append(out, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}

	return out, nil
}
