package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

// ActivityStore is an in-memory implementation of storage.ActivityStore.
type ActivityStore struct {
	mu   sync.RWMutex
	data []*domain.ActivityRow
}

// NewActivityStore creates a new in-memory activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{}
}

// InsertBulk adds multiple activity rows. Rows are write-once.
func (s *ActivityStore) InsertBulk(_ context.Context, rows []*domain.ActivityRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if r == nil {
			return storage.ErrInvalidInput
		}
		s.data = append(s.data, copyActivityRow(r))
	}
	return nil
}

// GetByStreamID retrieves all activity for a stream, ordered by ledger ASC.
func (s *ActivityStore) GetByStreamID(_ context.Context, streamID int64) ([]*domain.ActivityRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ActivityRow
	for _, r := range s.data {
		if r.StreamID == streamID {
			result = append(result, copyActivityRow(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Ledger != result[j].Ledger {
			return result[i].Ledger < result[j].Ledger
		}
		return result[i].EventType < result[j].EventType
	})

	return result, nil
}

// Totals returns per-event-type counts and amount sums across all streams.
func (s *ActivityStore) Totals(_ context.Context) ([]*domain.ActivityTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := make(map[domain.EventType]*domain.ActivityTotal)
	for _, r := range s.data {
		t, ok := byType[r.EventType]
		if !ok {
			t = &domain.ActivityTotal{EventType: r.EventType, TotalAmount: new(big.Int)}
			byType[r.EventType] = t
		}
		t.Events++
		if r.Amount != nil {
			t.TotalAmount.Add(t.TotalAmount, r.Amount)
		}
	}

	result := make([]*domain.ActivityTotal, 0, len(byType))
	for _, t := range byType {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EventType < result[j].EventType
	})

	return result, nil
}

// copyActivityRow deep-copies a row, including the big.Int amount.
func copyActivityRow(r *domain.ActivityRow) *domain.ActivityRow {
	rowCopy := *r
	if r.Amount != nil {
		rowCopy.Amount = new(big.Int).Set(r.Amount)
	}
	return &rowCopy
}

// Verify interface compliance at compile time.
var _ storage.ActivityStore = (*ActivityStore)(nil)
