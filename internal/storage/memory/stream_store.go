package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

// StreamStore is an in-memory implementation of storage.StreamStore.
type StreamStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.Stream // keyed by stream_id
}

// NewStreamStore creates a new in-memory stream store.
func NewStreamStore() *StreamStore {
	return &StreamStore{
		data: make(map[int64]*domain.Stream),
	}
}

// Upsert inserts a stream or replaces the existing row keyed on stream_id.
func (s *StreamStore) Upsert(_ context.Context, st *domain.Stream) error {
	if st == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	streamCopy := *st
	s.data[st.StreamID] = &streamCopy
	return nil
}

// GetByID retrieves a stream by its ID. Returns ErrNotFound if not exists.
func (s *StreamStore) GetByID(_ context.Context, streamID int64) (*domain.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[streamID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	streamCopy := *st
	return &streamCopy, nil
}

// AddWithdrawn adds delta to the stream's withdrawn amount and sets
// last_update_time. The whole update happens under the store lock to
// match the SQL store's single-statement accumulation.
func (s *StreamStore) AddWithdrawn(_ context.Context, streamID int64, delta string, updateTime int64) error {
	d, ok := new(big.Int).SetString(delta, 10)
	if !ok {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.data[streamID]
	if !exists {
		return storage.ErrNotFound
	}

	current, ok := new(big.Int).SetString(st.WithdrawnAmount, 10)
	if !ok {
		current = big.NewInt(0)
	}

	st.WithdrawnAmount = current.Add(current, d).String()
	st.LastUpdateTime = updateTime
	return nil
}

// GetByParticipant retrieves streams where the address is sender or
// recipient, ordered by start_time DESC.
func (s *StreamStore) GetByParticipant(_ context.Context, address string) ([]*domain.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Stream
	for _, st := range s.data {
		if st.Sender == address || st.Recipient == address {
			streamCopy := *st
			result = append(result, &streamCopy)
		}
	}

	sortStreams(result)
	return result, nil
}

// GetActive retrieves all active streams, ordered by start_time DESC.
func (s *StreamStore) GetActive(_ context.Context) ([]*domain.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Stream
	for _, st := range s.data {
		if st.IsActive {
			streamCopy := *st
			result = append(result, &streamCopy)
		}
	}

	sortStreams(result)
	return result, nil
}

// sortStreams orders by start_time DESC, stream_id DESC to match the
// SQL stores.
func sortStreams(streams []*domain.Stream) {
	sort.Slice(streams, func(i, j int) bool {
		if streams[i].StartTime != streams[j].StartTime {
			return streams[i].StartTime > streams[j].StartTime
		}
		return streams[i].StreamID > streams[j].StreamID
	})
}

// snapshot copies the current state for transactional rollback.
func (s *StreamStore) snapshot() map[int64]*domain.Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[int64]*domain.Stream, len(s.data))
	for id, st := range s.data {
		streamCopy := *st
		snap[id] = &streamCopy
	}
	return snap
}

// restore replaces the current state with a snapshot.
func (s *StreamStore) restore(snap map[int64]*domain.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = snap
}

// Verify interface compliance at compile time.
var _ storage.StreamStore = (*StreamStore)(nil)
