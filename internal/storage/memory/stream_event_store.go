package memory

import (
	"context"
	"sort"
	"sync"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

// eventKey is the natural deduplication tuple for stream events.
type eventKey struct {
	streamID  int64
	eventType domain.EventType
	txHash    string
	ledger    uint32
}

// StreamEventStore is an in-memory implementation of storage.StreamEventStore.
type StreamEventStore struct {
	mu     sync.RWMutex
	data   map[eventKey]*domain.StreamEvent
	nextID int64
}

// NewStreamEventStore creates a new in-memory stream event store.
func NewStreamEventStore() *StreamEventStore {
	return &StreamEventStore{
		data:   make(map[eventKey]*domain.StreamEvent),
		nextID: 1,
	}
}

// Insert appends a new event. Returns ErrDuplicateKey if an event with
// the same (stream_id, event_type, tx_hash, ledger_sequence) exists.
func (s *StreamEventStore) Insert(_ context.Context, e *domain.StreamEvent) error {
	if e == nil || e.TxHash == "" || !e.EventType.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := eventKey{e.StreamID, e.EventType, e.TxHash, e.LedgerSequence}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	eventCopy := *e
	eventCopy.ID = s.nextID
	s.nextID++
	if e.Amount != nil {
		amount := *e.Amount
		eventCopy.Amount = &amount
	}
	s.data[key] = &eventCopy

	e.ID = eventCopy.ID
	return nil
}

// Exists reports whether an event with the same deduplication tuple
// has already been recorded.
func (s *StreamEventStore) Exists(_ context.Context, streamID int64, eventType domain.EventType, txHash string, ledger uint32) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[eventKey{streamID, eventType, txHash, ledger}]
	return exists, nil
}

// GetByStreamID retrieves all events for a stream, ordered by ledger_sequence ASC.
func (s *StreamEventStore) GetByStreamID(_ context.Context, streamID int64) ([]*domain.StreamEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StreamEvent
	for _, e := range s.data {
		if e.StreamID == streamID {
			eventCopy := *e
			if e.Amount != nil {
				amount := *e.Amount
				eventCopy.Amount = &amount
			}
			result = append(result, &eventCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].LedgerSequence != result[j].LedgerSequence {
			return result[i].LedgerSequence < result[j].LedgerSequence
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// CountByType returns recorded event counts grouped by event type.
func (s *StreamEventStore) CountByType(_ context.Context) (map[domain.EventType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.EventType]int64)
	for _, e := range s.data {
		counts[e.EventType]++
	}
	return counts, nil
}

// snapshot copies the current state for transactional rollback.
func (s *StreamEventStore) snapshot() (map[eventKey]*domain.StreamEvent, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[eventKey]*domain.StreamEvent, len(s.data))
	for key, e := range s.data {
		eventCopy := *e
		snap[key] = &eventCopy
	}
	return snap, s.nextID
}

// restore replaces the current state with a snapshot.
func (s *StreamEventStore) restore(snap map[eventKey]*domain.StreamEvent, nextID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = snap
	s.nextID = nextID
}

// Verify interface compliance at compile time.
var _ storage.StreamEventStore = (*StreamEventStore)(nil)
