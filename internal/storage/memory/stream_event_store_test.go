package memory

import (
	"context"
	"errors"
	"testing"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/storage"
)

func strPtr(s string) *string { return &s }

func TestStreamEventStore_InsertAndGet(t *testing.T) {
	store := NewStreamEventStore()
	ctx := context.Background()

	event := &domain.StreamEvent{
		StreamID:       42,
		EventType:      domain.EventWithdrawn,
		Amount:         strPtr("300"),
		TxHash:         "tx1",
		LedgerSequence: 100,
		Timestamp:      1000,
	}

	if err := store.Insert(ctx, event); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if event.ID == 0 {
		t.Error("Expected assigned ID")
	}

	events, err := store.GetByStreamID(ctx, 42)
	if err != nil {
		t.Fatalf("GetByStreamID failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if *events[0].Amount != "300" {
		t.Errorf("Amount mismatch: got %s, want 300", *events[0].Amount)
	}
}

func TestStreamEventStore_DuplicateTuple(t *testing.T) {
	store := NewStreamEventStore()
	ctx := context.Background()

	event := &domain.StreamEvent{
		StreamID:       42,
		EventType:      domain.EventCancelled,
		TxHash:         "tx-dup",
		LedgerSequence: 200,
		Timestamp:      1000,
	}

	if err := store.Insert(ctx, event); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, &domain.StreamEvent{
		StreamID:       42,
		EventType:      domain.EventCancelled,
		TxHash:         "tx-dup",
		LedgerSequence: 200,
		Timestamp:      9999,
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Same tx, different ledger is a new tuple.
	err = store.Insert(ctx, &domain.StreamEvent{
		StreamID:       42,
		EventType:      domain.EventCancelled,
		TxHash:         "tx-dup",
		LedgerSequence: 201,
		Timestamp:      1000,
	})
	if err != nil {
		t.Errorf("Different ledger should insert: %v", err)
	}
}

func TestStreamEventStore_Exists(t *testing.T) {
	store := NewStreamEventStore()
	ctx := context.Background()

	store.Insert(ctx, &domain.StreamEvent{
		StreamID:       7,
		EventType:      domain.EventToppedUp,
		Amount:         strPtr("2000"),
		TxHash:         "tx7",
		LedgerSequence: 300,
		Timestamp:      1000,
	})

	exists, err := store.Exists(ctx, 7, domain.EventToppedUp, "tx7", 300)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("Expected event to exist")
	}

	exists, _ = store.Exists(ctx, 7, domain.EventWithdrawn, "tx7", 300)
	if exists {
		t.Error("Different event type should not match")
	}
}

func TestStreamEventStore_Ordering(t *testing.T) {
	store := NewStreamEventStore()
	ctx := context.Background()

	for _, e := range []*domain.StreamEvent{
		{StreamID: 1, EventType: domain.EventWithdrawn, TxHash: "t3", LedgerSequence: 300, Timestamp: 3},
		{StreamID: 1, EventType: domain.EventCreated, TxHash: "t1", LedgerSequence: 100, Timestamp: 1},
		{StreamID: 1, EventType: domain.EventToppedUp, TxHash: "t2", LedgerSequence: 200, Timestamp: 2},
		{StreamID: 2, EventType: domain.EventCreated, TxHash: "t4", LedgerSequence: 150, Timestamp: 1},
	} {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	events, err := store.GetByStreamID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByStreamID failed: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].LedgerSequence < events[i-1].LedgerSequence {
			t.Errorf("Results not ordered by ledger: %d < %d",
				events[i].LedgerSequence, events[i-1].LedgerSequence)
		}
	}
}

func TestStreamEventStore_CountByType(t *testing.T) {
	store := NewStreamEventStore()
	ctx := context.Background()

	for _, e := range []*domain.StreamEvent{
		{StreamID: 1, EventType: domain.EventCreated, TxHash: "a", LedgerSequence: 1},
		{StreamID: 2, EventType: domain.EventCreated, TxHash: "b", LedgerSequence: 2},
		{StreamID: 1, EventType: domain.EventWithdrawn, TxHash: "c", LedgerSequence: 3},
	} {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	counts, err := store.CountByType(ctx)
	if err != nil {
		t.Fatalf("CountByType failed: %v", err)
	}

	if counts[domain.EventCreated] != 2 {
		t.Errorf("Expected 2 CREATED, got %d", counts[domain.EventCreated])
	}
	if counts[domain.EventWithdrawn] != 1 {
		t.Errorf("Expected 1 WITHDRAWN, got %d", counts[domain.EventWithdrawn])
	}
}

func TestStreamEventStore_InvalidInput(t *testing.T) {
	store := NewStreamEventStore()
	ctx := context.Background()

	err := store.Insert(ctx, &domain.StreamEvent{
		StreamID:       1,
		EventType:      "BOGUS",
		TxHash:         "t",
		LedgerSequence: 1,
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for bogus type, got %v", err)
	}

	err = store.Insert(ctx, &domain.StreamEvent{
		StreamID:       1,
		EventType:      domain.EventCreated,
		LedgerSequence: 1,
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty tx hash, got %v", err)
	}
}
