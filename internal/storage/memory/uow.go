package memory

import (
	"context"
	"sync"

	"soroban-stream-indexer/internal/storage"
)

// UnitOfWork implements storage.UnitOfWork over the in-memory stores.
// A transaction lock serializes writers; on error the participating
// stores are restored from a pre-transaction snapshot, mirroring the
// rollback semantics of the SQL implementation.
type UnitOfWork struct {
	mu      sync.Mutex
	streams *StreamStore
	events  *StreamEventStore
	users   *UserStore
}

// NewUnitOfWork creates a new UnitOfWork over the given stores.
func NewUnitOfWork(streams *StreamStore, events *StreamEventStore, users *UserStore) *UnitOfWork {
	return &UnitOfWork{
		streams: streams,
		events:  events,
		users:   users,
	}
}

// WithinTx runs fn against the live stores. If fn returns an error, all
// writes made inside it are rolled back.
func (u *UnitOfWork) WithinTx(_ context.Context, fn func(tx storage.Tx) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	streamsSnap := u.streams.snapshot()
	eventsSnap, nextID := u.events.snapshot()
	usersSnap := u.users.snapshot()

	if err := fn(&memTx{u: u}); err != nil {
		u.streams.restore(streamsSnap)
		u.events.restore(eventsSnap, nextID)
		u.users.restore(usersSnap)
		return err
	}
	return nil
}

// memTx adapts the unit of work's stores to storage.Tx.
type memTx struct {
	u *UnitOfWork
}

func (t *memTx) Streams() storage.StreamStore           { return t.u.streams }
func (t *memTx) StreamEvents() storage.StreamEventStore { return t.u.events }
func (t *memTx) Users() storage.UserStore               { return t.u.users }

// Verify interface compliance at compile time.
var _ storage.UnitOfWork = (*UnitOfWork)(nil)
