package domain

// EventType identifies the lifecycle effect of an applied contract event.
type EventType string

const (
	EventCreated   EventType = "CREATED"
	EventToppedUp  EventType = "TOPPED_UP"
	EventWithdrawn EventType = "WITHDRAWN"
	EventCancelled EventType = "CANCELLED"
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// IsValid checks if the event type is a valid value.
func (t EventType) IsValid() bool {
	switch t {
	case EventCreated, EventToppedUp, EventWithdrawn, EventCancelled:
		return true
	}
	return false
}

// StreamEvent is an immutable audit record of one applied ledger event.
// Corresponds to the stream_events table in PostgreSQL.
//
// The tuple (StreamID, EventType, TxHash, LedgerSequence) is the natural
// deduplication key: at most one row may exist per tuple.
type StreamEvent struct {
	ID             int64     // assigned by the store
	StreamID       int64
	EventType      EventType
	Amount         *string   // i128 decimal string (nullable)
	TxHash         string    // hex transaction hash
	LedgerSequence uint32
	Timestamp      int64     // Unix seconds, ledger close time
	Metadata       string    // serialized side-data for debugging/replay
}
