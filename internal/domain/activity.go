package domain

import "math/big"

// ActivityRow mirrors one applied event into the analytics store.
// Corresponds to the stream_activity table in ClickHouse.
//
// Amount is a native Int128 column on the ClickHouse side; events
// without an amount (CREATED) carry zero.
type ActivityRow struct {
	StreamID  int64
	EventType EventType
	Amount    *big.Int
	TxHash    string
	Ledger    uint32
	Timestamp int64 // Unix seconds, ledger close time
}

// ActivityTotal is an aggregate over stream_activity for one event type.
type ActivityTotal struct {
	EventType   EventType
	Events      int64
	TotalAmount *big.Int
}
