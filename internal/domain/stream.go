package domain

// Stream represents a payment-streaming agreement between two ledger
// accounts. Corresponds to the streams table in PostgreSQL.
//
// Token amounts are 128-bit on chain and carried as base-10 strings to
// avoid precision loss across 64-bit numeric boundaries.
type Stream struct {
	StreamID        int64  // PRIMARY KEY, contract-assigned identifier
	Sender          string // strkey address (G... or C...)
	Recipient       string // strkey address
	TokenAddress    string // token contract address (C...)
	RatePerSecond   string // i128 decimal string
	DepositedAmount string // i128 decimal string
	WithdrawnAmount string // i128 decimal string
	StartTime       int64  // Unix seconds, ledger-reported
	LastUpdateTime  int64  // Unix seconds
	IsActive        bool   // flips false exactly once, on cancellation
}
