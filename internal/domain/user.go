package domain

// User is a ledger account seen as a stream participant, auto-created
// on first reference by sender or recipient. Corresponds to the users
// table in PostgreSQL.
type User struct {
	PublicKey string // PRIMARY KEY, strkey address
	FirstSeen int64  // Unix seconds
}
