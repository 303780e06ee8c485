package domain

// Checkpoint is the singleton indexing progress marker. Exactly one
// record exists; it is read at poll start and written at poll end.
//
// LastCursor is the opaque pagination token of the last successfully
// applied event. Empty means no event has been applied yet and polling
// resumes from LastLedger.
type Checkpoint struct {
	LastLedger uint32
	LastCursor string
	UpdatedAt  int64 // Unix seconds, set by the writer
}
