package soroban

import (
	"context"
	"time"
)

// RPCClient defines the Soroban RPC HTTP interface used by the indexer.
type RPCClient interface {
	// GetEvents retrieves one page of contract events. Pagination is
	// cursor-driven: a request carries either a start ledger or the
	// cursor of the previously fetched position, never both.
	GetEvents(ctx context.Context, req GetEventsRequest) (*EventsPage, error)

	// GetLatestLedger retrieves the sequence of the latest closed ledger.
	GetLatestLedger(ctx context.Context) (uint32, error)

	// GetHealth reports node health status.
	GetHealth(ctx context.Context) (string, error)
}

// GetEventsRequest is the params object for getEvents.
type GetEventsRequest struct {
	StartLedger uint32        `json:"startLedger,omitempty"`
	Filters     []EventFilter `json:"filters,omitempty"`
	Pagination  *Pagination   `json:"pagination,omitempty"`
}

// EventFilter restricts getEvents to matching contracts.
type EventFilter struct {
	Type        string   `json:"type,omitempty"` // "contract"
	ContractIDs []string `json:"contractIds,omitempty"`
}

// Pagination carries the cursor and page size for getEvents.
type Pagination struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// EventsPage is one page of results from getEvents.
type EventsPage struct {
	Events       []ContractEvent `json:"events"`
	LatestLedger uint32          `json:"latestLedger"`
	Cursor       string          `json:"cursor,omitempty"`
}

// ContractEvent is a single event as returned by getEvents. Topics and
// Value are base64 XDR and stay encoded at this layer.
type ContractEvent struct {
	Type                     string   `json:"type"`
	Ledger                   uint32   `json:"ledger"`
	LedgerClosedAt           string   `json:"ledgerClosedAt"` // RFC3339
	ContractID               string   `json:"contractId"`
	ID                       string   `json:"id"`
	PagingToken              string   `json:"pagingToken"`
	InSuccessfulContractCall bool     `json:"inSuccessfulContractCall"`
	TxHash                   string   `json:"txHash"`
	Topics                   []string `json:"topic"`
	Value                    string   `json:"value"`
}

// ClosedAt parses the ledger close time.
func (e *ContractEvent) ClosedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, e.LedgerClosedAt)
}
