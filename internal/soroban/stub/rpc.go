package stub

import (
	"context"

	"soroban-stream-indexer/internal/soroban"
)

// RPCClient implements soroban.RPCClient for testing. Queued pages are
// served in order; once drained, GetEvents returns empty pages at the
// configured latest ledger.
type RPCClient struct {
	Pages    []*soroban.EventsPage
	Requests []soroban.GetEventsRequest
	Latest   uint32
	Health   string
	Err      error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{Health: "healthy"}
}

// GetEvents records the request and serves the next queued page.
func (c *RPCClient) GetEvents(_ context.Context, req soroban.GetEventsRequest) (*soroban.EventsPage, error) {
	c.Requests = append(c.Requests, req)

	if c.Err != nil {
		return nil, c.Err
	}
	if len(c.Pages) == 0 {
		return &soroban.EventsPage{LatestLedger: c.Latest}, nil
	}

	page := c.Pages[0]
	c.Pages = c.Pages[1:]
	return page, nil
}

// GetLatestLedger returns the configured latest ledger sequence.
func (c *RPCClient) GetLatestLedger(_ context.Context) (uint32, error) {
	if c.Err != nil {
		return 0, c.Err
	}
	return c.Latest, nil
}

// GetHealth returns the configured health status.
func (c *RPCClient) GetHealth(_ context.Context) (string, error) {
	if c.Err != nil {
		return "", c.Err
	}
	return c.Health, nil
}

// AddPage queues an events page for the next GetEvents call.
func (c *RPCClient) AddPage(page *soroban.EventsPage) {
	c.Pages = append(c.Pages, page)
	if page.LatestLedger > c.Latest {
		c.Latest = page.LatestLedger
	}
}

var _ soroban.RPCClient = (*RPCClient)(nil)
