package indexer

import (
	"fmt"
	"math"

	"github.com/stellar/go-stellar-sdk/xdr"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/scval"
	"soroban-stream-indexer/internal/soroban"
)

// Event names emitted by the streaming contract, topic[0] of every event.
const (
	topicStreamCreated   = "stream_created"
	topicStreamToppedUp  = "stream_topped_up"
	topicTokensWithdrawn = "tokens_withdrawn"
	topicStreamCancelled = "stream_cancelled"
)

// DecodedEvent is a classified contract event ready for application.
// Body fields stay XDR-encoded; each handler decodes only the fields
// it needs.
type DecodedEvent struct {
	Type     domain.EventType
	StreamID int64
	Body     map[string]xdr.ScVal
	Raw      *soroban.ContractEvent
	ClosedAt int64 // ledger close time, Unix seconds
}

// Classify decodes the event topics and payload envelope. It returns
// (nil, nil) for events that are not ours to apply: failed contract
// calls and event names this indexer does not know. Anything else
// that fails to decode is a malformed event and an error.
func Classify(ev *soroban.ContractEvent) (*DecodedEvent, error) {
	if !ev.InSuccessfulContractCall {
		return nil, nil
	}

	if len(ev.Topics) < 2 {
		return nil, fmt.Errorf("expected 2 topics, got %d", len(ev.Topics))
	}

	nameVal, err := scval.ParseBase64(ev.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("parse name topic: %w", err)
	}
	name, err := scval.Symbol(nameVal)
	if err != nil {
		return nil, fmt.Errorf("decode name topic: %w", err)
	}

	eventType, ok := eventTypeForName(name)
	if !ok {
		return nil, nil
	}

	idVal, err := scval.ParseBase64(ev.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("parse stream id topic: %w", err)
	}
	rawID, err := scval.U64(idVal)
	if err != nil {
		return nil, fmt.Errorf("decode stream id topic: %w", err)
	}
	if rawID > math.MaxInt64 {
		return nil, fmt.Errorf("stream id %d overflows int64", rawID)
	}

	bodyVal, err := scval.ParseBase64(ev.Value)
	if err != nil {
		return nil, fmt.Errorf("parse event body: %w", err)
	}
	body, err := scval.MapFields(bodyVal)
	if err != nil {
		return nil, fmt.Errorf("decode event body: %w", err)
	}

	closedAt, err := ev.ClosedAt()
	if err != nil {
		return nil, fmt.Errorf("parse ledger close time: %w", err)
	}

	return &DecodedEvent{
		Type:     eventType,
		StreamID: int64(rawID),
		Body:     body,
		Raw:      ev,
		ClosedAt: closedAt.Unix(),
	}, nil
}

// eventTypeForName maps a contract event name to its domain event type.
func eventTypeForName(name string) (domain.EventType, bool) {
	switch name {
	case topicStreamCreated:
		return domain.EventCreated, true
	case topicStreamToppedUp:
		return domain.EventToppedUp, true
	case topicTokensWithdrawn:
		return domain.EventWithdrawn, true
	case topicStreamCancelled:
		return domain.EventCancelled, true
	}
	return "", false
}

// eventName maps a domain event type back to the contract event name
// used in notifications.
func eventName(t domain.EventType) string {
	switch t {
	case domain.EventCreated:
		return topicStreamCreated
	case domain.EventToppedUp:
		return topicStreamToppedUp
	case domain.EventWithdrawn:
		return topicTokensWithdrawn
	case domain.EventCancelled:
		return topicStreamCancelled
	}
	return string(t)
}
