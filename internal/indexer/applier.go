package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"math/big"
	"strconv"

	"github.com/stellar/go-stellar-sdk/xdr"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/notify"
	"soroban-stream-indexer/internal/observability"
	"soroban-stream-indexer/internal/scval"
	"soroban-stream-indexer/internal/storage"
)

// Outcome reports what applying an event did.
type Outcome int

const (
	// OutcomeApplied means the event mutated state and was recorded.
	OutcomeApplied Outcome = iota
	// OutcomeReplayed means the event was recorded before; nothing changed.
	OutcomeReplayed
)

// errAlreadyApplied aborts the unit of work when the dedup lookup finds
// the event recorded. The rollback it triggers undoes nothing.
var errAlreadyApplied = errors.New("event already applied")

// Applier turns decoded contract events into state mutations. Each
// event applies inside one transaction; the post-commit side effects
// (notification fan-out, activity mirroring) are best-effort.
type Applier struct {
	uow      storage.UnitOfWork
	sink     notify.Sink
	activity storage.ActivityStore
	logger   *log.Logger
}

// ApplierOptions contains configuration for creating an Applier.
type ApplierOptions struct {
	UnitOfWork storage.UnitOfWork
	Sink       notify.Sink
	Activity   storage.ActivityStore
	Logger     *log.Logger
}

// NewApplier creates a new Applier. Sink and Activity may be nil when
// fan-out or analytics are disabled.
func NewApplier(opts ApplierOptions) *Applier {
	sink := opts.Sink
	if sink == nil {
		sink = notify.NopSink{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Applier{
		uow:      opts.UnitOfWork,
		sink:     sink,
		activity: opts.Activity,
		logger:   logger,
	}
}

// appliedEvent carries what the post-commit side effects need.
type appliedEvent struct {
	record  *domain.StreamEvent
	payload map[string]interface{}
	amount  *big.Int
}

// Apply applies one decoded event. Replaying an already-recorded event
// returns OutcomeReplayed and no error.
func (a *Applier) Apply(ctx context.Context, ev *DecodedEvent) (Outcome, error) {
	var applied *appliedEvent

	err := a.uow.WithinTx(ctx, func(tx storage.Tx) error {
		exists, err := tx.StreamEvents().Exists(ctx, ev.StreamID, ev.Type, ev.Raw.TxHash, ev.Raw.Ledger)
		if err != nil {
			return fmt.Errorf("dedup lookup: %w", err)
		}
		if exists {
			return errAlreadyApplied
		}

		applied, err = a.apply(ctx, tx, ev)
		return err
	})
	if err != nil {
		// A replay shows up either in the dedup lookup or as a lost
		// insert race on the unique constraint. Both mean the event is
		// already part of the state.
		if errors.Is(err, errAlreadyApplied) || errors.Is(err, storage.ErrDuplicateKey) {
			observability.RecordEventReplayed()
			return OutcomeReplayed, nil
		}
		return 0, err
	}

	observability.RecordEventApplied(string(ev.Type))
	a.afterCommit(ctx, ev, applied)
	return OutcomeApplied, nil
}

// apply dispatches to the per-type handler and appends the audit record
// the handler built, all on the same transaction.
func (a *Applier) apply(ctx context.Context, tx storage.Tx, ev *DecodedEvent) (*appliedEvent, error) {
	var (
		applied *appliedEvent
		err     error
	)

	switch ev.Type {
	case domain.EventCreated:
		applied, err = a.applyCreated(ctx, tx, ev)
	case domain.EventToppedUp:
		applied, err = a.applyToppedUp(ctx, tx, ev)
	case domain.EventWithdrawn:
		applied, err = a.applyWithdrawn(ctx, tx, ev)
	case domain.EventCancelled:
		applied, err = a.applyCancelled(ctx, tx, ev)
	default:
		err = fmt.Errorf("unhandled event type %s", ev.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.StreamEvents().Insert(ctx, applied.record); err != nil {
		return nil, fmt.Errorf("insert event record: %w", err)
	}
	return applied, nil
}

// applyCreated registers the stream and its participants.
func (a *Applier) applyCreated(ctx context.Context, tx storage.Tx, ev *DecodedEvent) (*appliedEvent, error) {
	sender, err := requiredAddress(ev.Body, "sender")
	if err != nil {
		return nil, err
	}
	recipient, err := requiredAddress(ev.Body, "recipient")
	if err != nil {
		return nil, err
	}
	token, err := requiredAddress(ev.Body, "token_address")
	if err != nil {
		return nil, err
	}
	rate, err := requiredI128(ev.Body, "rate")
	if err != nil {
		return nil, err
	}
	startTime, err := requiredTime(ev.Body, "start_time")
	if err != nil {
		return nil, err
	}
	deposited, hasDeposit, err := optionalI128(ev.Body, "deposited_amount")
	if err != nil {
		return nil, err
	}
	if !hasDeposit {
		deposited = "0"
	}

	stream := &domain.Stream{
		StreamID:        ev.StreamID,
		Sender:          sender,
		Recipient:       recipient,
		TokenAddress:    token,
		RatePerSecond:   rate,
		DepositedAmount: deposited,
		WithdrawnAmount: "0",
		StartTime:       startTime,
		LastUpdateTime:  ev.ClosedAt,
		IsActive:        true,
	}
	if err := tx.Streams().Upsert(ctx, stream); err != nil {
		return nil, fmt.Errorf("upsert stream: %w", err)
	}

	// Participants become users on first sight. An address that fails
	// validation is skipped; the stream row itself still lands.
	for _, address := range []string{sender, recipient} {
		if !scval.ValidParticipant(address) {
			a.logger.Printf("Skipping invalid participant %s on stream %d", address, ev.StreamID)
			observability.RecordParticipantRejected()
			continue
		}
		if err := tx.Users().Upsert(ctx, &domain.User{PublicKey: address, FirstSeen: ev.ClosedAt}); err != nil {
			return nil, fmt.Errorf("upsert user %s: %w", address, err)
		}
	}

	var amount *string
	if hasDeposit {
		amount = &deposited
	}

	return &appliedEvent{
		record: &domain.StreamEvent{
			StreamID:       ev.StreamID,
			EventType:      domain.EventCreated,
			Amount:         amount,
			TxHash:         ev.Raw.TxHash,
			LedgerSequence: ev.Raw.Ledger,
			Timestamp:      ev.ClosedAt,
			Metadata: encodeMetadata(map[string]interface{}{
				"sender":        sender,
				"recipient":     recipient,
				"token_address": token,
				"rate":          rate,
				"start_time":    startTime,
			}),
		},
		payload: map[string]interface{}{
			"streamId":     ev.StreamID,
			"sender":       sender,
			"recipient":    recipient,
			"tokenAddress": token,
			"rate":         rate,
			"startTime":    startTime,
			"txHash":       ev.Raw.TxHash,
			"ledger":       ev.Raw.Ledger,
		},
		amount: bigFromDecimal(deposited),
	}, nil
}

// applyToppedUp moves the deposit to the ledger-reported new total.
func (a *Applier) applyToppedUp(ctx context.Context, tx storage.Tx, ev *DecodedEvent) (*appliedEvent, error) {
	amount, err := requiredI128(ev.Body, "amount")
	if err != nil {
		return nil, err
	}
	newTotal, err := requiredI128(ev.Body, "new_deposited_amount")
	if err != nil {
		return nil, err
	}

	stream, err := tx.Streams().GetByID(ctx, ev.StreamID)
	if err != nil {
		return nil, fmt.Errorf("load stream %d: %w", ev.StreamID, err)
	}

	// The new total comes off the ledger, never from local arithmetic.
	stream.DepositedAmount = newTotal
	stream.LastUpdateTime = ev.ClosedAt
	if err := tx.Streams().Upsert(ctx, stream); err != nil {
		return nil, fmt.Errorf("upsert stream: %w", err)
	}

	return &appliedEvent{
		record: &domain.StreamEvent{
			StreamID:       ev.StreamID,
			EventType:      domain.EventToppedUp,
			Amount:         &amount,
			TxHash:         ev.Raw.TxHash,
			LedgerSequence: ev.Raw.Ledger,
			Timestamp:      ev.ClosedAt,
			Metadata: encodeMetadata(map[string]interface{}{
				"amount":               amount,
				"new_deposited_amount": newTotal,
			}),
		},
		payload: map[string]interface{}{
			"streamId":        ev.StreamID,
			"amount":          amount,
			"depositedAmount": newTotal,
			"txHash":          ev.Raw.TxHash,
			"ledger":          ev.Raw.Ledger,
		},
		amount: bigFromDecimal(amount),
	}, nil
}

// applyWithdrawn accumulates the withdrawn amount.
func (a *Applier) applyWithdrawn(ctx context.Context, tx storage.Tx, ev *DecodedEvent) (*appliedEvent, error) {
	amount, err := requiredI128(ev.Body, "amount")
	if err != nil {
		return nil, err
	}

	updateTime := ev.ClosedAt
	if ts, ok, err := optionalTime(ev.Body, "timestamp"); err != nil {
		return nil, err
	} else if ok {
		updateTime = ts
	}

	if err := tx.Streams().AddWithdrawn(ctx, ev.StreamID, amount, updateTime); err != nil {
		return nil, fmt.Errorf("accumulate withdrawn on stream %d: %w", ev.StreamID, err)
	}

	payload := map[string]interface{}{
		"streamId": ev.StreamID,
		"amount":   amount,
		"txHash":   ev.Raw.TxHash,
		"ledger":   ev.Raw.Ledger,
	}
	metadata := map[string]interface{}{"amount": amount}
	if recipient, ok, err := optionalAddress(ev.Body, "recipient"); err != nil {
		return nil, err
	} else if ok {
		payload["recipient"] = recipient
		metadata["recipient"] = recipient
	}

	return &appliedEvent{
		record: &domain.StreamEvent{
			StreamID:       ev.StreamID,
			EventType:      domain.EventWithdrawn,
			Amount:         &amount,
			TxHash:         ev.Raw.TxHash,
			LedgerSequence: ev.Raw.Ledger,
			Timestamp:      ev.ClosedAt,
			Metadata:       encodeMetadata(metadata),
		},
		payload: payload,
		amount:  bigFromDecimal(amount),
	}, nil
}

// applyCancelled fixes the final withdrawn amount and deactivates the
// stream. The flag never flips back.
func (a *Applier) applyCancelled(ctx context.Context, tx storage.Tx, ev *DecodedEvent) (*appliedEvent, error) {
	withdrawn, err := requiredI128(ev.Body, "amount_withdrawn")
	if err != nil {
		return nil, err
	}

	stream, err := tx.Streams().GetByID(ctx, ev.StreamID)
	if err != nil {
		return nil, fmt.Errorf("load stream %d: %w", ev.StreamID, err)
	}

	// The refund happens on chain; this figure is informational.
	refunded := new(big.Int).Sub(bigFromDecimal(stream.DepositedAmount), bigFromDecimal(withdrawn))

	stream.WithdrawnAmount = withdrawn
	stream.IsActive = false
	stream.LastUpdateTime = ev.ClosedAt
	if err := tx.Streams().Upsert(ctx, stream); err != nil {
		return nil, fmt.Errorf("upsert stream: %w", err)
	}

	return &appliedEvent{
		record: &domain.StreamEvent{
			StreamID:       ev.StreamID,
			EventType:      domain.EventCancelled,
			Amount:         &withdrawn,
			TxHash:         ev.Raw.TxHash,
			LedgerSequence: ev.Raw.Ledger,
			Timestamp:      ev.ClosedAt,
			Metadata: encodeMetadata(map[string]interface{}{
				"amount_withdrawn": withdrawn,
				"refunded_amount":  refunded.String(),
			}),
		},
		payload: map[string]interface{}{
			"streamId":        ev.StreamID,
			"amountWithdrawn": withdrawn,
			"refundedAmount":  refunded.String(),
			"txHash":          ev.Raw.TxHash,
			"ledger":          ev.Raw.Ledger,
		},
		amount: bigFromDecimal(withdrawn),
	}, nil
}

// afterCommit runs the fire-and-forget side effects. Failures here are
// logged and never affect the applied event.
func (a *Applier) afterCommit(ctx context.Context, ev *DecodedEvent, applied *appliedEvent) {
	a.sink.Publish(strconv.FormatInt(ev.StreamID, 10), eventName(ev.Type), applied.payload)
	observability.RecordNotification()

	if a.activity == nil {
		return
	}

	row := &domain.ActivityRow{
		StreamID:  ev.StreamID,
		EventType: ev.Type,
		Amount:    applied.amount,
		TxHash:    ev.Raw.TxHash,
		Ledger:    ev.Raw.Ledger,
		Timestamp: ev.ClosedAt,
	}
	if err := a.activity.InsertBulk(ctx, []*domain.ActivityRow{row}); err != nil {
		a.logger.Printf("Activity write failed for event %s: %v", ev.Raw.ID, err)
		observability.RecordDBError("clickhouse", "insert_activity")
		return
	}
	observability.RecordActivityRows(1)
}

// requiredAddress decodes a required address field from an event body.
func requiredAddress(body map[string]xdr.ScVal, field string) (string, error) {
	v, ok := body[field]
	if !ok {
		return "", fmt.Errorf("missing field %q", field)
	}
	s, err := scval.Address(v)
	if err != nil {
		return "", fmt.Errorf("field %q: %w", field, err)
	}
	return s, nil
}

// requiredI128 decodes a required i128 amount field.
func requiredI128(body map[string]xdr.ScVal, field string) (string, error) {
	v, ok := body[field]
	if !ok {
		return "", fmt.Errorf("missing field %q", field)
	}
	s, err := scval.I128String(v)
	if err != nil {
		return "", fmt.Errorf("field %q: %w", field, err)
	}
	return s, nil
}

// requiredTime decodes a required u64 field carrying Unix seconds.
func requiredTime(body map[string]xdr.ScVal, field string) (int64, error) {
	v, ok := body[field]
	if !ok {
		return 0, fmt.Errorf("missing field %q", field)
	}
	u, err := scval.U64(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", field, err)
	}
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("field %q overflows int64", field)
	}
	return int64(u), nil
}

// optionalI128 decodes an i128 field that may be absent. A present
// field that fails to decode is still an error.
func optionalI128(body map[string]xdr.ScVal, field string) (string, bool, error) {
	v, ok := body[field]
	if !ok {
		return "", false, nil
	}
	s, err := scval.I128String(v)
	if err != nil {
		return "", false, fmt.Errorf("field %q: %w", field, err)
	}
	return s, true, nil
}

// optionalAddress decodes an address field that may be absent.
func optionalAddress(body map[string]xdr.ScVal, field string) (string, bool, error) {
	v, ok := body[field]
	if !ok {
		return "", false, nil
	}
	s, err := scval.Address(v)
	if err != nil {
		return "", false, fmt.Errorf("field %q: %w", field, err)
	}
	return s, true, nil
}

// optionalTime decodes a u64 Unix-seconds field that may be absent.
func optionalTime(body map[string]xdr.ScVal, field string) (int64, bool, error) {
	v, ok := body[field]
	if !ok {
		return 0, false, nil
	}
	u, err := scval.U64(v)
	if err != nil {
		return 0, false, fmt.Errorf("field %q: %w", field, err)
	}
	if u > math.MaxInt64 {
		return 0, false, fmt.Errorf("field %q overflows int64", field)
	}
	return int64(u), true, nil
}

// encodeMetadata serializes decoded body fields for the audit record.
func encodeMetadata(fields map[string]interface{}) string {
	data, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// bigFromDecimal parses a base-10 string produced by the i128 decoder.
func bigFromDecimal(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}
