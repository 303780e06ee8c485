package indexer

import (
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/stellar/go-stellar-sdk/strkey"
	"github.com/stellar/go-stellar-sdk/xdr"

	"soroban-stream-indexer/internal/notify"
	"soroban-stream-indexer/internal/soroban"
	"soroban-stream-indexer/internal/storage/memory"
)

const (
	testSender    = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	testRecipient = "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"
	testToken     = "CDLZFC3SYJYDZT7K67VZ75HPJVIEUVNIXF47ZG2FB2RMQQVU2HHGCYSC"

	// testClosedAt is 1705312800 as Unix seconds.
	testClosedAt     = "2024-01-15T10:00:00Z"
	testClosedAtUnix = int64(1705312800)
)

func symVal(s string) xdr.ScVal {
	sym := xdr.ScSymbol(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}
}

func u64Val(u uint64) xdr.ScVal {
	v := xdr.Uint64(u)
	return xdr.ScVal{Type: xdr.ScValTypeScvU64, U64: &v}
}

// i128Val encodes an int64 as the matching i128 value.
func i128Val(n int64) xdr.ScVal {
	hi := int64(0)
	if n < 0 {
		hi = -1
	}
	parts := xdr.Int128Parts{Hi: xdr.Int64(hi), Lo: xdr.Uint64(uint64(n))}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &parts}
}

func addrVal(t *testing.T, address string) xdr.ScVal {
	t.Helper()

	if raw, err := strkey.Decode(strkey.VersionByteContract, address); err == nil {
		var id xdr.ContractId
		copy(id[:], raw)
		addr := xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeContract, ContractId: &id}
		return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &addr}
	}

	account := xdr.MustAddress(address)
	addr := xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeAccount, AccountId: &account}
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &addr}
}

func mapEntry(key string, val xdr.ScVal) xdr.ScMapEntry {
	return xdr.ScMapEntry{Key: symVal(key), Val: val}
}

func mapVal(entries ...xdr.ScMapEntry) xdr.ScVal {
	m := xdr.ScMap(entries)
	mp := &m
	return xdr.ScVal{Type: xdr.ScValTypeScvMap, Map: &mp}
}

func mustB64(t *testing.T, v xdr.ScVal) string {
	t.Helper()

	encoded, err := xdr.MarshalBase64(v)
	if err != nil {
		t.Fatalf("marshal scval: %v", err)
	}
	return encoded
}

// contractEvent builds a getEvents entry with encoded topics and body.
func contractEvent(t *testing.T, name string, streamID uint64, ledger uint32, txHash string, body ...xdr.ScMapEntry) soroban.ContractEvent {
	t.Helper()

	token := fmt.Sprintf("%010d-%s", ledger, txHash)
	return soroban.ContractEvent{
		Type:                     "contract",
		Ledger:                   ledger,
		LedgerClosedAt:           testClosedAt,
		ContractID:               "CSTREAMCONTRACT",
		ID:                       token,
		PagingToken:              token,
		InSuccessfulContractCall: true,
		TxHash:                   txHash,
		Topics: []string{
			mustB64(t, symVal(name)),
			mustB64(t, u64Val(streamID)),
		},
		Value: mustB64(t, mapVal(body...)),
	}
}

func createdEvent(t *testing.T, streamID uint64, ledger uint32, txHash string) soroban.ContractEvent {
	t.Helper()

	return contractEvent(t, topicStreamCreated, streamID, ledger, txHash,
		mapEntry("sender", addrVal(t, testSender)),
		mapEntry("recipient", addrVal(t, testRecipient)),
		mapEntry("rate", i128Val(100)),
		mapEntry("token_address", addrVal(t, testToken)),
		mapEntry("start_time", u64Val(1000)),
		mapEntry("deposited_amount", i128Val(5000)),
	)
}

func toppedUpEvent(t *testing.T, streamID uint64, ledger uint32, txHash string, amount, newTotal int64) soroban.ContractEvent {
	t.Helper()

	return contractEvent(t, topicStreamToppedUp, streamID, ledger, txHash,
		mapEntry("sender", addrVal(t, testSender)),
		mapEntry("amount", i128Val(amount)),
		mapEntry("new_deposited_amount", i128Val(newTotal)),
	)
}

func withdrawnEvent(t *testing.T, streamID uint64, ledger uint32, txHash string, amount int64) soroban.ContractEvent {
	t.Helper()

	return contractEvent(t, topicTokensWithdrawn, streamID, ledger, txHash,
		mapEntry("recipient", addrVal(t, testRecipient)),
		mapEntry("amount", i128Val(amount)),
		mapEntry("timestamp", u64Val(uint64(testClosedAtUnix))),
	)
}

func cancelledEvent(t *testing.T, streamID uint64, ledger uint32, txHash string, withdrawn int64) soroban.ContractEvent {
	t.Helper()

	return contractEvent(t, topicStreamCancelled, streamID, ledger, txHash,
		mapEntry("sender", addrVal(t, testSender)),
		mapEntry("recipient", addrVal(t, testRecipient)),
		mapEntry("amount_withdrawn", i128Val(withdrawn)),
	)
}

// applierEnv bundles an Applier with the in-memory stores behind it.
type applierEnv struct {
	streams  *memory.StreamStore
	events   *memory.StreamEventStore
	users    *memory.UserStore
	activity *memory.ActivityStore
	recorder *notify.Recorder
	applier  *Applier
}

func newApplierEnv() *applierEnv {
	streams := memory.NewStreamStore()
	events := memory.NewStreamEventStore()
	users := memory.NewUserStore()
	activity := memory.NewActivityStore()
	recorder := notify.NewRecorder()

	applier := NewApplier(ApplierOptions{
		UnitOfWork: memory.NewUnitOfWork(streams, events, users),
		Sink:       recorder,
		Activity:   activity,
		Logger:     log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	return &applierEnv{
		streams:  streams,
		events:   events,
		users:    users,
		activity: activity,
		recorder: recorder,
		applier:  applier,
	}
}

// classify decodes a fixture event, failing the test on any error.
func classify(t *testing.T, ev soroban.ContractEvent) *DecodedEvent {
	t.Helper()

	decoded, err := Classify(&ev)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if decoded == nil {
		t.Fatal("classify: event was not recognized")
	}
	return decoded
}
