// Package scval decodes Soroban contract values (ScVal XDR) into
// native Go types. It wraps the SDK's tagged-union accessors with
// explicit tag checks so that a mismatched access fails with a typed
// error instead of silently coercing.
package scval

import (
	"fmt"
	"math/big"

	"filippo.io/edwards25519"
	"github.com/stellar/go-stellar-sdk/strkey"
	"github.com/stellar/go-stellar-sdk/xdr"
)

// DecodeError reports an accessor called on a value of the wrong tag.
// This indicates a malformed upstream event, not a recoverable state.
type DecodeError struct {
	Want xdr.ScValType
	Got  xdr.ScValType
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("scval: expected %v, got %v", e.Want, e.Got)
}

// Symbol decodes a symbol value into a string.
func Symbol(v xdr.ScVal) (string, error) {
	sym, ok := v.GetSym()
	if !ok {
		return "", &DecodeError{Want: xdr.ScValTypeScvSymbol, Got: v.Type}
	}
	return string(sym), nil
}

// U64 decodes an unsigned 64-bit integer value.
func U64(v xdr.ScVal) (uint64, error) {
	u, ok := v.GetU64()
	if !ok {
		return 0, &DecodeError{Want: xdr.ScValTypeScvU64, Got: v.Type}
	}
	return uint64(u), nil
}

// BigI128 decodes a signed 128-bit integer value into a big.Int,
// reconstructed as (hi << 64) | lo with the high word sign-extended.
func BigI128(v xdr.ScVal) (*big.Int, error) {
	parts, ok := v.GetI128()
	if !ok {
		return nil, &DecodeError{Want: xdr.ScValTypeScvI128, Got: v.Type}
	}
	n := new(big.Int).Lsh(big.NewInt(int64(parts.Hi)), 64)
	n.Or(n, new(big.Int).SetUint64(uint64(parts.Lo)))
	return n, nil
}

// I128String decodes a signed 128-bit integer value and renders it as
// a base-10 string, the storage form for token amounts.
func I128String(v xdr.ScVal) (string, error) {
	n, err := BigI128(v)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// Address decodes an address value into its textual strkey form,
// branching on the address-kind discriminant: accounts encode as G...
// and contracts as C... . Any other kind is an error.
func Address(v xdr.ScVal) (string, error) {
	addr, ok := v.GetAddress()
	if !ok {
		return "", &DecodeError{Want: xdr.ScValTypeScvAddress, Got: v.Type}
	}
	switch addr.Type {
	case xdr.ScAddressTypeScAddressTypeAccount:
		account, ok := addr.GetAccountId()
		if !ok {
			return "", fmt.Errorf("scval: account address missing account id")
		}
		return account.Address(), nil
	case xdr.ScAddressTypeScAddressTypeContract:
		contract, ok := addr.GetContractId()
		if !ok {
			return "", fmt.Errorf("scval: contract address missing contract id")
		}
		return strkey.Encode(strkey.VersionByteContract, contract[:])
	default:
		return "", fmt.Errorf("scval: unsupported address kind %v", addr.Type)
	}
}

// MapFields decodes a struct-like map value into field-name keyed,
// still-encoded values. Callers decode only the fields they need and
// fail independently per field. Map keys must be symbols.
func MapFields(v xdr.ScVal) (map[string]xdr.ScVal, error) {
	m, ok := v.GetMap()
	if !ok {
		return nil, &DecodeError{Want: xdr.ScValTypeScvMap, Got: v.Type}
	}
	fields := make(map[string]xdr.ScVal)
	if m == nil {
		return fields, nil
	}
	for _, entry := range *m {
		key, err := Symbol(entry.Key)
		if err != nil {
			return nil, fmt.Errorf("scval: map key: %w", err)
		}
		fields[key] = entry.Val
	}
	return fields, nil
}

// ParseBase64 unmarshals the base64 XDR wire form of a value, as
// returned by the RPC getEvents topic and value fields.
func ParseBase64(s string) (xdr.ScVal, error) {
	var v xdr.ScVal
	if err := xdr.SafeUnmarshalBase64(s, &v); err != nil {
		return xdr.ScVal{}, fmt.Errorf("scval: unmarshal base64: %w", err)
	}
	return v, nil
}

// ValidParticipant reports whether a decoded address can own streams.
// Contract addresses pass as-is; account addresses must carry an
// ed25519 public key that is a valid curve point. Keys that fail the
// check come from corrupt upstream data and should not become users.
func ValidParticipant(address string) bool {
	if _, err := strkey.Decode(strkey.VersionByteContract, address); err == nil {
		return true
	}
	raw, err := strkey.Decode(strkey.VersionByteAccountID, address)
	if err != nil {
		return false
	}
	return accountOnCurve(raw)
}

// accountOnCurve checks that a 32-byte account key decodes to a point
// on the ed25519 curve.
func accountOnCurve(pk []byte) bool {
	if len(pk) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(pk)
	return err == nil
}
