// Package rawtx holds the extractor's output types and the mutable
// consume-on-match context parsers share while working through a single
// transaction (§4.3 / §9 "mutable parsing context").
package rawtx

import (
	"math/big"

	"cryptotax/internal/models"
)

// RawTransfer is one token or native-value movement extracted from a raw
// chain blob (§4.1). TokenAddress is nil for native transfers.
type RawTransfer struct {
	TokenAddress *string
	From         string
	To           string
	ValueUnits   *big.Int
	Decimals     int
	Symbol       string
	Kind         models.TransferKind
}

// EventData is a decoded contract event, used by protocol parsers that key
// off event names rather than (or in addition to) transfers.
type EventData struct {
	Name            string
	ContractAddress string
	Args            map[string]any
}

// TokenFilter expresses a pop/peek filter over a transfer's TokenAddress.
// An unspecified filter (the zero value) matches any token, including
// native. A specified filter with a nil Address matches only native
// transfers; a specified filter with a non-nil Address matches only that
// ERC20/SPL token.
type TokenFilter struct {
	Specified bool
	Address   *string
}

// AnyToken matches every transfer regardless of token.
func AnyToken() TokenFilter { return TokenFilter{} }

// NativeToken matches only native-asset transfers.
func NativeToken() TokenFilter { return TokenFilter{Specified: true, Address: nil} }

// ERC20Token matches only transfers of the given token contract address.
func ERC20Token(address string) TokenFilter {
	return TokenFilter{Specified: true, Address: &address}
}

func (f TokenFilter) matches(t *RawTransfer) bool {
	if !f.Specified {
		return true
	}
	if f.Address == nil {
		return t.TokenAddress == nil
	}
	return t.TokenAddress != nil && *t.TokenAddress == *f.Address
}
