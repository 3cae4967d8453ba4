package rawtx

import (
	"math/big"

	"github.com/shopspring/decimal"

	"cryptotax/internal/models"
)

// TransferOption narrows a pop/peek match. The zero value of each field
// inside transferFilter means "don't filter on this dimension" — callers
// compose options rather than build a filter struct directly, which keeps
// call sites close to the Python kwargs call shape the parser pipeline was
// ported from.
type TransferOption func(*transferFilter)

type transferFilter struct {
	from  *string
	to    *string
	token TokenFilter
	kind  *models.TransferKind
}

func WithFrom(addr string) TransferOption  { return func(f *transferFilter) { f.from = &addr } }
func WithTo(addr string) TransferOption    { return func(f *transferFilter) { f.to = &addr } }
func WithToken(tf TokenFilter) TransferOption {
	return func(f *transferFilter) { f.token = tf }
}
func WithKind(k models.TransferKind) TransferOption {
	return func(f *transferFilter) { f.kind = &k }
}

func (f *transferFilter) matches(t *RawTransfer) bool {
	if f.from != nil && t.From != *f.from {
		return false
	}
	if f.to != nil && t.To != *f.to {
		return false
	}
	if f.kind != nil && t.Kind != *f.kind {
		return false
	}
	return f.token.matches(t)
}

// Context is the mutable, per-transaction state shared by every parser
// attempted against one raw transaction (§4.3, §9). It owns the transfer
// list; parsers "consume" transfers they account for via PopTransfer so a
// downstream fallback parser only sees the residual.
type Context struct {
	transfers     []RawTransfer
	events        []EventData
	WalletAddrs   map[string]bool // empty for CEX transactions
	GasPaid       bool
	GasFeeNative  decimal.Decimal
}

// NewContext builds a Context from extractor output and the wallet's
// address set (singleton for on-chain wallets, empty for CEX).
func NewContext(transfers []RawTransfer, events []EventData, walletAddrs map[string]bool) *Context {
	if walletAddrs == nil {
		walletAddrs = map[string]bool{}
	}
	return &Context{transfers: transfers, events: events, WalletAddrs: walletAddrs}
}

// PopTransfer returns and removes the first matching transfer, or
// (nil, false).
func (c *Context) PopTransfer(opts ...TransferOption) (*RawTransfer, bool) {
	f := &transferFilter{}
	for _, o := range opts {
		o(f)
	}
	for i := range c.transfers {
		if f.matches(&c.transfers[i]) {
			t := c.transfers[i]
			c.transfers = append(c.transfers[:i], c.transfers[i+1:]...)
			return &t, true
		}
	}
	return nil, false
}

// PeekTransfers returns every matching transfer without consuming them.
func (c *Context) PeekTransfers(opts ...TransferOption) []RawTransfer {
	f := &transferFilter{}
	for _, o := range opts {
		o(f)
	}
	var out []RawTransfer
	for _, t := range c.transfers {
		if f.matches(&t) {
			out = append(out, t)
		}
	}
	return out
}

// RemainingTransfers returns every transfer not yet consumed.
func (c *Context) RemainingTransfers() []RawTransfer {
	out := make([]RawTransfer, len(c.transfers))
	copy(out, c.transfers)
	return out
}

// NetFlows returns, for every wallet-owned address, a symbol -> signed
// quantity map built by summing inflows minus outflows over all remaining
// transfers. Positive means net received, negative means net sent.
// Quantities are converted from raw integer units to decimal using each
// transfer's Decimals.
func (c *Context) NetFlows() map[string]map[string]decimal.Decimal {
	out := map[string]map[string]decimal.Decimal{}
	for _, t := range c.transfers {
		qty := unitsToDecimal(t.ValueUnits, t.Decimals)
		if c.WalletAddrs[t.From] {
			addSigned(out, t.From, t.Symbol, qty.Neg())
		}
		if c.WalletAddrs[t.To] {
			addSigned(out, t.To, t.Symbol, qty)
		}
	}
	return out
}

func addSigned(out map[string]map[string]decimal.Decimal, addr, symbol string, delta decimal.Decimal) {
	m, ok := out[addr]
	if !ok {
		m = map[string]decimal.Decimal{}
		out[addr] = m
	}
	m[symbol] = m[symbol].Add(delta)
}

func unitsToDecimal(units *big.Int, decimals int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, 0).Shift(int32(-decimals))
}

// PopEvent returns and removes the first event matching name (and address,
// if non-empty), or (nil, false).
func (c *Context) PopEvent(name, address string) (*EventData, bool) {
	for i := range c.events {
		if c.events[i].Name != name {
			continue
		}
		if address != "" && c.events[i].ContractAddress != address {
			continue
		}
		e := c.events[i]
		c.events = append(c.events[:i], c.events[i+1:]...)
		return &e, true
	}
	return nil, false
}

// RemainingEvents returns every event not yet consumed.
func (c *Context) RemainingEvents() []EventData {
	out := make([]EventData, len(c.events))
	copy(out, c.events)
	return out
}
