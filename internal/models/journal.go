package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// JournalEntry is a double-entry record attached to at most one
// Transaction. It has at least two splits.
type JournalEntry struct {
	ID            uint64
	EntityID      uint64
	TransactionID *uint64
	EntryType     EntryType
	Description   string
	Timestamp     int64 // unix seconds, UTC, stored naive
	Splits        []JournalSplit
}

// JournalSplit is one signed leg of a JournalEntry. Positive Quantity is a
// credit to the account; negative is a debit. ValueUSD keeps the sign of
// Quantity; ValueVND = ValueUSD * usd_vnd_rate.
type JournalSplit struct {
	ID             uint64
	JournalEntryID uint64
	AccountID      uint64
	Quantity       decimal.Decimal
	ValueUSD       *decimal.Decimal
	ValueVND       *decimal.Decimal

	// Account is populated by the bookkeeper when building the entry so
	// downstream consumers (TaxEngine) don't need a second lookup; it is
	// not part of the persisted row.
	Account *Account `json:"-"`
}

// ValidateBalanced enforces I2: per-currency value sum is always zero, and
// per-symbol quantity sum is zero unless EntryType is in MultiSymbol.
// symbolOf resolves a split's account to its symbol (injected so this
// package stays free of any account-lookup dependency).
func (e *JournalEntry) ValidateBalanced(symbolOf func(accountID uint64) string) error {
	if len(e.Splits) < 2 {
		return fmt.Errorf("journal entry has %d splits, need at least 2", len(e.Splits))
	}

	usdSum := decimal.Zero
	vndSum := decimal.Zero
	for _, s := range e.Splits {
		if s.ValueUSD != nil {
			usdSum = usdSum.Add(*s.ValueUSD)
		}
		if s.ValueVND != nil {
			vndSum = vndSum.Add(*s.ValueVND)
		}
	}
	if !usdSum.IsZero() {
		return fmt.Errorf("value_usd sum %s is not zero", usdSum.String())
	}
	if !vndSum.IsZero() {
		return fmt.Errorf("value_vnd sum %s is not zero", vndSum.String())
	}

	if MultiSymbol[e.EntryType] {
		return nil
	}

	bySymbol := map[string]decimal.Decimal{}
	for _, s := range e.Splits {
		sym := symbolOf(s.AccountID)
		bySymbol[sym] = bySymbol[sym].Add(s.Quantity)
	}
	for sym, sum := range bySymbol {
		if !sum.IsZero() {
			return fmt.Errorf("quantity sum for symbol %s is %s, not zero", sym, sum.String())
		}
	}
	return nil
}

// ParseErrorRecord attaches diagnostic context to a Transaction or Wallet
// that failed to parse or load (§7).
type ParseErrorRecord struct {
	ID             uint64
	TransactionID  *uint64
	WalletID       *uint64
	ErrorKind      ErrorKind
	Message        string
	DiagnosticBlob []byte // JSON: {tx_hash, chain, contract_address, function_selector,
	// detected_transfers, detected_events, parsers_attempted[], detail}; the
	// two detected_* keys hold counts, not lists of the transfers or events
	Resolved bool
}
