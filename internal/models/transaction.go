package models

import "strings"

// Transaction is the opaque raw blob plus the identifying triple
// (wallet_id, chain, tx_hash), which is unique (I1).
type Transaction struct {
	ID          uint64
	WalletID    uint64
	Chain       string
	TxHash      string
	BlockNumber *uint64
	Timestamp   *int64 // unix seconds
	FromAddr    string
	ToAddr      string
	ValueWei    *int64 // nil when it would exceed 64-bit signed range
	GasUsed     *uint64
	GasPrice    *uint64
	L1Fee       *uint64
	Status      TxStatus
	EntryType   EntryType
	InputData   string // EVM calldata, "0x"-prefixed hex; empty for non-EVM
	RawData     []byte // opaque JSON blob, the extractor's input
}

// Selector returns the lowercase "0x"-prefixed 4-byte function selector
// from InputData, or "" if InputData is shorter than a selector.
func (t *Transaction) Selector() string {
	s := strings.ToLower(strings.TrimPrefix(t.InputData, "0x"))
	if len(s) < 8 {
		return ""
	}
	return "0x" + s[:8]
}
