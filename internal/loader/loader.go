// Package loader implements the Transaction Loaders of §4.7: the EVM
// block-range loader (with recursive range splitting and a reorg safety
// margin), the Solana signature-cursor loader, and the Binance CEX loader.
// Each loader turns upstream API pages into LOADED models.Transaction rows
// and advances the wallet's cursor only on success (§5 "state advances
// only on success").
package loader

import (
	"context"
	"fmt"
	"math/big"

	"cryptotax/internal/models"
)

// RangeSize is N, the maximum number of records an Etherscan-shaped range
// query returns before the loader must split the range (§4.7.2).
const RangeSize = 10_000

// ReorgSafetyMargin is the number of most-recent blocks the EVM loader
// refuses to read, to avoid ingesting a block a later reorg discards
// (§4.7.1, GLOSSARY "Reorg safety margin").
const ReorgSafetyMargin = 50

// Store is the persistence boundary every loader depends on: dedup
// against already-stored tx hashes for a wallet, insert newly loaded
// transactions, and advance the wallet's cursor. Implementations must
// make InsertTransactions tolerant of a (wallet_id, tx_hash) collision
// (I1) — a second loader run over an overlapping range is a no-op.
type Store interface {
	ExistingTxHashes(ctx context.Context, walletID uint64, chain string) (map[string]bool, error)
	InsertTransactions(ctx context.Context, txs []*models.Transaction) error
	UpdateWalletCursor(ctx context.Context, wallet *models.Wallet) error
}

// Result summarizes one loader run against a single wallet.
type Result struct {
	Fetched int // records returned by the upstream API before dedup
	Stored  int // new Transaction rows inserted
}

// ExternalServiceError wraps a non-recoverable upstream failure (§7
// EXTERNAL_SERVICE_ERROR): the loader aborts the current wallet's sync
// without advancing its cursor. Neither the loaders nor cmd/ingest change
// the wallet's SyncStatus on this error.
type ExternalServiceError struct {
	Source string // "etherscan" | "solana_rpc" | "binance"
	Err    error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}
func (e *ExternalServiceError) Unwrap() error { return e.Err }

// maxInt64Big is the largest value a signed 64-bit wei field can hold.
var maxInt64Big = big.NewInt(1<<63 - 1)

// capToInt64 returns nil when v would overflow a signed 64-bit wei field,
// per §4.7.1 "Cap value_wei to NULL when it would exceed 64-bit signed
// range."
func capToInt64(v *big.Int) *int64 {
	if v == nil || v.Cmp(maxInt64Big) > 0 || v.Sign() < 0 {
		return nil
	}
	i := v.Int64()
	return &i
}
