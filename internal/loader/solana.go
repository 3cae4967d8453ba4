package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"cryptotax/internal/extract"
	"cryptotax/internal/models"
	"cryptotax/internal/util"
)

// SolanaPageSize is the page size the loader requests from
// getSignaturesForAddress (§4.7.3).
const SolanaPageSize = 1000

// SolanaSignature mirrors one entry of getSignaturesForAddress's result.
type SolanaSignature struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Err       any    `json:"err"`
}

// SolanaClient is the JSON-RPC surface the Solana loader depends on.
type SolanaClient interface {
	SignaturesForAddress(ctx context.Context, address string, before string, limit int) ([]SolanaSignature, error)
	GetTransaction(ctx context.Context, signature string) (*extract.SolanaTx, uint64, error)
}

// SolanaLoader implements §4.7.3: walk getSignaturesForAddress newest-first
// until a known signature or a partial page is hit, then fetch and store
// each new transaction in chronological order.
type SolanaLoader struct {
	Client SolanaClient
	Store  Store
	Retry  *util.RetryConfig
}

func NewSolanaLoader(client SolanaClient, store Store) *SolanaLoader {
	cfg := util.SolanaRetryConfig()
	return &SolanaLoader{Client: client, Store: store, Retry: &cfg}
}

// Sync runs one loader pass for wallet. wallet.OnChain must be non-nil;
// its Address is the account walked for signatures and Chain tags the
// stored transactions.
func (l *SolanaLoader) Sync(ctx context.Context, wallet *models.Wallet) (*Result, error) {
	if wallet.OnChain == nil {
		return nil, fmt.Errorf("loader: wallet %d has no on-chain identity", wallet.ID)
	}
	chain := wallet.OnChain.Chain
	address := wallet.OnChain.Address

	existing, err := l.Store.ExistingTxHashes(ctx, wallet.ID, chain)
	if err != nil {
		return nil, fmt.Errorf("loading existing tx hashes for wallet %d: %w", wallet.ID, err)
	}

	var collected []SolanaSignature
	before := ""
	for {
		page, err := util.RetryWithResult(ctx, func() ([]SolanaSignature, error) {
			return l.Client.SignaturesForAddress(ctx, address, before, SolanaPageSize)
		}, l.Retry)
		if err != nil {
			return nil, &ExternalServiceError{Source: "solana_rpc", Err: err}
		}
		if len(page) == 0 {
			break
		}

		stop := false
		for _, sig := range page {
			if existing[sig.Signature] {
				stop = true
				break
			}
			collected = append(collected, sig)
		}
		if stop || len(page) < SolanaPageSize {
			break
		}
		before = page[len(page)-1].Signature
	}

	// Reverse into chronological order (§4.7.3: "Reverse the collected
	// list (chronological order)").
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}

	var toStore []*models.Transaction
	var maxSlot uint64
	for _, sig := range collected {
		if sig.Err != nil {
			continue
		}
		fetched, err := util.RetryWithResult(ctx, func() (solanaFetch, error) {
			raw, slot, ferr := l.Client.GetTransaction(ctx, sig.Signature)
			return solanaFetch{tx: raw, slot: slot}, ferr
		}, l.Retry)
		if err != nil {
			return nil, &ExternalServiceError{Source: "solana_rpc", Err: err}
		}
		if fetched.slot > maxSlot {
			maxSlot = fetched.slot
		}
		if fetched.tx == nil {
			continue
		}
		toStore = append(toStore, solanaToTransaction(wallet, chain, sig.Signature, fetched.slot, *fetched.tx))
	}

	if err := l.Store.InsertTransactions(ctx, toStore); err != nil {
		return nil, fmt.Errorf("storing loaded transactions for wallet %d: %w", wallet.ID, err)
	}

	if maxSlot > wallet.OnChain.LastBlockLoaded {
		wallet.OnChain.LastBlockLoaded = maxSlot
		if err := l.Store.UpdateWalletCursor(ctx, wallet); err != nil {
			return nil, fmt.Errorf("advancing cursor for wallet %d: %w", wallet.ID, err)
		}
	}

	return &Result{Fetched: len(collected), Stored: len(toStore)}, nil
}

// solanaFetch packs GetTransaction's (tx, slot) pair into one value so it
// fits RetryWithResult's single-return-plus-error shape.
type solanaFetch struct {
	tx   *extract.SolanaTx
	slot uint64
}

// walletBalanceChange sums the absolute lamport delta for the wallet's
// own account key across pre/post balances. It is used only for
// value_wei ("Σ|Δ| of balance change for the wallet address"); gas_used
// is taken from meta.fee directly (§4.7.3).
func walletBalanceChange(tx extract.SolanaTx, address string) *big.Int {
	total := big.NewInt(0)
	n := len(tx.AccountKeys)
	if len(tx.PreBalances) < n {
		n = len(tx.PreBalances)
	}
	if len(tx.PostBalances) < n {
		n = len(tx.PostBalances)
	}
	for i := 0; i < n; i++ {
		if tx.AccountKeys[i] != address || tx.PreBalances[i] == nil || tx.PostBalances[i] == nil {
			continue
		}
		d := new(big.Int).Sub(tx.PostBalances[i], tx.PreBalances[i])
		total.Add(total, new(big.Int).Abs(d))
	}
	return total
}

func solanaToTransaction(wallet *models.Wallet, chain, signature string, slot uint64, tx extract.SolanaTx) *models.Transaction {
	from, to := "", ""
	if len(tx.AccountKeys) > 0 {
		from = tx.AccountKeys[0]
	}
	if len(tx.AccountKeys) > 1 {
		to = tx.AccountKeys[1]
	}
	value := walletBalanceChange(tx, wallet.OnChain.Address)
	fee := tx.Fee
	raw, _ := json.Marshal(tx)
	return &models.Transaction{
		WalletID:    wallet.ID,
		Chain:       chain,
		TxHash:      signature,
		BlockNumber: &slot,
		FromAddr:    from,
		ToAddr:      to,
		ValueWei:    capToInt64(value),
		GasUsed:     &fee,
		Status:      models.TxLoaded,
		EntryType:   models.EntryUnknown,
		RawData:     raw,
	}
}
