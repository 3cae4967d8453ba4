package loader

import (
	"context"
	"encoding/json"
	"fmt"

	"cryptotax/internal/extract"
	"cryptotax/internal/models"
	"cryptotax/internal/util"
)

// EtherscanClient is the Etherscan-v2-shaped API surface the EVM loader
// depends on (§6.1). Each method returns at most RangeSize records for
// the queried range, matching the upstream pagination contract the
// recursive range splitter (§4.7.2) is built against.
type EtherscanClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	NormalTransactions(ctx context.Context, address string, fromBlock, toBlock uint64) ([]extract.EVMNormalTx, error)
	InternalTransactions(ctx context.Context, address string, fromBlock, toBlock uint64) ([]InternalTransferRow, error)
	TokenTransfers(ctx context.Context, address string, fromBlock, toBlock uint64) ([]TokenTransferRow, error)
}

// InternalTransferRow and TokenTransferRow carry the parent tx hash
// alongside the internal-transfer/token-transfer item the upstream API
// returns flat — one row per transfer, not grouped by tx — so the loader
// can attach each item to its owning normal tx (§4.7.1).
type InternalTransferRow struct {
	Hash string
	extract.EVMInternalTransfer
}

type TokenTransferRow struct {
	Hash string
	extract.EVMTokenTransfer
}

// EVMLoader implements §4.7.1: advance a wallet's last_block_loaded by
// fetching normal/internal/token transfers over [last_block_loaded, tip -
// ReorgSafetyMargin], deduping against already-stored hashes, and storing
// one Transaction per remaining normal tx with its matching
// internal/token transfers attached.
type EVMLoader struct {
	Client       EtherscanClient
	Store        Store
	NativeSymbol string
	Retry        *util.RetryConfig

	// Margin overrides ReorgSafetyMargin when nonzero, letting a chain
	// config (ChainCfg.ReorgBlockMargin) widen the default for slower-
	// finalizing chains.
	Margin uint64
}

func NewEVMLoader(client EtherscanClient, store Store, nativeSymbol string) *EVMLoader {
	cfg := util.EtherscanRetryConfig()
	return &EVMLoader{Client: client, Store: store, NativeSymbol: nativeSymbol, Retry: &cfg}
}

func (l *EVMLoader) margin() uint64 {
	if l.Margin > 0 {
		return l.Margin
	}
	return ReorgSafetyMargin
}

// Sync runs one loader pass for wallet against chain. wallet.OnChain must
// be non-nil. Returns (nil, nil) when the wallet is already caught up to
// within the reorg margin — a no-op, matching P3's re-run contract.
func (l *EVMLoader) Sync(ctx context.Context, wallet *models.Wallet) (*Result, error) {
	if wallet.OnChain == nil {
		return nil, fmt.Errorf("loader: wallet %d has no on-chain identity", wallet.ID)
	}
	chain := wallet.OnChain.Chain
	address := extract.NormalizeEVMAddress(wallet.OnChain.Address)

	tip, err := util.RetryWithResult(ctx, func() (uint64, error) {
		return l.Client.BlockNumber(ctx)
	}, l.Retry)
	if err != nil {
		return nil, &ExternalServiceError{Source: "etherscan", Err: err}
	}
	margin := l.margin()
	if tip < margin {
		return nil, nil
	}

	fromBlock := wallet.OnChain.LastBlockLoaded
	toBlock := tip - margin
	if fromBlock >= toBlock {
		return nil, nil
	}

	normal, err := fetchRange(fromBlock, toBlock, func(from, to uint64) ([]extract.EVMNormalTx, error) {
		return util.RetryWithResult(ctx, func() ([]extract.EVMNormalTx, error) {
			return l.Client.NormalTransactions(ctx, address, from, to)
		}, l.Retry)
	})
	if err != nil {
		return nil, &ExternalServiceError{Source: "etherscan", Err: err}
	}

	internalByHash, err := fetchRange(fromBlock, toBlock, func(from, to uint64) ([]InternalTransferRow, error) {
		return util.RetryWithResult(ctx, func() ([]InternalTransferRow, error) {
			return l.Client.InternalTransactions(ctx, address, from, to)
		}, l.Retry)
	})
	if err != nil {
		return nil, &ExternalServiceError{Source: "etherscan", Err: err}
	}

	tokenByHash, err := fetchRange(fromBlock, toBlock, func(from, to uint64) ([]TokenTransferRow, error) {
		return util.RetryWithResult(ctx, func() ([]TokenTransferRow, error) {
			return l.Client.TokenTransfers(ctx, address, from, to)
		}, l.Retry)
	})
	if err != nil {
		return nil, &ExternalServiceError{Source: "etherscan", Err: err}
	}

	existing, err := l.Store.ExistingTxHashes(ctx, wallet.ID, chain)
	if err != nil {
		return nil, fmt.Errorf("loading existing tx hashes for wallet %d: %w", wallet.ID, err)
	}

	internalsByTx := map[string][]extract.EVMInternalTransfer{}
	for _, it := range internalByHash {
		if it.IsError {
			continue
		}
		internalsByTx[it.Hash] = append(internalsByTx[it.Hash], it.EVMInternalTransfer)
	}
	tokensByTx := map[string][]extract.EVMTokenTransfer{}
	for _, tt := range tokenByHash {
		tokensByTx[tt.Hash] = append(tokensByTx[tt.Hash], tt.EVMTokenTransfer)
	}

	var toStore []*models.Transaction
	for _, tx := range normal {
		if existing[tx.Hash] {
			continue
		}
		tx.InternalTransfers = internalsByTx[tx.Hash]
		tx.TokenTransfers = tokensByTx[tx.Hash]
		toStore = append(toStore, evmToTransaction(wallet, chain, tx))
	}

	if err := l.Store.InsertTransactions(ctx, toStore); err != nil {
		return nil, fmt.Errorf("storing loaded transactions for wallet %d: %w", wallet.ID, err)
	}

	wallet.OnChain.LastBlockLoaded = toBlock
	if err := l.Store.UpdateWalletCursor(ctx, wallet); err != nil {
		return nil, fmt.Errorf("advancing cursor for wallet %d: %w", wallet.ID, err)
	}

	return &Result{Fetched: len(normal), Stored: len(toStore)}, nil
}

// fetchRange implements the recursive range splitter of §4.7.2: if a
// fetch returns fewer than RangeSize records it is taken as complete;
// otherwise the range is bisected and each half is fetched independently,
// until the midpoint equals from (a one- or two-block range), which is
// accepted even if still full (the partial result is kept).
func fetchRange[T any](from, to uint64, fetch func(from, to uint64) ([]T, error)) ([]T, error) {
	r, err := fetch(from, to)
	if err != nil {
		return nil, err
	}
	if len(r) < RangeSize {
		return r, nil
	}
	mid := from + (to-from)/2
	if mid == from {
		return r, nil
	}
	left, err := fetchRange(from, mid, fetch)
	if err != nil {
		return nil, err
	}
	right, err := fetchRange(mid+1, to, fetch)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func evmToTransaction(wallet *models.Wallet, chain string, tx extract.EVMNormalTx) *models.Transaction {
	blockNum := tx.BlockNumber
	ts := tx.Timestamp
	gasUsed := tx.GasUsed
	gasPrice := tx.GasPrice
	raw, _ := marshalEVMTx(tx)
	return &models.Transaction{
		WalletID:    wallet.ID,
		Chain:       chain,
		TxHash:      tx.Hash,
		BlockNumber: &blockNum,
		Timestamp:   &ts,
		FromAddr:    extract.NormalizeEVMAddress(tx.From),
		ToAddr:      extract.NormalizeEVMAddress(tx.To),
		ValueWei:    capToInt64(tx.Value),
		GasUsed:     &gasUsed,
		GasPrice:    &gasPrice,
		Status:      models.TxLoaded,
		EntryType:   models.EntryUnknown,
		InputData:   tx.Input,
		RawData:     raw,
	}
}

// marshalEVMTx captures the normal tx plus its attached internal/token
// transfers as the opaque RawData blob, so extract.Extractor can later
// unmarshal it back into the canonical shape without a second API call.
func marshalEVMTx(tx extract.EVMNormalTx) ([]byte, error) {
	return json.Marshal(tx)
}
