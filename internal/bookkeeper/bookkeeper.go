package bookkeeper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptotax/internal/extract"
	"cryptotax/internal/models"
	"cryptotax/internal/parser"
	"cryptotax/internal/rawtx"
)

// PriceLookup is the price-service boundary the Bookkeeper depends on,
// defined here (rather than importing the price package's concrete type)
// so bookkeeper and price stay free of an import cycle — the price
// package will itself depend on models/decimal only.
type PriceLookup interface {
	PriceAt(ctx context.Context, symbol string, unixTS int64) (*decimal.Decimal, error)
}

// Store is the full persistence boundary ProcessTransaction/ProcessWallet
// depend on, beyond account resolution.
type Store interface {
	AccountStore
	LoadedTransactions(ctx context.Context, walletID uint64) ([]*models.Transaction, error)
	SaveJournalEntry(ctx context.Context, entry *models.JournalEntry) error
	RecordParseError(ctx context.Context, rec *models.ParseErrorRecord) error
	MarkTxStatus(ctx context.Context, txID uint64, status models.TxStatus, entryType models.EntryType) error
}

// VNDRate resolves the USD->VND conversion rate applied to every split's
// ValueUSD when populating ValueVND (§4.4, §6.2 tax config vnd rate).
type VNDRate func() decimal.Decimal

// Bookkeeper orchestrates extract -> parse -> price -> journal for one
// transaction or an entire wallet's backlog (§4.4).
type Bookkeeper struct {
	Store     Store
	Mapper    *AccountMapper
	Extractor extract.Extractor
	Registry  *parser.Registry
	Prices    PriceLookup
	VNDRate   VNDRate
}

func New(store Store, extractor extract.Extractor, registry *parser.Registry, prices PriceLookup, vndRate VNDRate) *Bookkeeper {
	return &Bookkeeper{
		Store:     store,
		Mapper:    NewAccountMapper(store),
		Extractor: extractor,
		Registry:  registry,
		Prices:    prices,
		VNDRate:   vndRate,
	}
}

// diagnosticBlob is the JSON shape attached to ParseErrorRecord (§7).
type diagnosticBlob struct {
	TxHash           string   `json:"tx_hash"`
	Chain            string   `json:"chain"`
	ContractAddress  string   `json:"contract_address"`
	FunctionSelector string   `json:"function_selector"`
	DetectedTransfers int     `json:"detected_transfers"`
	DetectedEvents    int     `json:"detected_events"`
	ParsersAttempted  []string `json:"parsers_attempted"`
	Detail            string   `json:"detail,omitempty"`
}

func (b *Bookkeeper) recordError(ctx context.Context, tx *models.Transaction, kind models.ErrorKind, msg string, detectedTransfers, detectedEvents int, attempted []string) error {
	blob, _ := json.Marshal(diagnosticBlob{
		TxHash:            tx.TxHash,
		Chain:             tx.Chain,
		ContractAddress:   tx.ToAddr,
		FunctionSelector:  tx.Selector(),
		DetectedTransfers: detectedTransfers,
		DetectedEvents:    detectedEvents,
		ParsersAttempted:  attempted,
		Detail:            msg,
	})
	txID := tx.ID
	if err := b.Store.RecordParseError(ctx, &models.ParseErrorRecord{
		TransactionID:  &txID,
		ErrorKind:      kind,
		Message:        msg,
		DiagnosticBlob: blob,
	}); err != nil {
		return fmt.Errorf("recording parse error for tx %s: %w", tx.TxHash, err)
	}
	if err := b.Store.MarkTxStatus(ctx, tx.ID, models.TxError, models.EntryUnknown); err != nil {
		return fmt.Errorf("marking tx %s error: %w", tx.TxHash, err)
	}
	tx.Status = models.TxError
	return nil
}

// walletAddrSet returns the singleton address set NewContext expects: the
// wallet's own address for on-chain wallets, empty for CEX (§4.3).
func walletAddrSet(w *models.Wallet) map[string]bool {
	if w.Kind != models.WalletKindOnChain || w.OnChain == nil {
		return nil
	}
	return map[string]bool{extract.NormalizeEVMAddress(w.OnChain.Address): true}
}

// ProcessTransaction implements §4.4 steps 1-8: extract transfers,
// attempt the parser registry, validate the resulting journal entry is
// balanced, resolve accounts and prices, and persist. Re-running against
// an already PARSED transaction is a no-op error path left to the caller
// (MarkTxStatus overwrites, so callers should filter by status upstream
// for idempotent reruns per P3).
func (b *Bookkeeper) ProcessTransaction(ctx context.Context, tx *models.Transaction, wallet *models.Wallet) error {
	transfers, events, err := b.Extractor.Extract(tx)
	if err != nil {
		return b.recordError(ctx, tx, models.ErrTxParse, err.Error(), 0, 0, nil)
	}

	rtCtx := rawtx.NewContext(transfers, events, walletAddrSet(wallet))

	result, attempted, err := b.Registry.Attempt(tx, rtCtx)
	if err != nil {
		return b.recordError(ctx, tx, models.ErrTxParse, err.Error(), len(transfers), len(events), attempted)
	}
	if result == nil || len(result.Splits) == 0 {
		return b.recordError(ctx, tx, models.ErrUnknownTxInput,
			fmt.Sprintf("no parser produced splits (tried %s)", strings.Join(attempted, ", ")),
			len(transfers), len(events), attempted)
	}

	entry := &models.JournalEntry{
		EntityID:      wallet.EntityID,
		TransactionID: &tx.ID,
		EntryType:     result.EntryType,
		Description:   fmt.Sprintf("%s: %s", result.ParserName, shortHash(tx.TxHash)),
		Timestamp:     tsOf(tx),
	}

	ts := tsOf(tx)
	splitAccounts := make([]*models.Account, len(result.Splits))
	for i, ps := range result.Splits {
		acc, err := b.Mapper.Resolve(ctx, wallet, ps.Subtype, LabelParams{
			Symbol:             ps.Symbol,
			TokenAddress:       ps.TokenAddress,
			Protocol:           ps.Protocol,
			IncomeTag:          ps.IncomeTag,
			CounterpartAddress: ps.CounterpartAddress,
		})
		if err != nil {
			return b.recordError(ctx, tx, models.ErrTxParse, err.Error(), len(transfers), len(events), attempted)
		}
		splitAccounts[i] = acc

		split := models.JournalSplit{AccountID: acc.ID, Quantity: ps.Quantity, Account: acc}

		price, err := b.Prices.PriceAt(ctx, ps.Symbol, ts)
		if err != nil {
			return b.recordError(ctx, tx, models.ErrPriceMissing, err.Error(), len(transfers), len(events), attempted)
		}
		if price != nil {
			usd := ps.Quantity.Mul(*price)
			split.ValueUSD = &usd
			vnd := usd.Mul(b.VNDRate())
			split.ValueVND = &vnd
		}
		entry.Splits = append(entry.Splits, split)
	}

	symbolOf := func(accountID uint64) string {
		for _, a := range splitAccounts {
			if a.ID == accountID {
				return a.Symbol
			}
		}
		return ""
	}
	if err := entry.ValidateBalanced(symbolOf); err != nil {
		return b.recordError(ctx, tx, models.ErrBalance, err.Error(), len(transfers), len(events), attempted)
	}

	if err := b.Store.SaveJournalEntry(ctx, entry); err != nil {
		return fmt.Errorf("saving journal entry for tx %s: %w", tx.TxHash, err)
	}
	if err := b.Store.MarkTxStatus(ctx, tx.ID, models.TxParsed, result.EntryType); err != nil {
		return fmt.Errorf("marking tx %s parsed: %w", tx.TxHash, err)
	}
	tx.Status = models.TxParsed
	return nil
}

// WalletResult summarizes a ProcessWallet batch run (§4.4 "Batch
// operation").
type WalletResult struct {
	Total     int
	Processed int
	Errors    int
}

// ProcessWallet runs ProcessTransaction over every LOADED transaction on
// a wallet, continuing past individual failures (each already recorded
// via ParseErrorRecord) so one bad transaction never blocks the rest.
func (b *Bookkeeper) ProcessWallet(ctx context.Context, wallet *models.Wallet) (*WalletResult, error) {
	txs, err := b.Store.LoadedTransactions(ctx, wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("listing loaded transactions for wallet %d: %w", wallet.ID, err)
	}

	res := &WalletResult{Total: len(txs)}
	for _, tx := range txs {
		if tx.Status != models.TxLoaded {
			continue
		}
		if err := b.ProcessTransaction(ctx, tx, wallet); err != nil || tx.Status == models.TxError {
			res.Errors++
			continue
		}
		res.Processed++
	}
	return res, nil
}

func shortHash(h string) string {
	if len(h) <= 10 {
		return h
	}
	return h[:10] + "…"
}

func tsOf(tx *models.Transaction) int64 {
	if tx.Timestamp != nil {
		return *tx.Timestamp
	}
	return time.Now().Unix()
}
