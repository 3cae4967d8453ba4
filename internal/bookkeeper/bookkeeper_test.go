package bookkeeper

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotax/internal/models"
	"cryptotax/internal/parser"
	"cryptotax/internal/rawtx"
)

// fakeStore layers journal/transaction bookkeeping on top of
// fakeAccountStore so bookkeeper tests don't depend on the db package.
type fakeStore struct {
	*fakeAccountStore
	txs      []*models.Transaction
	entries  []*models.JournalEntry
	errs     []*models.ParseErrorRecord
	statuses map[uint64]models.TxStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{fakeAccountStore: newFakeAccountStore(), statuses: map[uint64]models.TxStatus{}}
}

func (s *fakeStore) LoadedTransactions(ctx context.Context, walletID uint64) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for _, tx := range s.txs {
		if tx.WalletID == walletID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveJournalEntry(ctx context.Context, entry *models.JournalEntry) error {
	entry.ID = uint64(len(s.entries) + 1)
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeStore) RecordParseError(ctx context.Context, rec *models.ParseErrorRecord) error {
	s.errs = append(s.errs, rec)
	return nil
}

func (s *fakeStore) MarkTxStatus(ctx context.Context, txID uint64, status models.TxStatus, entryType models.EntryType) error {
	s.statuses[txID] = status
	for _, tx := range s.txs {
		if tx.ID == txID {
			tx.Status = status
			tx.EntryType = entryType
		}
	}
	return nil
}

type fixedExtractor struct {
	transfers []rawtx.RawTransfer
}

func (e fixedExtractor) Extract(tx *models.Transaction) ([]rawtx.RawTransfer, []rawtx.EventData, error) {
	return e.transfers, nil, nil
}

type fixedPrice struct{ price decimal.Decimal }

func (p fixedPrice) PriceAt(ctx context.Context, symbol string, unixTS int64) (*decimal.Decimal, error) {
	v := p.price
	return &v, nil
}

func newTestRegistry() *parser.Registry {
	r := parser.NewRegistry()
	r.SetFallback(parser.GenericSwap{}, parser.GenericEVM{})
	return r
}

func ts(n int64) *int64 { return &n }

func TestProcessTransactionSimpleTransferBalances(t *testing.T) {
	store := newFakeStore()
	wallet := onChainWallet(1, "ethereum", "0xaaaa000000000000000000000000000000000a")
	tx := &models.Transaction{ID: 1, WalletID: 1, Chain: "ethereum", TxHash: "0xdeadbeef", FromAddr: "0xaaaa000000000000000000000000000000000a", ToAddr: "0xbbbb000000000000000000000000000000000b", Timestamp: ts(1700000000), Status: models.TxLoaded}

	transfers := []rawtx.RawTransfer{
		{From: "0xaaaa000000000000000000000000000000000a", To: "0xbbbb000000000000000000000000000000000b", ValueUnits: big.NewInt(1_000_000_000_000_000_000), Decimals: 18, Symbol: "ETH", Kind: models.TransferNative},
	}

	bk := New(store, fixedExtractor{transfers: transfers}, newTestRegistry(), fixedPrice{price: decimal.NewFromInt(2000)}, func() decimal.Decimal { return decimal.NewFromInt(25000) })

	err := bk.ProcessTransaction(context.Background(), tx, wallet)
	require.NoError(t, err)
	require.Len(t, store.entries, 1)
	assert.Equal(t, models.TxParsed, tx.Status)
	assert.Empty(t, store.errs)

	entry := store.entries[0]
	assert.Equal(t, models.EntryTransfer, entry.EntryType)
	require.Len(t, entry.Splits, 2)

	usdSum := decimal.Zero
	for _, s := range entry.Splits {
		if s.ValueUSD != nil {
			usdSum = usdSum.Add(*s.ValueUSD)
		}
	}
	assert.True(t, usdSum.IsZero())
}

func TestProcessTransactionNoParserMatchRecordsUnknownInputError(t *testing.T) {
	store := newFakeStore()
	wallet := onChainWallet(1, "ethereum", "0xaaaa000000000000000000000000000000000a")
	tx := &models.Transaction{ID: 1, WalletID: 1, Chain: "ethereum", TxHash: "0xdeadbeef", FromAddr: "0xaaaa000000000000000000000000000000000a", ToAddr: "0xcccc000000000000000000000000000000000c", Timestamp: ts(1700000000), Status: models.TxLoaded}

	r := parser.NewRegistry() // empty fallback: nothing ever matches
	bk := New(store, fixedExtractor{}, r, fixedPrice{price: decimal.NewFromInt(1)}, func() decimal.Decimal { return decimal.NewFromInt(25000) })

	err := bk.ProcessTransaction(context.Background(), tx, wallet)
	require.NoError(t, err) // recordError itself doesn't propagate as a Go error
	require.Len(t, store.errs, 1)
	assert.Equal(t, models.ErrUnknownTxInput, store.errs[0].ErrorKind)
	assert.Equal(t, models.TxError, tx.Status)
}

func TestProcessWalletBatchContinuesPastErrors(t *testing.T) {
	store := newFakeStore()
	wallet := onChainWallet(1, "ethereum", "0xaaaa000000000000000000000000000000000a")

	goodTx := &models.Transaction{ID: 1, WalletID: 1, Chain: "ethereum", TxHash: "0xgood", FromAddr: "0xaaaa000000000000000000000000000000000a", ToAddr: "0xbbbb000000000000000000000000000000000b", Timestamp: ts(1700000000), Status: models.TxLoaded}
	badTx := &models.Transaction{ID: 2, WalletID: 1, Chain: "ethereum", TxHash: "0xbad", FromAddr: "0xaaaa000000000000000000000000000000000a", ToAddr: "0xcccc000000000000000000000000000000000c", Timestamp: ts(1700000001), Status: models.TxLoaded}
	store.txs = []*models.Transaction{goodTx, badTx}

	transfers := []rawtx.RawTransfer{
		{From: "0xaaaa000000000000000000000000000000000a", To: "0xbbbb000000000000000000000000000000000b", ValueUnits: big.NewInt(1), Decimals: 18, Symbol: "ETH", Kind: models.TransferNative},
	}

	callCount := 0
	extractor := extractorFunc(func(tx *models.Transaction) ([]rawtx.RawTransfer, []rawtx.EventData, error) {
		callCount++
		if tx.TxHash == "0xgood" {
			return transfers, nil, nil
		}
		return nil, nil, nil
	})

	r := parser.NewRegistry()
	r.SetFallback(parser.GenericSwap{}, parser.GenericEVM{})
	bk := New(store, extractor, r, fixedPrice{price: decimal.NewFromInt(1)}, func() decimal.Decimal { return decimal.NewFromInt(25000) })

	res, err := bk.ProcessWallet(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 2, callCount)
}

type extractorFunc func(tx *models.Transaction) ([]rawtx.RawTransfer, []rawtx.EventData, error)

func (f extractorFunc) Extract(tx *models.Transaction) ([]rawtx.RawTransfer, []rawtx.EventData, error) {
	return f(tx)
}
