package loader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotax/internal/models"
)

type stubBinance struct {
	trades      map[string][]BinanceTrade
	deposits    []BinanceDeposit
	withdrawals []BinanceWithdrawal

	depositStart int64 // startTime passed to the last Deposits call
}

func (s *stubBinance) MyTrades(ctx context.Context, symbol string, startTime int64) ([]BinanceTrade, error) {
	return s.trades[symbol], nil
}
func (s *stubBinance) Deposits(ctx context.Context, startTime int64) ([]BinanceDeposit, error) {
	s.depositStart = startTime
	return s.deposits, nil
}
func (s *stubBinance) Withdrawals(ctx context.Context, startTime int64) ([]BinanceWithdrawal, error) {
	return s.withdrawals, nil
}

func TestBinanceLoaderSyntheticIDsAndDedup(t *testing.T) {
	client := &stubBinance{
		trades: map[string][]BinanceTrade{
			"BTCUSDT": {{ID: 42, Symbol: "BTCUSDT", IsBuyer: true, Price: "30000", Qty: "0.1", Time: 1_700_000_000_000}},
		},
		deposits:    []BinanceDeposit{{TxID: "deposit-hash-1", Coin: "USDT", Amount: "100", InsertTime: 1_700_000_001_000}},
		withdrawals: []BinanceWithdrawal{{ID: "wd-1", Coin: "USDT", Amount: "50", ApplyTime: 1_700_000_002_000}},
	}
	store := &stubStore{existing: map[string]bool{}}
	wallet := &models.Wallet{ID: 1, Kind: models.WalletKindCex, Cex: &models.CexWallet{Exchange: "binance"}}

	l := NewBinanceLoader(client, store, []string{"BTCUSDT"})
	res, err := l.Sync(context.Background(), wallet)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.Stored)

	hashes := map[string]bool{}
	for _, tx := range store.stored {
		hashes[tx.TxHash] = true
	}
	assert.True(t, hashes["binance_trade_42"])
	assert.True(t, hashes["binance_deposit_deposit-hash-1"])
	assert.True(t, hashes["binance_withdraw_wd-1"])
	assert.NotNil(t, wallet.Cex.LastSyncedAt)
}

func TestBinanceLoaderSkipsAlreadyStoredRows(t *testing.T) {
	client := &stubBinance{
		trades: map[string][]BinanceTrade{
			"ETHUSDT": {{ID: 7, Symbol: "ETHUSDT", Time: 1}},
		},
	}
	store := &stubStore{existing: map[string]bool{"binance_trade_7": true}}
	wallet := &models.Wallet{ID: 2, Kind: models.WalletKindCex, Cex: &models.CexWallet{Exchange: "binance"}}

	l := NewBinanceLoader(client, store, []string{"ETHUSDT"})
	res, err := l.Sync(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 0, res.Stored)
}

func TestBinanceLoaderUsesLastSyncedAtAsStartTime(t *testing.T) {
	past := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wallet := &models.Wallet{ID: 3, Kind: models.WalletKindCex, Cex: &models.CexWallet{Exchange: "binance", LastSyncedAt: &past}}
	client := &stubBinance{}
	store := &stubStore{existing: map[string]bool{}}

	l := NewBinanceLoader(client, store, nil)
	_, err := l.Sync(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, past.UnixMilli(), client.depositStart)
}
