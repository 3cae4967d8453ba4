package parser

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotax/internal/models"
)

func parseRFC3339(s string) (int64, error) {
	return 1700000000, nil
}

func TestImportBinanceCSVGroupsByExactTimestamp(t *testing.T) {
	rows := []CSVRow{
		{UTCTime: "2024-01-01 00:00:00", Account: "Spot", Operation: "Deposit", Coin: "USDT", Change: decimal.NewFromInt(1000)},
		{UTCTime: "2024-01-02 00:00:00", Account: "Spot", Operation: "Withdraw", Coin: "USDT", Change: decimal.NewFromInt(-500)},
	}

	entries, skipped, err := ImportBinanceCSV(rows, parseRFC3339)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, entries, 2)
	assert.Equal(t, models.EntryDeposit, entries[0].EntryType)
	assert.Equal(t, models.EntryWithdrawal, entries[1].EntryType)
}

func TestImportBinanceCSVDepositEmitsExternalTransferCounterpart(t *testing.T) {
	rows := []CSVRow{
		{UTCTime: "t1", Operation: "Deposit", Coin: "USDT", Change: decimal.NewFromInt(1000)},
	}
	entries, _, err := ImportBinanceCSV(rows, parseRFC3339)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Splits, 2)

	sum := decimal.Zero
	for _, s := range entries[0].Splits {
		sum = sum.Add(s.Quantity)
	}
	assert.True(t, sum.IsZero())
}

func TestImportBinanceCSVConvertGroupIsSwap(t *testing.T) {
	rows := []CSVRow{
		{UTCTime: "t1", Operation: "Binance Convert", Coin: "BTC", Change: decimal.NewFromFloat(-0.01)},
		{UTCTime: "t1", Operation: "Binance Convert", Coin: "USDT", Change: decimal.NewFromInt(500)},
	}
	entries, skipped, err := ImportBinanceCSV(rows, parseRFC3339)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntrySwap, entries[0].EntryType)
	assert.Len(t, entries[0].Splits, 2)
}

func TestImportBinanceCSVSimpleEarnSubscriptionIsDepositToProtocolAsset(t *testing.T) {
	rows := []CSVRow{
		{UTCTime: "t1", Operation: "Simple Earn Subscription", Coin: "USDT", Change: decimal.NewFromInt(-1000)},
	}
	entries, _, err := ImportBinanceCSV(rows, parseRFC3339)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntryDeposit, entries[0].EntryType)

	var sawProtocolAsset bool
	for _, s := range entries[0].Splits {
		if s.Subtype == models.SubtypeProtocolAsset {
			sawProtocolAsset = true
			assert.Equal(t, "binance_earn", s.Protocol)
		}
	}
	assert.True(t, sawProtocolAsset)
}

func TestImportBinanceCSVNegativeFundingFeeIsGasFee(t *testing.T) {
	rows := []CSVRow{
		{UTCTime: "t1", Operation: "Funding Fee", Coin: "USDT", Change: decimal.NewFromInt(-5)},
	}
	entries, _, err := ImportBinanceCSV(rows, parseRFC3339)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntryGasFee, entries[0].EntryType)
}

func TestImportBinanceCSVPositiveFundingFeeIsYield(t *testing.T) {
	rows := []CSVRow{
		{UTCTime: "t1", Operation: "Funding Fee", Coin: "USDT", Change: decimal.NewFromInt(5)},
	}
	entries, _, err := ImportBinanceCSV(rows, parseRFC3339)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntryYield, entries[0].EntryType)
}

func TestImportBinanceCSVUnknownOperationIsSkipped(t *testing.T) {
	rows := []CSVRow{
		{UTCTime: "t1", Operation: "Some Unrecognized Row Type", Coin: "USDT", Change: decimal.NewFromInt(1)},
	}
	entries, skipped, err := ImportBinanceCSV(rows, parseRFC3339)
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.Len(t, skipped, 1)
	assert.Equal(t, []string{"Some Unrecognized Row Type"}, skipped[0].Operations)
}
