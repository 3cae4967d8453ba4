package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotax/internal/models"
)

func usd(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func TestFIFOMatchSimpleFullConsumption(t *testing.T) {
	trades := []models.Trade{
		{Symbol: "ETH", Side: models.TradeBuy, Quantity: decimal.NewFromInt(2), PriceUSD: decimal.NewFromInt(1000), Timestamp: 0, EntryID: 1},
		{Symbol: "ETH", Side: models.TradeSell, Quantity: decimal.NewFromInt(2), PriceUSD: decimal.NewFromInt(1500), Timestamp: 10 * 86400, EntryID: 2},
	}

	closed, open := FIFOMatch(trades)
	require.Len(t, closed, 1)
	assert.Empty(t, open)

	cl := closed[0]
	assert.True(t, cl.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, cl.CostBasisUSD.Equal(decimal.NewFromInt(2000)))
	assert.True(t, cl.ProceedsUSD.Equal(decimal.NewFromInt(3000)))
	assert.True(t, cl.GainUSD.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(10), cl.HoldingDays)
	assert.Equal(t, uint64(1), cl.BuyEntryID)
	assert.Equal(t, uint64(2), cl.SellEntryID)
}

func TestFIFOMatchConsumesOldestLotFirst(t *testing.T) {
	trades := []models.Trade{
		{Symbol: "ETH", Side: models.TradeBuy, Quantity: decimal.NewFromInt(1), PriceUSD: decimal.NewFromInt(1000), Timestamp: 0, EntryID: 1},
		{Symbol: "ETH", Side: models.TradeBuy, Quantity: decimal.NewFromInt(1), PriceUSD: decimal.NewFromInt(2000), Timestamp: 86400, EntryID: 2},
		{Symbol: "ETH", Side: models.TradeSell, Quantity: decimal.NewFromInt(1), PriceUSD: decimal.NewFromInt(3000), Timestamp: 2 * 86400, EntryID: 3},
	}

	closed, open := FIFOMatch(trades)
	require.Len(t, closed, 1)
	require.Len(t, open, 1)

	assert.Equal(t, uint64(1), closed[0].BuyEntryID, "the older lot must be consumed first")
	assert.True(t, closed[0].CostBasisUSD.Equal(decimal.NewFromInt(1000)))

	assert.Equal(t, uint64(2), open[0].BuyEntryID)
	assert.True(t, open[0].RemainingQuantity.Equal(decimal.NewFromInt(1)))
}

func TestFIFOMatchPartialLotConsumptionSplitsAcrossTwoBuys(t *testing.T) {
	trades := []models.Trade{
		{Symbol: "ETH", Side: models.TradeBuy, Quantity: decimal.NewFromInt(1), PriceUSD: decimal.NewFromInt(1000), Timestamp: 0, EntryID: 1},
		{Symbol: "ETH", Side: models.TradeBuy, Quantity: decimal.NewFromInt(1), PriceUSD: decimal.NewFromInt(2000), Timestamp: 86400, EntryID: 2},
		{Symbol: "ETH", Side: models.TradeSell, Quantity: decimal.NewFromInt(2), PriceUSD: decimal.NewFromInt(3000), Timestamp: 2 * 86400, EntryID: 3},
	}

	closed, open := FIFOMatch(trades)
	require.Len(t, closed, 2)
	assert.Empty(t, open)

	assert.Equal(t, uint64(1), closed[0].BuyEntryID)
	assert.Equal(t, uint64(2), closed[1].BuyEntryID)
}

func TestFIFOMatchNakedShortIsSilentlyIgnored(t *testing.T) {
	trades := []models.Trade{
		{Symbol: "ETH", Side: models.TradeSell, Quantity: decimal.NewFromInt(5), PriceUSD: decimal.NewFromInt(1000), Timestamp: 0, EntryID: 1},
	}

	closed, open := FIFOMatch(trades)
	assert.Empty(t, closed)
	assert.Empty(t, open)
}

func TestFIFOMatchExcessSellAfterQueueDrainsIsIgnored(t *testing.T) {
	trades := []models.Trade{
		{Symbol: "ETH", Side: models.TradeBuy, Quantity: decimal.NewFromInt(1), PriceUSD: decimal.NewFromInt(1000), Timestamp: 0, EntryID: 1},
		{Symbol: "ETH", Side: models.TradeSell, Quantity: decimal.NewFromInt(3), PriceUSD: decimal.NewFromInt(1500), Timestamp: 86400, EntryID: 2},
	}

	closed, open := FIFOMatch(trades)
	require.Len(t, closed, 1)
	assert.Empty(t, open)
	assert.True(t, closed[0].Quantity.Equal(decimal.NewFromInt(1)), "only the matched 1 unit is recorded, the extra 2 vanish silently")
}

func TestTradesFromSplitsSkipsNonAssetSubtypesAndZeroQuantity(t *testing.T) {
	rows := []SplitRow{
		{AccountSubtype: models.SubtypeNativeAsset, Symbol: "ETH", Quantity: decimal.NewFromInt(1), ValueUSD: usd(1000), Timestamp: 0, JournalEntryID: 1},
		{AccountSubtype: models.SubtypeWalletExpense, Symbol: "ETH", Quantity: decimal.NewFromInt(-1), ValueUSD: usd(-1000), Timestamp: 0, JournalEntryID: 1},
		{AccountSubtype: models.SubtypeNativeAsset, Symbol: "ETH", Quantity: decimal.Zero, ValueUSD: usd(0), Timestamp: 1, JournalEntryID: 2},
	}

	trades := TradesFromSplits(rows, "ETH")
	require.Len(t, trades, 1)
	assert.Equal(t, models.TradeBuy, trades[0].Side)
	assert.True(t, trades[0].PriceUSD.Equal(decimal.NewFromInt(1000)))
}

func TestTradesFromSplitsSortsByTimestamp(t *testing.T) {
	rows := []SplitRow{
		{AccountSubtype: models.SubtypeERC20Token, Symbol: "USDC", Quantity: decimal.NewFromInt(-5), ValueUSD: usd(-5), Timestamp: 200, JournalEntryID: 2},
		{AccountSubtype: models.SubtypeERC20Token, Symbol: "USDC", Quantity: decimal.NewFromInt(10), ValueUSD: usd(10), Timestamp: 100, JournalEntryID: 1},
	}

	trades := TradesFromSplits(rows, "USDC")
	require.Len(t, trades, 2)
	assert.Equal(t, int64(100), trades[0].Timestamp)
	assert.Equal(t, int64(200), trades[1].Timestamp)
}
