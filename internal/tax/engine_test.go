package tax

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotax/internal/models"
)

type fakeTaxStore struct {
	rows      []SplitRow
	cleared   []uint64
	closed    []models.ClosedLot
	open      []models.OpenLot
	transfers []models.TaxableTransferRecord
}

func (s *fakeTaxStore) LoadSplitRows(ctx context.Context, entityID uint64, start, end int64) ([]SplitRow, error) {
	return s.rows, nil
}

func (s *fakeTaxStore) ClearTaxResults(ctx context.Context, entityID uint64) error {
	s.cleared = append(s.cleared, entityID)
	s.closed = nil
	s.open = nil
	s.transfers = nil
	return nil
}

func (s *fakeTaxStore) InsertClosedLot(ctx context.Context, lot *models.ClosedLot) error {
	s.closed = append(s.closed, *lot)
	return nil
}

func (s *fakeTaxStore) InsertOpenLot(ctx context.Context, lot *models.OpenLot) error {
	s.open = append(s.open, *lot)
	return nil
}

func (s *fakeTaxStore) InsertTaxableTransfer(ctx context.Context, t *models.TaxableTransferRecord) error {
	s.transfers = append(s.transfers, *t)
	return nil
}

func testConfig() Config {
	return Config{
		UsdVndRate:            decimal.NewFromInt(25000),
		ExemptionThresholdVND: decimal.NewFromInt(20_000_000),
		TaxRate:               decimal.New(1, -3),
	}
}

func TestEngineCalculateRealizesGainAndAggregatesSummary(t *testing.T) {
	store := &fakeTaxStore{
		rows: []SplitRow{
			{AccountSubtype: models.SubtypeNativeAsset, Symbol: "ETH", Quantity: decimal.NewFromInt(1), ValueUSD: usd(1000), Timestamp: 0, JournalEntryID: 1, EntryType: models.EntryDeposit},
			{AccountSubtype: models.SubtypeNativeAsset, Symbol: "ETH", Quantity: decimal.NewFromInt(-1), ValueUSD: usd(-500), Timestamp: 86400, JournalEntryID: 2, EntryType: models.EntryWithdrawal},
		},
	}
	engine := NewEngine(store, testConfig())

	summary, err := engine.Calculate(context.Background(), 7, 0, 200000)
	require.NoError(t, err)

	require.Len(t, summary.ClosedLots, 1)
	assert.True(t, summary.ClosedLots[0].GainUSD.Equal(decimal.NewFromInt(-500)))
	assert.True(t, summary.TotalRealizedGainUSD.Equal(decimal.NewFromInt(-500)))
	assert.Equal(t, uint64(7), summary.ClosedLots[0].EntityID)

	require.Len(t, store.cleared, 1)
	assert.Equal(t, uint64(7), store.cleared[0])
}

func TestEngineCalculateTaxesOutgoingTransferBelowThreshold(t *testing.T) {
	store := &fakeTaxStore{
		rows: []SplitRow{
			{AccountSubtype: models.SubtypeNativeAsset, Symbol: "ETH", Quantity: decimal.NewFromInt(-1), ValueUSD: usd(100), Timestamp: 0, JournalEntryID: 1, EntryType: models.EntryTransfer},
		},
	}
	engine := NewEngine(store, testConfig())

	summary, err := engine.Calculate(context.Background(), 1, 0, 100)
	require.NoError(t, err)

	require.Len(t, summary.TaxableTransfers, 1)
	transfer := summary.TaxableTransfers[0]
	assert.Nil(t, transfer.ExemptionReason)
	assert.True(t, transfer.ValueVND.Equal(decimal.NewFromInt(2_500_000)))
	assert.True(t, transfer.TaxAmountVND.Equal(decimal.NewFromInt(2500)))
	assert.True(t, summary.TotalTransferTaxVND.Equal(decimal.NewFromInt(2500)))
	assert.True(t, summary.TotalExemptVND.IsZero())
}

func TestEngineCalculateExemptsTransferAboveThreshold(t *testing.T) {
	store := &fakeTaxStore{
		rows: []SplitRow{
			{AccountSubtype: models.SubtypeERC20Token, Symbol: "USDC", Quantity: decimal.NewFromInt(-1000), ValueUSD: usd(1000), Timestamp: 0, JournalEntryID: 1, EntryType: models.EntryTransfer},
		},
	}
	engine := NewEngine(store, testConfig())

	summary, err := engine.Calculate(context.Background(), 1, 0, 100)
	require.NoError(t, err)

	require.Len(t, summary.TaxableTransfers, 1)
	transfer := summary.TaxableTransfers[0]
	require.NotNil(t, transfer.ExemptionReason)
	assert.Equal(t, models.ExemptionBelowThreshold, *transfer.ExemptionReason)
	assert.True(t, transfer.TaxAmountVND.IsZero())
	assert.True(t, summary.TotalExemptVND.Equal(decimal.NewFromInt(25_000_000)))
	assert.True(t, summary.TotalTransferTaxVND.IsZero())
}

func TestEngineCalculateGasFeeExemptionTakesPriorityOverBelowThreshold(t *testing.T) {
	// Value is small enough to be below the taxable threshold (not the
	// BELOW_THRESHOLD exemption, which fires above it) but tagged as a
	// gas fee entry, so GAS_FEE must win as the recorded reason.
	store := &fakeTaxStore{
		rows: []SplitRow{
			{AccountSubtype: models.SubtypeNativeAsset, Symbol: "ETH", Quantity: decimal.NewFromInt(-1), ValueUSD: usd(1), Timestamp: 0, JournalEntryID: 1, EntryType: models.EntryGasFee},
		},
	}
	engine := NewEngine(store, testConfig())

	summary, err := engine.Calculate(context.Background(), 1, 0, 100)
	require.NoError(t, err)

	require.Len(t, summary.TaxableTransfers, 1)
	require.NotNil(t, summary.TaxableTransfers[0].ExemptionReason)
	assert.Equal(t, models.ExemptionGasFee, *summary.TaxableTransfers[0].ExemptionReason)
}

func TestEngineCalculateGasFeeExemptionOverridesAboveThresholdToo(t *testing.T) {
	store := &fakeTaxStore{
		rows: []SplitRow{
			{AccountSubtype: models.SubtypeERC20Token, Symbol: "USDC", Quantity: decimal.NewFromInt(-1000), ValueUSD: usd(1000), Timestamp: 0, JournalEntryID: 1, EntryType: models.EntryGasFee},
		},
	}
	engine := NewEngine(store, testConfig())

	summary, err := engine.Calculate(context.Background(), 1, 0, 100)
	require.NoError(t, err)

	require.Len(t, summary.TaxableTransfers, 1)
	require.NotNil(t, summary.TaxableTransfers[0].ExemptionReason)
	assert.Equal(t, models.ExemptionGasFee, *summary.TaxableTransfers[0].ExemptionReason,
		"GAS_FEE must win over BELOW_THRESHOLD even when the transfer value also exceeds the threshold")
}

func TestEngineCalculateIgnoresPositiveQuantitySplitsForTransferTax(t *testing.T) {
	store := &fakeTaxStore{
		rows: []SplitRow{
			{AccountSubtype: models.SubtypeNativeAsset, Symbol: "ETH", Quantity: decimal.NewFromInt(1), ValueUSD: usd(100), Timestamp: 0, JournalEntryID: 1, EntryType: models.EntryTransfer},
		},
	}
	engine := NewEngine(store, testConfig())

	summary, err := engine.Calculate(context.Background(), 1, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, summary.TaxableTransfers)
}

func TestEngineCalculateIsIdempotentAcrossRuns(t *testing.T) {
	store := &fakeTaxStore{
		rows: []SplitRow{
			{AccountSubtype: models.SubtypeNativeAsset, Symbol: "ETH", Quantity: decimal.NewFromInt(1), ValueUSD: usd(1000), Timestamp: 0, JournalEntryID: 1, EntryType: models.EntryDeposit},
			{AccountSubtype: models.SubtypeNativeAsset, Symbol: "ETH", Quantity: decimal.NewFromInt(-1), ValueUSD: usd(1500), Timestamp: 86400, JournalEntryID: 2, EntryType: models.EntryWithdrawal},
		},
	}
	engine := NewEngine(store, testConfig())

	_, err := engine.Calculate(context.Background(), 3, 0, 200000)
	require.NoError(t, err)
	_, err = engine.Calculate(context.Background(), 3, 0, 200000)
	require.NoError(t, err)

	assert.Len(t, store.cleared, 2)
	assert.Len(t, store.closed, 1, "a second run over the same range must not duplicate results")
}
