package tax

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"cryptotax/internal/models"
)

// DefaultTaxRate and DefaultExemptionThresholdVND are the Vietnam transfer-tax defaults
// (§4.6 step 3); Engine.Config overrides them from TaxCfg so they are never
// read from a package-level global at calculation time.
var (
	DefaultTaxRate               = decimal.New(1, -3) // 0.1%
	DefaultExemptionThresholdVND = decimal.NewFromInt(20_000_000)
)

// Config carries the Vietnam tax parameters into Engine, threaded in from
// config.TaxCfg by the caller rather than read from a global.
type Config struct {
	UsdVndRate            decimal.Decimal
	ExemptionThresholdVND decimal.Decimal
	TaxRate               decimal.Decimal
}

// Store loads the joined split rows for an entity's journal entries in a
// time range, and persists a run's lot/transfer output idempotently
// (clear-then-reinsert per entity, §4.6 step 4).
type Store interface {
	LoadSplitRows(ctx context.Context, entityID uint64, start, end int64) ([]SplitRow, error)
	ClearTaxResults(ctx context.Context, entityID uint64) error
	InsertClosedLot(ctx context.Context, lot *models.ClosedLot) error
	InsertOpenLot(ctx context.Context, lot *models.OpenLot) error
	InsertTaxableTransfer(ctx context.Context, t *models.TaxableTransferRecord) error
}

// Engine orchestrates FIFO capital gains and the Vietnam transfer tax
// (§4.6).
type Engine struct {
	Store  Store
	Config Config
}

// NewEngine builds an Engine, defaulting the tax rate and exemption
// threshold when Config leaves them zero.
func NewEngine(store Store, cfg Config) *Engine {
	if cfg.TaxRate.IsZero() {
		cfg.TaxRate = DefaultTaxRate
	}
	if cfg.ExemptionThresholdVND.IsZero() {
		cfg.ExemptionThresholdVND = DefaultExemptionThresholdVND
	}
	return &Engine{Store: store, Config: cfg}
}

// Calculate runs the full tax calculation for one entity over [start, end]
// (unix seconds, inclusive), persists the result, and returns the summary.
func (e *Engine) Calculate(ctx context.Context, entityID uint64, start, end int64) (*models.TaxSummary, error) {
	rows, err := e.Store.LoadSplitRows(ctx, entityID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load split rows: %w", err)
	}

	symbolSet := map[string]bool{}
	for _, r := range rows {
		if r.Symbol != "" {
			symbolSet[r.Symbol] = true
		}
	}
	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var allClosed []models.ClosedLot
	var allOpen []models.OpenLot
	for _, symbol := range symbols {
		trades := TradesFromSplits(rows, symbol)
		if len(trades) == 0 {
			continue
		}
		closed, open := FIFOMatch(trades)
		allClosed = append(allClosed, closed...)
		allOpen = append(allOpen, open...)
	}

	transfers := e.calculateTransferTax(rows)

	totalGain := decimal.Zero
	for _, cl := range allClosed {
		totalGain = totalGain.Add(cl.GainUSD)
	}
	totalTax := decimal.Zero
	totalExempt := decimal.Zero
	for _, t := range transfers {
		if t.ExemptionReason == nil {
			totalTax = totalTax.Add(t.TaxAmountVND)
		} else {
			totalExempt = totalExempt.Add(t.ValueVND)
		}
	}

	for i := range allClosed {
		allClosed[i].EntityID = entityID
	}
	for i := range allOpen {
		allOpen[i].EntityID = entityID
	}
	for i := range transfers {
		transfers[i].EntityID = entityID
	}

	if err := e.persist(ctx, entityID, allClosed, allOpen, transfers); err != nil {
		return nil, fmt.Errorf("persist tax results: %w", err)
	}

	return &models.TaxSummary{
		EntityID:             entityID,
		PeriodStart:          start,
		PeriodEnd:            end,
		TotalRealizedGainUSD: totalGain,
		TotalTransferTaxVND:  totalTax,
		TotalExemptVND:       totalExempt,
		ClosedLots:           allClosed,
		OpenLots:             allOpen,
		TaxableTransfers:     transfers,
	}, nil
}

// calculateTransferTax applies the Vietnam 0.1% per-transfer tax to every
// outgoing (negative-quantity) asset split, exemption priority GAS_FEE
// over BELOW_THRESHOLD (§4.6 step 3). Rows are not grouped by journal
// entry: the tax is computed and recorded per split.
func (e *Engine) calculateTransferTax(rows []SplitRow) []models.TaxableTransferRecord {
	var transfers []models.TaxableTransferRecord

	for _, r := range rows {
		if !models.AssetSubtypes[r.AccountSubtype] {
			continue
		}
		if !r.Quantity.IsNegative() {
			continue
		}

		valueUSD := decimal.Zero
		if r.ValueUSD != nil {
			valueUSD = r.ValueUSD.Abs()
		}
		valueVND := valueUSD.Mul(e.Config.UsdVndRate)
		taxAmount := valueVND.Mul(e.Config.TaxRate)

		var exemption *models.TaxExemptionReason
		if valueVND.GreaterThan(e.Config.ExemptionThresholdVND) {
			below := models.ExemptionBelowThreshold
			exemption = &below
		}
		if r.EntryType == models.EntryGasFee {
			gasFee := models.ExemptionGasFee
			exemption = &gasFee
		}

		if exemption != nil {
			taxAmount = decimal.Zero
		}

		transfers = append(transfers, models.TaxableTransferRecord{
			JournalEntryID:  r.JournalEntryID,
			Symbol:          r.Symbol,
			Quantity:        r.Quantity.Abs(),
			ValueUSD:        valueUSD,
			ValueVND:        valueVND,
			TaxAmountVND:    taxAmount,
			ExemptionReason: exemption,
			Timestamp:       r.Timestamp,
		})
	}

	return transfers
}

// persist clears prior results for the entity and reinserts the new run,
// making Calculate idempotent to repeated invocations over the same range
// (§4.6 step 4).
func (e *Engine) persist(ctx context.Context, entityID uint64, closed []models.ClosedLot, open []models.OpenLot, transfers []models.TaxableTransferRecord) error {
	if err := e.Store.ClearTaxResults(ctx, entityID); err != nil {
		return fmt.Errorf("clear prior results: %w", err)
	}
	for i := range closed {
		if err := e.Store.InsertClosedLot(ctx, &closed[i]); err != nil {
			return fmt.Errorf("insert closed lot: %w", err)
		}
	}
	for i := range open {
		if err := e.Store.InsertOpenLot(ctx, &open[i]); err != nil {
			return fmt.Errorf("insert open lot: %w", err)
		}
	}
	for i := range transfers {
		if err := e.Store.InsertTaxableTransfer(ctx, &transfers[i]); err != nil {
			return fmt.Errorf("insert taxable transfer: %w", err)
		}
	}
	return nil
}
