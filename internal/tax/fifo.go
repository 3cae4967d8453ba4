// Package tax implements FIFO capital-gains lot matching and the Vietnam
// per-transfer transaction tax (§4.6).
package tax

import (
	"sort"

	"github.com/shopspring/decimal"

	"cryptotax/internal/models"
)

// openLot is the in-flight FIFO queue entry for one unmatched buy. It
// carries the originating trade so a later match can report buy-side
// entry id and timestamp without a second lookup.
type openLot struct {
	symbol              string
	buyEntryID          uint64
	buyTimestamp        int64
	remainingQuantity   decimal.Decimal
	costBasisPerUnitUSD decimal.Decimal
}

// FIFOMatch matches a single symbol's trades using GLOBAL_FIFO: the oldest
// open buy lot is always consumed first. trades must already be sorted by
// timestamp and belong to one symbol; callers run this once per symbol.
func FIFOMatch(trades []models.Trade) ([]models.ClosedLot, []models.OpenLot) {
	var queue []openLot
	var closed []models.ClosedLot

	for _, trade := range trades {
		switch trade.Side {
		case models.TradeBuy:
			queue = append(queue, openLot{
				symbol:              trade.Symbol,
				buyEntryID:          trade.EntryID,
				buyTimestamp:        trade.Timestamp,
				remainingQuantity:   trade.Quantity,
				costBasisPerUnitUSD: trade.PriceUSD,
			})

		case models.TradeSell:
			sellRemaining := trade.Quantity
			for sellRemaining.IsPositive() && len(queue) > 0 {
				front := &queue[0]
				matchQty := decimal.Min(sellRemaining, front.remainingQuantity)

				costBasis := matchQty.Mul(front.costBasisPerUnitUSD)
				proceeds := matchQty.Mul(trade.PriceUSD)
				holdingDays := holdingDaysBetween(front.buyTimestamp, trade.Timestamp)

				closed = append(closed, models.ClosedLot{
					Symbol:        trade.Symbol,
					Quantity:      matchQty,
					CostBasisUSD:  costBasis,
					ProceedsUSD:   proceeds,
					GainUSD:       proceeds.Sub(costBasis),
					HoldingDays:   holdingDays,
					BuyEntryID:    front.buyEntryID,
					SellEntryID:   trade.EntryID,
					BuyTimestamp:  front.buyTimestamp,
					SellTimestamp: trade.Timestamp,
				})

				front.remainingQuantity = front.remainingQuantity.Sub(matchQty)
				sellRemaining = sellRemaining.Sub(matchQty)

				if !front.remainingQuantity.IsPositive() {
					queue = queue[1:]
				}
			}
			// Excess sell quantity with an empty queue (a naked short) is
			// silently ignored, matching the original's behavior: there is
			// no lot left to charge it against.
		}
	}

	open := make([]models.OpenLot, 0, len(queue))
	for _, lot := range queue {
		if lot.remainingQuantity.IsPositive() {
			open = append(open, models.OpenLot{
				Symbol:              lot.symbol,
				RemainingQuantity:   lot.remainingQuantity,
				CostBasisPerUnitUSD: lot.costBasisPerUnitUSD,
				BuyEntryID:          lot.buyEntryID,
				BuyTimestamp:        lot.buyTimestamp,
			})
		}
	}
	return closed, open
}

// holdingDaysBetween is the whole number of days between two unix-second
// timestamps, truncated toward zero the way Python's timedelta.days is for
// a positive difference (a sell always follows its matched buy here).
func holdingDaysBetween(buyTS, sellTS int64) int64 {
	return (sellTS - buyTS) / 86400
}

// SplitRow is the flattened view of one JournalSplit a TaxEngine needs,
// joined against its parent entry and account (§4.6 step 1 input).
type SplitRow struct {
	AccountSubtype models.AccountSubtype
	Symbol         string
	Quantity       decimal.Decimal
	ValueUSD       *decimal.Decimal
	ValueVND       *decimal.Decimal
	Timestamp      int64
	JournalEntryID uint64
	EntryType      models.EntryType
	Description    string
}

// TradesFromSplits converts the flattened split rows into Trade events for
// a single symbol, keeping only asset-subtype splits with nonzero
// quantity, and sorts the result ascending by timestamp (ties broken by
// original arrival order, since Go's sort.SliceStable preserves it).
func TradesFromSplits(rows []SplitRow, symbol string) []models.Trade {
	var trades []models.Trade

	for _, r := range rows {
		if r.Symbol != symbol {
			continue
		}
		if !models.AssetSubtypes[r.AccountSubtype] {
			continue
		}
		if r.Quantity.IsZero() {
			continue
		}

		valueUSD := decimal.Zero
		if r.ValueUSD != nil {
			valueUSD = *r.ValueUSD
		}
		absQty := r.Quantity.Abs()
		absValue := valueUSD.Abs()

		priceUSD := decimal.Zero
		if absQty.IsPositive() {
			priceUSD = absValue.Div(absQty)
		}

		side := models.TradeSell
		if r.Quantity.IsPositive() {
			side = models.TradeBuy
		}

		trades = append(trades, models.Trade{
			Symbol:      symbol,
			Side:        side,
			Quantity:    absQty,
			PriceUSD:    priceUSD,
			Timestamp:   r.Timestamp,
			EntryID:     r.JournalEntryID,
			Description: r.Description,
		})
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp < trades[j].Timestamp
	})
	return trades
}
