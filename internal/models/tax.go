package models

import "github.com/shopspring/decimal"

// Trade is built from a single asset-side JournalSplit (§4.6 step 1).
type Trade struct {
	Symbol      string
	Side        TradeSide
	Quantity    decimal.Decimal // always positive
	PriceUSD    decimal.Decimal
	Timestamp   int64
	EntryID     uint64
	Description string
}

// OpenLot is an unmatched residual buy, retained across TaxEngine runs.
type OpenLot struct {
	ID                  uint64
	EntityID            uint64
	Symbol              string
	RemainingQuantity   decimal.Decimal
	CostBasisPerUnitUSD decimal.Decimal
	BuyEntryID          uint64
	BuyTimestamp        int64
}

// ClosedLot is a realized FIFO match.
type ClosedLot struct {
	ID            uint64
	EntityID      uint64
	Symbol        string
	Quantity      decimal.Decimal
	CostBasisUSD  decimal.Decimal
	ProceedsUSD   decimal.Decimal
	GainUSD       decimal.Decimal
	HoldingDays   int64
	BuyEntryID    uint64
	SellEntryID   uint64
	BuyTimestamp  int64
	SellTimestamp int64
}

// TaxableTransferRecord is a per-outgoing-split transaction-tax row
// (§4.6 step 3).
type TaxableTransferRecord struct {
	ID              uint64
	EntityID        uint64
	JournalEntryID  uint64
	Symbol          string
	Quantity        decimal.Decimal
	ValueUSD        decimal.Decimal
	ValueVND        decimal.Decimal
	TaxAmountVND    decimal.Decimal
	ExemptionReason *TaxExemptionReason
	Timestamp       int64
}

// TaxSummary is the aggregate result of one TaxEngine.Calculate run
// (§4.6 step 5).
type TaxSummary struct {
	EntityID             uint64
	PeriodStart          int64
	PeriodEnd            int64
	TotalRealizedGainUSD decimal.Decimal
	TotalTransferTaxVND  decimal.Decimal
	TotalExemptVND       decimal.Decimal
	ClosedLots           []ClosedLot
	OpenLots             []OpenLot
	TaxableTransfers     []TaxableTransferRecord
}
