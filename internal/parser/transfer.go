package parser

import (
	"github.com/shopspring/decimal"

	"cryptotax/internal/rawtx"
)

func symbolOf(t *rawtx.RawTransfer) string { return t.Symbol }

func qtyOf(t *rawtx.RawTransfer) decimal.Decimal {
	if t.ValueUnits == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(t.ValueUnits, 0).Shift(int32(-t.Decimals))
}
