package models

import "github.com/shopspring/decimal"

// PriceCacheEntry is keyed uniquely by (Symbol, TimestampHour) (I4).
type PriceCacheEntry struct {
	ID            uint64
	Symbol        string
	TimestampHour int64 // unix seconds, truncated to the hour
	PriceUSD      decimal.Decimal
	Source        string // provider name, e.g. "coingecko", "cryptocompare"
}
