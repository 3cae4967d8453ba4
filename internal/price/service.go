// Package price implements the PriceService (§4.5): an hourly-bucketed,
// two-tier cached lookup of (symbol, unix_ts) -> USD price, backed by a
// CoinGecko-then-CryptoCompare provider chain.
package price

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptotax/internal/models"
)

// Provider resolves a symbol to a historical USD price at a target unix
// timestamp, or (nil, nil) if it cannot (§4.5 step 3).
type Provider interface {
	Name() string
	FetchPrice(ctx context.Context, symbol string, targetTS int64) (*decimal.Decimal, error)
}

// ErrDuplicatePriceEntry is returned by Store.InsertPriceCacheEntry when a
// concurrent writer already cached the same (symbol, hour) — the
// single-table substitute for the teacher's nested-savepoint insert
// (§4.5 step 4, I4).
var ErrDuplicatePriceEntry = errors.New("price: cache entry already exists")

// Store is the GORM-backed L2 tier, keyed uniquely on (symbol,
// timestamp_hour).
type Store interface {
	FindPriceCacheEntry(ctx context.Context, symbol string, hour int64) (*models.PriceCacheEntry, error)
	InsertPriceCacheEntry(ctx context.Context, entry *models.PriceCacheEntry) error
}

// Cache is the hot L1 tier in front of Store — internal/db.RedisCache,
// internal/db.MemoryCache, or internal/db.ProtectedCache wrapping either.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheTTL is how long a resolved price sits in the L1 cache. Price-cache
// rows are immutable (I4) so this bounds staleness of the hot tier only,
// never correctness.
const CacheTTL = 24 * time.Hour

// Service orchestrates cache lookup -> provider chain -> cache/store
// write for one (symbol, unix_ts) price (§4.5).
type Service struct {
	Store     Store
	Cache     Cache
	Providers []Provider // tried in order; first non-nil result wins
}

func New(store Store, cache Cache, providers ...Provider) *Service {
	return &Service{Store: store, Cache: cache, Providers: providers}
}

func roundToHour(ts int64) int64 { return ts - ts%3600 }

// cacheKey must stay byte-for-byte identical to internal/db.PriceCacheKey's
// format (symbol is always upper-cased by PriceAt before this is called) —
// Store invalidates the L1 PRICE_MISSING marker by building the same key
// independently, since internal/db already imports this package and a
// reverse import would cycle.
func cacheKey(symbol string, hour int64) string {
	return "price:" + symbol + ":" + strconv.FormatInt(hour, 10)
}

// PriceAt implements §4.5 steps 1-5. A nil, nil return means no provider
// could price the symbol at this timestamp (PRICE_MISSING, not an error).
func (s *Service) PriceAt(ctx context.Context, symbol string, unixTS int64) (*decimal.Decimal, error) {
	symbol = strings.ToUpper(symbol)
	hour := roundToHour(unixTS)
	key := cacheKey(symbol, hour)

	if s.Cache != nil {
		if raw, err := s.Cache.Get(ctx, key); err == nil {
			d, perr := decimal.NewFromString(string(raw))
			if perr == nil {
				return &d, nil
			}
		}
	}

	entry, err := s.Store.FindPriceCacheEntry(ctx, symbol, hour)
	if err != nil {
		return nil, fmt.Errorf("looking up price cache for %s@%d: %w", symbol, hour, err)
	}
	if entry != nil {
		s.warmCache(ctx, key, entry.PriceUSD)
		return &entry.PriceUSD, nil
	}

	for _, provider := range s.Providers {
		price, err := provider.FetchPrice(ctx, symbol, hour)
		if err != nil {
			return nil, fmt.Errorf("%s fetch for %s@%d: %w", provider.Name(), symbol, hour, err)
		}
		if price == nil {
			continue
		}

		if err := s.Store.InsertPriceCacheEntry(ctx, &models.PriceCacheEntry{
			Symbol:        symbol,
			TimestampHour: hour,
			PriceUSD:      *price,
			Source:        provider.Name(),
		}); err != nil && !errors.Is(err, ErrDuplicatePriceEntry) {
			return nil, fmt.Errorf("caching price for %s@%d: %w", symbol, hour, err)
		}
		s.warmCache(ctx, key, *price)
		return price, nil
	}

	return nil, nil
}

func (s *Service) warmCache(ctx context.Context, key string, price decimal.Decimal) {
	if s.Cache == nil {
		return
	}
	_ = s.Cache.Set(ctx, key, []byte(price.String()), CacheTTL)
}

// PriceSplit computes (value_usd, value_vnd) for a signed quantity,
// restoring quantity's sign onto the result (§4.5 "Split pricing").
func PriceSplit(quantity decimal.Decimal, priceUSD decimal.Decimal, usdVndRate decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	valueUSD := quantity.Abs().Mul(priceUSD)
	if quantity.IsNegative() {
		valueUSD = valueUSD.Neg()
	}
	return valueUSD, valueUSD.Mul(usdVndRate)
}
