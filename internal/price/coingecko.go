package price

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptotax/internal/netutil"
)

// coinGeckoRangeResponse is the /coins/{id}/market_chart/range shape:
// Prices is a list of [unix_ms, price] pairs.
type coinGeckoRangeResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// CoinGecko is the primary price provider (§4.5).
type CoinGecko struct {
	BaseURL string
	APIKey  string

	// Limiter throttles outbound requests to CoinGecko's free-tier rate
	// (≈2 req/s, §5). Nil disables throttling, as in tests against a
	// local httptest server.
	Limiter *netutil.TokenBucket
}

func NewCoinGecko(baseURL, apiKey string) *CoinGecko {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com"
	}
	return &CoinGecko{BaseURL: baseURL, APIKey: apiKey}
}

func (p *CoinGecko) Name() string { return "coingecko" }

// FetchPrice implements the CoinGecko branch of §4.5 step 3: stablecoin
// shortcut, id resolution, a 2-hour window query, closest-datapoint
// selection. Every failure mode — unresolvable symbol, non-429 error
// status, exhausted 429 backoff, exhausted transport-error backoff —
// resolves to (nil, nil): a missing price is not an error (§7
// PRICE_MISSING). Only context cancellation surfaces as an error.
func (p *CoinGecko) FetchPrice(ctx context.Context, symbol string, targetTS int64) (*decimal.Decimal, error) {
	if Stablecoins[strings.ToUpper(symbol)] {
		one := decimal.NewFromInt(1)
		return &one, nil
	}

	id := resolveCoinGeckoID(symbol)
	if id == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("from", strconv.FormatInt(targetTS-3600, 10))
	q.Set("to", strconv.FormatInt(targetTS+3600, 10))
	if p.APIKey != "" {
		q.Set("x_cg_demo_api_key", p.APIKey)
	}
	endpoint := fmt.Sprintf("%s/api/v3/coins/%s/market_chart/range?%s", p.BaseURL, id, q.Encode())

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if p.Limiter != nil {
			if werr := p.Limiter.Wait(ctx); werr != nil {
				return nil, werr
			}
		}
		var resp coinGeckoRangeResponse
		err := netutil.GetJSON(ctx, endpoint, &resp)
		if err == nil {
			return closestCoinGeckoPrice(resp.Prices, targetTS), nil
		}

		if se, ok := err.(*netutil.StatusError); ok {
			if se.Code != 429 {
				return nil, nil
			}
			if werr := sleepOrDone(ctx, rateLimitBackoff(attempt)); werr != nil {
				return nil, werr
			}
			continue
		}

		if werr := sleepOrDone(ctx, exceptionBackoff(attempt)); werr != nil {
			return nil, werr
		}
	}
	return nil, nil
}

func closestCoinGeckoPrice(points [][2]float64, targetTS int64) *decimal.Decimal {
	if len(points) == 0 {
		return nil
	}
	targetMS := float64(targetTS * 1000)
	best := points[0]
	bestDist := absF(best[0] - targetMS)
	for _, pt := range points[1:] {
		d := absF(pt[0] - targetMS)
		if d < bestDist {
			best, bestDist = pt, d
		}
	}
	dec := decimal.NewFromFloat(best[1])
	return &dec
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// rateLimitBackoff is the 2s/4s/8s table (§4.5 step 3).
func rateLimitBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt+1)) * time.Second
}

// exceptionBackoff matches the original's looser 1s/2s/4s backoff for
// transport-level failures, distinct from the rate-limit table.
func exceptionBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
