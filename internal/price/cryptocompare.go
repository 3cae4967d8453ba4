package price

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"cryptotax/internal/netutil"
)

// cryptoCompareHistoResponse is the /data/v2/histohour shape.
type cryptoCompareHistoResponse struct {
	Data struct {
		Data []struct {
			Close float64 `json:"close"`
		} `json:"Data"`
	} `json:"Data"`
}

// CryptoCompare is the fallback price provider, consulted when CoinGecko
// cannot resolve or price a symbol (§4.5 step 3).
type CryptoCompare struct {
	BaseURL string
	APIKey  string

	// Limiter throttles outbound requests, mirroring CoinGecko's (§5).
	Limiter *netutil.TokenBucket
}

func NewCryptoCompare(baseURL, apiKey string) *CryptoCompare {
	if baseURL == "" {
		baseURL = "https://min-api.cryptocompare.com"
	}
	return &CryptoCompare{BaseURL: baseURL, APIKey: apiKey}
}

func (p *CryptoCompare) Name() string { return "cryptocompare" }

// FetchPrice uses the hourly close nearest toTs=targetTS (limit=1 returns
// one bucket ending at toTs). Same failure-to-nil contract as CoinGecko.
func (p *CryptoCompare) FetchPrice(ctx context.Context, symbol string, targetTS int64) (*decimal.Decimal, error) {
	ccSymbol := resolveCryptoCompareSymbol(symbol)
	if ccSymbol == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("fsym", ccSymbol)
	q.Set("tsym", "USD")
	q.Set("limit", "1")
	q.Set("toTs", strconv.FormatInt(targetTS, 10))
	if p.APIKey != "" {
		q.Set("api_key", p.APIKey)
	}
	endpoint := fmt.Sprintf("%s/data/v2/histohour?%s", p.BaseURL, q.Encode())

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if p.Limiter != nil {
			if werr := p.Limiter.Wait(ctx); werr != nil {
				return nil, werr
			}
		}
		var resp cryptoCompareHistoResponse
		err := netutil.GetJSON(ctx, endpoint, &resp)
		if err == nil {
			points := resp.Data.Data
			if len(points) == 0 {
				return nil, nil
			}
			closePrice := points[len(points)-1].Close
			if closePrice <= 0 {
				return nil, nil
			}
			dec := decimal.NewFromFloat(closePrice)
			return &dec, nil
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
