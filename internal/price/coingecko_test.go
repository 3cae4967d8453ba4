package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinGeckoFetchPriceStablecoinShortCircuit(t *testing.T) {
	p := NewCoinGecko("http://unused.invalid", "")
	price, err := p.FetchPrice(context.Background(), "usdc", 1700000000)
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.NewFromInt(1)))
}

func TestCoinGeckoFetchPriceUnresolvableSymbolReturnsNil(t *testing.T) {
	p := NewCoinGecko("http://unused.invalid", "")
	price, err := p.FetchPrice(context.Background(), "NOT_A_TOKEN", 1700000000)
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestCoinGeckoFetchPriceClosestDatapoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":[[1700000000000,1900.0],[1700003600000,2000.0],[1699996400000,1800.0]]}`))
	}))
	defer srv.Close()

	p := NewCoinGecko(srv.URL, "")
	price, err := p.FetchPrice(context.Background(), "ETH", 1700000000)
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.NewFromFloat(1900.0)))
}

func TestCoinGeckoFetchPriceNonRateLimitErrorGivesUpImmediately(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewCoinGecko(srv.URL, "")
	price, err := p.FetchPrice(context.Background(), "ETH", 1700000000)
	require.NoError(t, err)
	assert.Nil(t, price)
	assert.Equal(t, 1, calls)
}
