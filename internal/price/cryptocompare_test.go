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

func TestCryptoCompareFetchPriceUsesLastDataPoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Data":{"Data":[{"close":1890.5},{"close":1901.2}]}}`))
	}))
	defer srv.Close()

	p := NewCryptoCompare(srv.URL, "")
	price, err := p.FetchPrice(context.Background(), "ETH", 1700000000)
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.NewFromFloat(1901.2)))
}

func TestCryptoCompareFetchPriceZeroCloseIsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Data":{"Data":[{"close":0}]}}`))
	}))
	defer srv.Close()

	p := NewCryptoCompare(srv.URL, "")
	price, err := p.FetchPrice(context.Background(), "ETH", 1700000000)
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestCryptoCompareFetchPriceUnresolvableDebtSymbol(t *testing.T) {
	p := NewCryptoCompare("http://unused.invalid", "")
	price, err := p.FetchPrice(context.Background(), "variableDebtUSDC", 1700000000)
	require.NoError(t, err)
	assert.Nil(t, price)
}
