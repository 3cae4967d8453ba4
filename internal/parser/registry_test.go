package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

type stubParser struct {
	name    string
	matches bool
	splits  []ParsedSplit
}

func (s stubParser) Name() string { return s.name }
func (s stubParser) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool { return s.matches }
func (s stubParser) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	return &ParseResult{Splits: s.splits, EntryType: models.EntryTransfer, ParserName: s.name}, nil
}

func TestRegistryGetPrefersAddressSpecificOverFallback(t *testing.T) {
	r := NewRegistry()
	specific := stubParser{name: "specific"}
	fallback := stubParser{name: "fallback"}
	r.RegisterProtocol("ethereum", "0xPool", specific)
	r.SetFallback(fallback)

	parsers := r.Get("ethereum", "0xPool")
	require.Len(t, parsers, 2)
	assert.Equal(t, "specific", parsers[0].Name())
	assert.Equal(t, "fallback", parsers[1].Name())
}

func TestRegistryGetFallsBackToGenericChainWhenAddressUnknown(t *testing.T) {
	r := NewRegistry()
	fallback := stubParser{name: "fallback"}
	r.SetFallback(fallback)

	parsers := r.Get("ethereum", "0xSomeOtherAddress")
	require.Len(t, parsers, 1)
	assert.Equal(t, "fallback", parsers[0].Name())
}

func TestRegistryGetWithChainParsersNeverFallsThroughToGeneric(t *testing.T) {
	r := NewRegistry()
	cex := stubParser{name: "binance_trade"}
	genericFallback := stubParser{name: "generic_evm"}
	r.SetFallback(genericFallback)
	r.RegisterChainParsers("binance", cex)

	parsers := r.Get("binance", "")
	require.Len(t, parsers, 1)
	assert.Equal(t, "binance_trade", parsers[0].Name())
}

func TestRegistryAttemptShortCircuitsOnFirstMatch(t *testing.T) {
	r := NewRegistry()
	noMatch := stubParser{name: "no_match", matches: false}
	firstMatch := stubParser{name: "first_match", matches: true, splits: []ParsedSplit{{Symbol: "ETH"}}}
	neverReached := stubParser{name: "never_reached", matches: true, splits: []ParsedSplit{{Symbol: "USDC"}}}
	r.SetFallback(noMatch, firstMatch, neverReached)

	tx := &models.Transaction{Chain: "ethereum", ToAddr: "0xdead"}
	ctx := rawtx.NewContext(nil, nil, nil)

	res, attempted, err := r.Attempt(tx, ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "first_match", res.ParserName)
	assert.Equal(t, []string{"no_match", "first_match"}, attempted)
}

// TestRegistryAttemptStopsOnFirstMatchEvenWithEmptySplits asserts the
// §4.3.3 short-circuit: once a parser's CanParse returns true, its result
// is final, even if Splits comes back empty. A later parser that would
// have produced real splits is never consulted.
func TestRegistryAttemptStopsOnFirstMatchEvenWithEmptySplits(t *testing.T) {
	r := NewRegistry()
	emptyResult := stubParser{name: "empty", matches: true, splits: nil}
	neverReached := stubParser{name: "never_reached", matches: true, splits: []ParsedSplit{{Symbol: "ETH"}}}
	r.SetFallback(emptyResult, neverReached)

	tx := &models.Transaction{Chain: "ethereum", ToAddr: "0xdead"}
	ctx := rawtx.NewContext(nil, nil, nil)

	res, attempted, err := r.Attempt(tx, ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "empty", res.ParserName)
	assert.Empty(t, res.Splits)
	assert.Equal(t, []string{"empty"}, attempted)
}

func TestRegistryAttemptReturnsNilWhenNoParserMatches(t *testing.T) {
	r := NewRegistry()
	r.SetFallback(stubParser{name: "a", matches: false}, stubParser{name: "b", matches: false})

	tx := &models.Transaction{Chain: "ethereum", ToAddr: "0xdead"}
	ctx := rawtx.NewContext(nil, nil, nil)

	res, attempted, err := r.Attempt(tx, ctx)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, []string{"a", "b"}, attempted)
}
