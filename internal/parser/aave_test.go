package parser

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// TestAaveV3SupplyMatchesScenarioS5 is spec §8 S5: a supply() call with
// selector 0x617ba037 against the Aave V3 pool consumes the USDC->pool
// transfer and the aUSDC mint, and emits erc20_token(-1000)/
// protocol_asset(+1000).
func TestAaveV3SupplyMatchesScenarioS5(t *testing.T) {
	pool := "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"
	usdc := "0xusdc"
	ausdc := "0xausdc"
	transfers := []rawtx.RawTransfer{
		{From: "0xwallet", To: pool, TokenAddress: &usdc, ValueUnits: big.NewInt(1000_000000), Decimals: 6, Symbol: "USDC", Kind: models.TransferERC20},
		{From: pool, To: "0xwallet", TokenAddress: &ausdc, ValueUnits: big.NewInt(1000_000000), Decimals: 6, Symbol: "aUSDC", Kind: models.TransferERC20},
	}
	tx := &models.Transaction{
		Chain:     "ethereum",
		FromAddr:  "0xwallet",
		ToAddr:    pool,
		InputData: "0x617ba037000000000000000000000000000000000000000000000000000000000000",
	}
	ctx := rawtx.NewContext(transfers, nil, map[string]bool{"0xwallet": true})

	require.True(t, AaveV3{}.CanParse(tx, ctx))
	res, err := AaveV3{}.Parse(tx, ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, models.EntryDeposit, res.EntryType)

	var sawUSDC, sawAsset bool
	for _, s := range res.Splits {
		switch s.Subtype {
		case models.SubtypeERC20Token:
			if s.Symbol == "USDC" {
				sawUSDC = true
				assert.True(t, s.Quantity.Equal(decimal.NewFromInt(-1000)))
			}
		case models.SubtypeProtocolAsset:
			sawAsset = true
			assert.Equal(t, "aave_v3", s.Protocol)
			assert.Equal(t, "USDC", s.Symbol)
			assert.True(t, s.Quantity.Equal(decimal.NewFromInt(1000)))
		}
	}
	assert.True(t, sawUSDC, "expected erc20_token:USDC(-1000) split")
	assert.True(t, sawAsset, "expected protocol_asset:aave_v3:USDC(+1000) split")

	// the aUSDC mint must be consumed, not re-emitted as a third split.
	for _, s := range res.Splits {
		assert.NotEqual(t, "aUSDC", s.Symbol)
	}
	assert.Empty(t, ctx.RemainingTransfers())
}

func TestAaveV3CanParseFalseForUnknownSelector(t *testing.T) {
	pool := "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"
	tx := &models.Transaction{Chain: "ethereum", ToAddr: pool, InputData: "0xdeadbeef"}
	ctx := rawtx.NewContext(nil, nil, nil)
	assert.False(t, AaveV3{}.CanParse(tx, ctx))
}

func TestAaveV3CanParseFalseForUnknownPool(t *testing.T) {
	tx := &models.Transaction{Chain: "ethereum", ToAddr: "0xnotapool", InputData: "0x617ba037"}
	ctx := rawtx.NewContext(nil, nil, nil)
	assert.False(t, AaveV3{}.CanParse(tx, ctx))
}

func TestAaveV3SupplyReturnsEmptySplitsWhenTransferMissing(t *testing.T) {
	pool := "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"
	tx := &models.Transaction{Chain: "ethereum", FromAddr: "0xwallet", ToAddr: pool, InputData: "0x617ba037"}
	ctx := rawtx.NewContext(nil, nil, map[string]bool{"0xwallet": true})

	res, err := AaveV3{}.Parse(tx, ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Empty(t, res.Splits, "a required transfer being absent falls through with no splits, per §4.3.3 consumption rule")
}

