package parser

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotax/internal/models"
)

func u64(v uint64) *uint64 { return &v }

// TestGasFeeMatchesScenarioS4 is spec §8 S4: value=0, gasUsed=46000,
// gasPrice=20_000_000_000 wei -> 0.00092 ETH.
func TestGasFeeMatchesScenarioS4(t *testing.T) {
	tx := &models.Transaction{
		Chain:    "ethereum",
		GasUsed:  u64(46000),
		GasPrice: u64(20_000_000_000),
	}

	fee, paid := GasFee(tx, "ethereum")
	require.True(t, paid)
	assert.True(t, fee.Equal(decimal.RequireFromString("0.00092")), "got %s", fee.String())
}

func TestGasFeeAddsL1FeeForL2Chains(t *testing.T) {
	tx := &models.Transaction{
		Chain:    "base",
		GasUsed:  u64(21000),
		GasPrice: u64(1_000_000_000),
		L1Fee:    u64(1_000_000_000_000),
	}

	fee, paid := GasFee(tx, "base")
	require.True(t, paid)
	// 21000 * 1e9 + 1e12 = 22000000000000 + ... wei -> 0.000021 + 0.000001 = 0.000022 ETH
	assert.True(t, fee.Equal(decimal.RequireFromString("0.000022")), "got %s", fee.String())
}

func TestGasFeeNoGasUsedReturnsFalse(t *testing.T) {
	tx := &models.Transaction{Chain: "ethereum"}
	_, paid := GasFee(tx, "ethereum")
	assert.False(t, paid)
}

func TestGasFeeSolanaUsesGasUsedDirectlyAsLamportFee(t *testing.T) {
	tx := &models.Transaction{Chain: "solana", GasUsed: u64(5000)}
	fee, paid := GasFee(tx, "solana")
	require.True(t, paid)
	assert.True(t, fee.Equal(decimal.RequireFromString("0.000005")))
}

func TestMakeGasSplitsBalancesToZero(t *testing.T) {
	tx := &models.Transaction{
		Chain:    "ethereum",
		GasUsed:  u64(46000),
		GasPrice: u64(20_000_000_000),
	}

	splits, paid := MakeGasSplits(tx, "ethereum")
	require.True(t, paid)
	require.Len(t, splits, 2)

	sum := decimal.Zero
	for _, s := range splits {
		sum = sum.Add(s.Quantity)
	}
	assert.True(t, sum.IsZero())
	assert.Equal(t, models.SubtypeNativeAsset, splits[0].Subtype)
	assert.True(t, splits[0].Quantity.IsNegative())
	assert.Equal(t, models.SubtypeWalletExpense, splits[1].Subtype)
	assert.True(t, splits[1].Quantity.IsPositive())
	assert.Equal(t, "ETH", splits[0].Symbol)
}
