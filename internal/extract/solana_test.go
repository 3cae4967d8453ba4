package extract

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSolanaTransfersNativePairing covers three accounts: alice sends 600,
// fee_payer sends 5, bob receives 600. Per the unreduced cross-product
// algorithm every sender is paired against every receiver, so both alice
// and fee_payer independently pair against bob (there is only one
// receiver here) rather than alice's transfer depleting bob's delta
// before fee_payer is considered.
func TestSolanaTransfersNativePairing(t *testing.T) {
	tx := SolanaTx{
		AccountKeys:  []string{"alice", "bob", "fee_payer"},
		PreBalances:  []*big.Int{big.NewInt(1000), big.NewInt(500), big.NewInt(2000)},
		PostBalances: []*big.Int{big.NewInt(400), big.NewInt(1100), big.NewInt(1995)},
	}
	transfers := SolanaTransfers(tx)
	require.Len(t, transfers, 2)
	for _, tr := range transfers {
		assert.Equal(t, "bob", tr.To)
		assert.Nil(t, tr.TokenAddress)
	}

	byFrom := map[string]int64{}
	for _, tr := range transfers {
		byFrom[tr.From] = tr.ValueUnits.Int64()
	}
	assert.Equal(t, int64(600), byFrom["alice"])
	assert.Equal(t, int64(5), byFrom["fee_payer"])

	total := big.NewInt(0)
	for _, tr := range transfers {
		total.Add(total, tr.ValueUnits)
	}
	assert.Equal(t, int64(605), total.Int64())
}

func TestSolanaTransfersSPLUsesTokenInfoSymbolOrMintPrefix(t *testing.T) {
	tx := SolanaTx{
		PreTokenBalances: []SolanaTokenBalance{
			{AccountIndex: 0, Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Owner: "alice", Amount: big.NewInt(1000), Decimals: 6, Symbol: "USDC"},
		},
		PostTokenBalances: []SolanaTokenBalance{
			{AccountIndex: 0, Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Owner: "alice", Amount: big.NewInt(400), Decimals: 6, Symbol: "USDC"},
			{AccountIndex: 1, Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Owner: "bob", Amount: big.NewInt(600), Decimals: 6, Symbol: "USDC"},
		},
	}
	transfers := SolanaTransfers(tx)
	require.Len(t, transfers, 1)
	assert.Equal(t, "USDC", transfers[0].Symbol)
	assert.Equal(t, "alice", transfers[0].From)
	assert.Equal(t, "bob", transfers[0].To)
	assert.Equal(t, int64(600), transfers[0].ValueUnits.Int64())
}

func TestShortMintFallback(t *testing.T) {
	assert.Equal(t, "Es9vMFrz", shortMint("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"))
	assert.Equal(t, "abc", shortMint("abc"))
}
