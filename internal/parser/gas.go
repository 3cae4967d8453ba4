package parser

import (
	"math/big"

	"github.com/shopspring/decimal"

	"cryptotax/internal/models"
)

// NativeSymbols maps a configured chain name to its native gas-fee symbol
// (§4.3.4).
var NativeSymbols = map[string]string{
	"ethereum": "ETH",
	"arbitrum": "ETH",
	"optimism": "ETH",
	"base":     "ETH",
	"bsc":      "BNB",
	"polygon":  "MATIC",
	"solana":   "SOL",
}

// nativeDecimals is the smallest-unit exponent for each chain's native
// asset: 18 for EVM chains (wei), 9 for Solana (lamports).
var nativeDecimals = map[string]int32{
	"ethereum": 18,
	"arbitrum": 18,
	"optimism": 18,
	"base":     18,
	"bsc":      18,
	"polygon":  18,
	"solana":   9,
}

// GasFee computes the native-asset gas fee paid by tx, in decimal units
// (not smallest units), and whether any gas was paid at all. EVM:
// gas_used * gas_price + l1_fee?. Solana: tx.GasUsed already holds
// meta.fee in lamports (the loader stores it there uniformly).
func GasFee(tx *models.Transaction, chain string) (decimal.Decimal, bool) {
	if tx.GasUsed == nil {
		return decimal.Zero, false
	}
	decimals, ok := nativeDecimals[chain]
	if !ok {
		decimals = 18
	}

	var feeUnits *big.Int
	if tx.GasPrice != nil {
		feeUnits = new(big.Int).Mul(
			new(big.Int).SetUint64(*tx.GasUsed),
			new(big.Int).SetUint64(*tx.GasPrice),
		)
		if tx.L1Fee != nil {
			feeUnits = new(big.Int).Add(feeUnits, new(big.Int).SetUint64(*tx.L1Fee))
		}
	} else {
		// Solana: GasUsed already holds the fee in lamports directly.
		feeUnits = new(big.Int).SetUint64(*tx.GasUsed)
	}

	if feeUnits.Sign() == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(feeUnits, -decimals), true
}

// MakeGasSplits returns the balanced native_asset(-fee)/wallet_expense(+fee)
// pair for any on-chain tx whose sender is a wallet of interest. These
// splits balance on their own and do not participate in the MULTI_SYMBOL
// exemption.
func MakeGasSplits(tx *models.Transaction, chain string) ([]ParsedSplit, bool) {
	fee, paid := GasFee(tx, chain)
	if !paid {
		return nil, false
	}
	symbol := NativeSymbols[chain]
	if symbol == "" {
		symbol = "NATIVE"
	}
	return []ParsedSplit{
		{Subtype: models.SubtypeNativeAsset, Symbol: symbol, Quantity: fee.Neg()},
		{Subtype: models.SubtypeWalletExpense, Symbol: symbol, Quantity: fee},
	}, true
}
