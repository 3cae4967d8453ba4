package parser

import (
	"github.com/shopspring/decimal"

	"cryptotax/internal/models"
)

// MakeDepositSplits is the shared shape for "underlying leaves the wallet,
// a protocol-asset receipt position appears" (Aave/Morpho supply,
// MetaMorpho ERC-4626 deposit, §4.3.3).
func MakeDepositSplits(protocol, symbol string, qty decimal.Decimal) []ParsedSplit {
	return []ParsedSplit{
		{Subtype: models.SubtypeERC20Token, Symbol: symbol, Quantity: qty.Neg()},
		{Subtype: models.SubtypeProtocolAsset, Symbol: symbol, Protocol: protocol, Quantity: qty},
	}
}

// MakeWithdrawalSplits is the inverse of MakeDepositSplits.
func MakeWithdrawalSplits(protocol, symbol string, qty decimal.Decimal) []ParsedSplit {
	return []ParsedSplit{
		{Subtype: models.SubtypeProtocolAsset, Symbol: symbol, Protocol: protocol, Quantity: qty.Neg()},
		{Subtype: models.SubtypeERC20Token, Symbol: symbol, Quantity: qty},
	}
}

// MakeBorrowSplits: a protocol_debt liability grows, underlying arrives.
func MakeBorrowSplits(protocol, symbol string, qty decimal.Decimal) []ParsedSplit {
	return []ParsedSplit{
		{Subtype: models.SubtypeProtocolDebt, Symbol: symbol, Protocol: protocol, Quantity: qty.Neg()},
		{Subtype: models.SubtypeERC20Token, Symbol: symbol, Quantity: qty},
	}
}

// MakeRepaySplits: underlying leaves, protocol_debt liability shrinks.
func MakeRepaySplits(protocol, symbol string, qty decimal.Decimal) []ParsedSplit {
	return []ParsedSplit{
		{Subtype: models.SubtypeERC20Token, Symbol: symbol, Quantity: qty.Neg()},
		{Subtype: models.SubtypeProtocolDebt, Symbol: symbol, Protocol: protocol, Quantity: qty},
	}
}

// MakeYieldSplits: an inflow attributed to income rather than a trade
// counterparty (Pendle interest/rewards claim, Binance funding/PNL/reward
// rows).
func MakeYieldSplits(symbol, tag string, qty decimal.Decimal) []ParsedSplit {
	return []ParsedSplit{
		{Subtype: models.SubtypeWalletIncome, Symbol: symbol, IncomeTag: tag, Quantity: qty.Neg()},
		{Subtype: models.SubtypeERC20Token, Symbol: symbol, Quantity: qty},
	}
}

// MakeWrapSplits: fromSymbol leaves, toSymbol arrives, both erc20_token
// legs (Lido wrap, Pendle SY mint).
func MakeWrapSplits(fromSymbol string, fromQty decimal.Decimal, toSymbol string, toQty decimal.Decimal) []ParsedSplit {
	return []ParsedSplit{
		{Subtype: models.SubtypeERC20Token, Symbol: fromSymbol, Quantity: fromQty.Neg()},
		{Subtype: models.SubtypeERC20Token, Symbol: toSymbol, Quantity: toQty},
	}
}

// MakeUnwrapSplits is the inverse of MakeWrapSplits.
func MakeUnwrapSplits(fromSymbol string, fromQty decimal.Decimal, toSymbol string, toQty decimal.Decimal) []ParsedSplit {
	return []ParsedSplit{
		{Subtype: models.SubtypeERC20Token, Symbol: fromSymbol, Quantity: fromQty.Neg()},
		{Subtype: models.SubtypeERC20Token, Symbol: toSymbol, Quantity: toQty},
	}
}
