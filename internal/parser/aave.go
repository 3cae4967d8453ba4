package parser

import (
	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// Aave V3 Pool contract addresses, one per supported chain.
var aaveV3Pools = NewAddressSet(map[string][]string{
	"ethereum": {"0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"},
	"arbitrum": {"0x794a61358D6845594F94dc1DB02A252b5b4814aD"},
	"polygon":  {"0x794a61358D6845594F94dc1DB02A252b5b4814aD"},
	"optimism": {"0x794a61358D6845594F94dc1DB02A252b5b4814aD"},
})

const (
	aaveSupplySelector   = "0x617ba037"
	aaveWithdrawSelector = "0x69328dec"
	aaveBorrowSelector   = "0xa415bcad"
	aaveRepaySelector    = "0x573ade81"
)

// AaveV3 handles supply/withdraw/borrow/repay against the Aave V3 Pool
// (§4.3.3). It consumes the underlying-token transfer it accounts for;
// supply also consumes the aToken mint to the sender, where present.
// Withdraw, borrow and repay leave aToken/debtToken transfers in place.
type AaveV3 struct{}

func (AaveV3) Name() string { return "aave_v3" }

func (AaveV3) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	if !aaveV3Pools.Contains(tx.Chain, tx.ToAddr) {
		return false
	}
	switch tx.Selector() {
	case aaveSupplySelector, aaveWithdrawSelector, aaveBorrowSelector, aaveRepaySelector:
		return true
	}
	return false
}

func (AaveV3) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}

	var entryType models.EntryType
	switch tx.Selector() {
	case aaveSupplySelector:
		t, ok := ctx.PopTransfer(rawtx.WithFrom(tx.FromAddr), rawtx.WithTo(tx.ToAddr))
		if !ok {
			return &ParseResult{ParserName: "aave_v3"}, nil
		}
		ctx.PopTransfer(rawtx.WithTo(tx.FromAddr)) // consume the aToken mint, if present
		splits = append(splits, MakeDepositSplits("aave_v3", symbolOf(t), qtyOf(t))...)
		entryType = models.EntryDeposit

	case aaveWithdrawSelector:
		t, ok := ctx.PopTransfer(rawtx.WithTo(tx.FromAddr))
		if !ok {
			return &ParseResult{ParserName: "aave_v3"}, nil
		}
		splits = append(splits, MakeWithdrawalSplits("aave_v3", symbolOf(t), qtyOf(t))...)
		entryType = models.EntryWithdrawal

	case aaveBorrowSelector:
		t, ok := ctx.PopTransfer(rawtx.WithTo(tx.FromAddr))
		if !ok {
			return &ParseResult{ParserName: "aave_v3"}, nil
		}
		splits = append(splits, MakeBorrowSplits("aave_v3", symbolOf(t), qtyOf(t))...)
		entryType = models.EntryBorrow

	case aaveRepaySelector:
		t, ok := ctx.PopTransfer(rawtx.WithFrom(tx.FromAddr), rawtx.WithTo(tx.ToAddr))
		if !ok {
			return &ParseResult{ParserName: "aave_v3"}, nil
		}
		splits = append(splits, MakeRepaySplits("aave_v3", symbolOf(t), qtyOf(t))...)
		entryType = models.EntryRepay

	default:
		return &ParseResult{ParserName: "aave_v3"}, nil
	}

	return &ParseResult{Splits: splits, EntryType: entryType, ParserName: "aave_v3"}, nil
}
