package parser

import (
	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// Morpho Blue is a single singleton contract per chain; markets are
// identified by the MarketParams passed in the call, not by contract
// address, so every supply/withdraw/borrow/repay/collateral call goes
// through the same address (§4.3.3 "Morpho-Blue").
var morphoBlue = NewAddressSet(map[string][]string{
	"ethereum": {"0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb"},
	"base":     {"0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb"},
})

const (
	morphoSupplySelector             = "0xa99aad89"
	morphoWithdrawSelector           = "0x5c2bea49"
	morphoBorrowSelector             = "0x50d8cd4b"
	morphoRepaySelector              = "0x20b76e81"
	morphoSupplyCollateralSelector   = "0x238c0d0b"
	morphoWithdrawCollateralSelector = "0x8720316d"
)

// MorphoBlue handles the singleton's six position-affecting entrypoints.
// Same transfer-consumption shape as AaveV3: one underlying-token leg,
// the protocol_asset/protocol_debt leg never appears as a transfer (Morpho
// tracks positions in internal storage, not a minted receipt token) so it
// is synthesized directly rather than consumed from ctx.
type MorphoBlue struct{}

func (MorphoBlue) Name() string { return "morpho_blue" }

func (MorphoBlue) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	if !morphoBlue.Contains(tx.Chain, tx.ToAddr) {
		return false
	}
	switch tx.Selector() {
	case morphoSupplySelector, morphoWithdrawSelector, morphoBorrowSelector,
		morphoRepaySelector, morphoSupplyCollateralSelector, morphoWithdrawCollateralSelector:
		return true
	}
	return false
}

func (MorphoBlue) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}

	var entryType models.EntryType
	switch tx.Selector() {
	case morphoSupplySelector, morphoSupplyCollateralSelector:
		t, ok := ctx.PopTransfer(rawtx.WithFrom(tx.FromAddr), rawtx.WithTo(tx.ToAddr))
		if !ok {
			return &ParseResult{ParserName: "morpho_blue"}, nil
		}
		splits = append(splits, MakeDepositSplits("morpho_blue", symbolOf(t), qtyOf(t))...)
		entryType = models.EntryDeposit

	case morphoWithdrawSelector, morphoWithdrawCollateralSelector:
		t, ok := ctx.PopTransfer(rawtx.WithTo(tx.FromAddr))
		if !ok {
			return &ParseResult{ParserName: "morpho_blue"}, nil
		}
		splits = append(splits, MakeWithdrawalSplits("morpho_blue", symbolOf(t), qtyOf(t))...)
		entryType = models.EntryWithdrawal

	case morphoBorrowSelector:
		t, ok := ctx.PopTransfer(rawtx.WithTo(tx.FromAddr))
		if !ok {
			return &ParseResult{ParserName: "morpho_blue"}, nil
		}
		splits = append(splits, MakeBorrowSplits("morpho_blue", symbolOf(t), qtyOf(t))...)
		entryType = models.EntryBorrow

	case morphoRepaySelector:
		t, ok := ctx.PopTransfer(rawtx.WithFrom(tx.FromAddr), rawtx.WithTo(tx.ToAddr))
		if !ok {
			return &ParseResult{ParserName: "morpho_blue"}, nil
		}
		splits = append(splits, MakeRepaySplits("morpho_blue", symbolOf(t), qtyOf(t))...)
		entryType = models.EntryRepay

	default:
		return &ParseResult{ParserName: "morpho_blue"}, nil
	}

	return &ParseResult{Splits: splits, EntryType: entryType, ParserName: "morpho_blue"}, nil
}

// MetaMorpho vaults are ERC-4626 wrappers around one or more Morpho Blue
// markets; deposit/withdraw mint/burn vault shares which this parser
// treats as the protocol_asset position (§4.3.3 "MetaMorpho").
var metaMorphoVaults = NewAddressSet(map[string][]string{
	"ethereum": {
		"0xBEeFFF209270748ddd194831b3fa287a5386f5bC", // Steakhouse USDC
		"0x186514400e52270cef3D80e1c6F8d10A75d47344", // Gauntlet WETH
	},
	"base": {"0xc1256Ae5FF1cf2719D4937adb3bbCCab2E00A2Ca"},
})

const (
	erc4626DepositSelector = "0x6e553f65" // deposit(uint256,address)
	erc4626MintSelector    = "0x94bf804d" // mint(uint256,address)
	erc4626WithdrawSelector = "0xb460af94" // withdraw(uint256,address,address)
	erc4626RedeemSelector   = "0xba087652" // redeem(uint256,address,address)
)

// MetaMorpho handles the standard ERC-4626 deposit/mint/withdraw/redeem
// entrypoints against a known vault address.
type MetaMorpho struct{}

func (MetaMorpho) Name() string { return "metamorpho" }

func (MetaMorpho) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	if !metaMorphoVaults.Contains(tx.Chain, tx.ToAddr) {
		return false
	}
	switch tx.Selector() {
	case erc4626DepositSelector, erc4626MintSelector, erc4626WithdrawSelector, erc4626RedeemSelector:
		return true
	}
	return false
}

func (MetaMorpho) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}

	var entryType models.EntryType
	switch tx.Selector() {
	case erc4626DepositSelector, erc4626MintSelector:
		t, ok := ctx.PopTransfer(rawtx.WithFrom(tx.FromAddr), rawtx.WithTo(tx.ToAddr))
		if !ok {
			return &ParseResult{ParserName: "metamorpho"}, nil
		}
		// The vault-share mint transfer (shares arrive at the depositor)
		// is consumed but not re-emitted: the share position is carried
		// as protocol_asset rather than a second erc20_token leg.
		ctx.PopTransfer(rawtx.WithTo(tx.FromAddr))
		splits = append(splits, MakeDepositSplits("metamorpho", symbolOf(t), qtyOf(t))...)
		entryType = models.EntryDeposit

	case erc4626WithdrawSelector, erc4626RedeemSelector:
		t, ok := ctx.PopTransfer(rawtx.WithTo(tx.FromAddr))
		if !ok {
			return &ParseResult{ParserName: "metamorpho"}, nil
		}
		ctx.PopTransfer(rawtx.WithFrom(tx.FromAddr), rawtx.WithTo(tx.ToAddr)) // share burn
		splits = append(splits, MakeWithdrawalSplits("metamorpho", symbolOf(t), qtyOf(t))...)
		entryType = models.EntryWithdrawal

	default:
		return &ParseResult{ParserName: "metamorpho"}, nil
	}

	return &ParseResult{Splits: splits, EntryType: entryType, ParserName: "metamorpho"}, nil
}
