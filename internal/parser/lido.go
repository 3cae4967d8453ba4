package parser

import (
	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// Lido stETH contract also serves as the staking entrypoint: submit(address)
// stakes native ETH for stETH. wstETH wraps/unwraps rebasing stETH into a
// fixed-balance ERC20 at the current exchange rate (§4.3.3 "Lido").
var lidoStETH = NewAddressSet(map[string][]string{
	"ethereum": {"0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84"},
})

var lidoWstETH = NewAddressSet(map[string][]string{
	"ethereum": {"0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0"},
})

const (
	lidoSubmitSelector = "0xa1903eab" // submit(address)
	lidoWrapSelector   = "0xea598cb0" // wrap(uint256)
	lidoUnwrapSelector = "0xde0e9a3e" // unwrap(uint256)
)

// LidoStake handles submit(): native ETH leaves the wallet, stETH arrives.
type LidoStake struct{}

func (LidoStake) Name() string { return "lido_stake" }

func (LidoStake) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	return lidoStETH.Contains(tx.Chain, tx.ToAddr) && tx.Selector() == lidoSubmitSelector
}

func (LidoStake) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}

	nativeSym := NativeSymbols[tx.Chain]
	t, ok := ctx.PopTransfer(rawtx.WithTo(tx.FromAddr))
	if !ok {
		return &ParseResult{ParserName: "lido_stake"}, nil
	}
	splits = append(splits,
		ParsedSplit{Subtype: models.SubtypeNativeAsset, Symbol: nativeSym, Quantity: qtyOf(t).Neg()},
		ParsedSplit{Subtype: models.SubtypeProtocolAsset, Symbol: nativeSym, Protocol: "lido", Quantity: qtyOf(t)},
	)
	return &ParseResult{Splits: splits, EntryType: models.EntryDeposit, ParserName: "lido_stake"}, nil
}

// LidoWrap handles wstETH's wrap/unwrap: a plain ERC20-for-ERC20 pair,
// since wstETH's exchange rate makes its qty differ from the stETH leg
// actually consumed (§4.3.3: "pair of erc20(-)/erc20(+)").
type LidoWrap struct{}

func (LidoWrap) Name() string { return "lido_wrap" }

func (LidoWrap) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	if !lidoWstETH.Contains(tx.Chain, tx.ToAddr) {
		return false
	}
	sel := tx.Selector()
	return sel == lidoWrapSelector || sel == lidoUnwrapSelector
}

func (LidoWrap) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}

	out, okOut := ctx.PopTransfer(rawtx.WithFrom(tx.FromAddr), rawtx.WithTo(tx.ToAddr))
	in, okIn := ctx.PopTransfer(rawtx.WithTo(tx.FromAddr))
	if !okOut || !okIn {
		return &ParseResult{ParserName: "lido_wrap"}, nil
	}
	splits = append(splits, MakeWrapSplits(symbolOf(out), qtyOf(out), symbolOf(in), qtyOf(in))...)

	entryType := models.EntrySwap
	if tx.Selector() == lidoWrapSelector {
		entryType = models.EntryDeposit
	} else {
		entryType = models.EntryWithdrawal
	}
	return &ParseResult{Splits: splits, EntryType: entryType, ParserName: "lido_wrap"}, nil
}
