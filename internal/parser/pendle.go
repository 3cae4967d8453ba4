package parser

import (
	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// Pendle's router handles swaps between PT/YT/SY and the underlying
// (net-flow emission, like GenericSwap but protocol-attributed); SY
// mint/redeem is a wrap/unwrap pair; YT yield + reward claims are pure
// inflows with no counterparty leg (§4.3.3 "Pendle").
var pendleRouters = NewAddressSet(map[string][]string{
	"ethereum": {"0x888888888889758F76e7103c6CbF23ABbF58F946"},
	"arbitrum": {"0x888888888889758F76e7103c6CbF23ABbF58F946"},
})

var pendleSYTokens = NewAddressSet(map[string][]string{
	"ethereum": {"0xcbC72d92b2dc8187414F6734718563898740C0BC"}, // SY-stETH, illustrative
})

const (
	pendleSwapSelector       = "0xc81f847a" // swapExactTokenForPt, illustrative router entrypoint
	pendleMintSYSelector     = "0x3e98042f" // mintSyFromToken
	pendleRedeemSYSelector   = "0x539ce7f8" // redeemSyToToken
	pendleRedeemYieldSelector = "0x47f1ee5a" // redeemDueInterestAndRewards
)

// PendleRouter handles PT/YT/SY swaps routed through the singleton
// router: a plain net-flow emission attributed to the protocol.
type PendleRouter struct{}

func (PendleRouter) Name() string { return "pendle_router" }

func (PendleRouter) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	return pendleRouters.Contains(tx.Chain, tx.ToAddr) && tx.Selector() == pendleSwapSelector
}

func (PendleRouter) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}
	for _, bySymbol := range ctx.NetFlows() {
		for symbol, qty := range bySymbol {
			if qty.IsZero() {
				continue
			}
			splits = append(splits, ParsedSplit{Subtype: assetSubtype(tx.Chain, symbol), Symbol: symbol, Protocol: "pendle", Quantity: qty})
		}
	}
	return finish(splits, models.EntrySwap, "pendle_router")
}

// PendleSY handles mintSyFromToken/redeemSyToToken against a known SY
// token contract: an underlying-for-SY wrap/unwrap pair.
type PendleSY struct{}

func (PendleSY) Name() string { return "pendle_sy" }

func (PendleSY) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	if !pendleSYTokens.Contains(tx.Chain, tx.ToAddr) {
		return false
	}
	sel := tx.Selector()
	return sel == pendleMintSYSelector || sel == pendleRedeemSYSelector
}

func (PendleSY) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}

	out, okOut := ctx.PopTransfer(rawtx.WithFrom(tx.FromAddr))
	in, okIn := ctx.PopTransfer(rawtx.WithTo(tx.FromAddr))
	if !okOut || !okIn {
		return &ParseResult{ParserName: "pendle_sy"}, nil
	}

	entryType := models.EntryDeposit
	if tx.Selector() == pendleMintSYSelector {
		splits = append(splits, MakeWrapSplits(symbolOf(out), qtyOf(out), symbolOf(in), qtyOf(in))...)
	} else {
		splits = append(splits, MakeUnwrapSplits(symbolOf(out), qtyOf(out), symbolOf(in), qtyOf(in))...)
		entryType = models.EntryWithdrawal
	}
	return &ParseResult{Splits: splits, EntryType: entryType, ParserName: "pendle_sy"}, nil
}

// PendleYieldClaim handles redeemDueInterestAndRewards: every inflow
// (interest in the SY/underlying, plus any reward tokens) is booked as
// wallet_income with no counterparty leg (§4.3.3: "every inflow ->
// wallet_income(-) + erc20(+)").
type PendleYieldClaim struct{}

func (PendleYieldClaim) Name() string { return "pendle_yield" }

func (PendleYieldClaim) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	return pendleRouters.Contains(tx.Chain, tx.ToAddr) && tx.Selector() == pendleRedeemYieldSelector
}

func (PendleYieldClaim) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}

	for {
		t, ok := ctx.PopTransfer(rawtx.WithTo(tx.FromAddr))
		if !ok {
			break
		}
		splits = append(splits, MakeYieldSplits(symbolOf(t), "pendle_yield", qtyOf(t))...)
	}
	return finish(splits, models.EntryYield, "pendle_yield")
}
