package parser

import (
	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

var curvePools = NewAddressSet(map[string][]string{
	"ethereum": {
		"0xDC24316b9AE028F1497c275EB9192a3Ea0f67022", // stETH pool
		"0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7", // 3pool
	},
	"arbitrum": {"0x7f90122BF0700F9E7e1F688fe926940E8839F353"},
	"polygon":  {"0x445FE580eF8d70FF569aB36e80c647af338db351"},
})

const (
	curveExchangeSelector           = "0x3df02124"
	curveExchangeUnderlyingSelector = "0xa6417ed6"

	curveAddLiquidity2Selector = "0x0b4c7e4d"
	curveAddLiquidity3Selector = "0x4515cef3"
	curveAddLiquidity4Selector = "0x029b2f34"

	curveRemoveLiquiditySelector        = "0x5b36389c"
	curveRemoveLiquidityOneCoinSelector = "0x1a4d01d2"
)

// Curve handles stableswap/cryptoswap pool exchange and liquidity calls.
// Swaps and unrecognized selectors fall through to a plain net-flow
// emission (matching GenericSwap's shape but attributed to the protocol);
// add/remove liquidity interpret the sign of each wallet address's net
// flow directly, since an N-asset pool add/remove touches an arbitrary
// number of underlying tokens plus the LP token in one call.
type Curve struct{}

func (Curve) Name() string { return "curve" }

func (Curve) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	return curvePools.Contains(tx.Chain, tx.ToAddr)
}

func (Curve) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}

	switch tx.Selector() {
	case curveAddLiquidity2Selector, curveAddLiquidity3Selector, curveAddLiquidity4Selector:
		splits = append(splits, curveNetFlowSplits(tx, ctx, true)...)
		return finish(splits, models.EntryDeposit, "curve")

	case curveRemoveLiquiditySelector, curveRemoveLiquidityOneCoinSelector:
		splits = append(splits, curveNetFlowSplits(tx, ctx, false)...)
		return finish(splits, models.EntryWithdrawal, "curve")

	default:
		// exchange / exchange_underlying / anything else: plain net-flow swap.
		splits = append(splits, curveSwapSplits(tx, ctx)...)
		return finish(splits, models.EntrySwap, "curve")
	}
}

func curveSwapSplits(tx *models.Transaction, ctx *rawtx.Context) []ParsedSplit {
	var out []ParsedSplit
	for _, bySymbol := range ctx.NetFlows() {
		for symbol, qty := range bySymbol {
			if qty.IsZero() {
				continue
			}
			out = append(out, ParsedSplit{Subtype: assetSubtype(tx.Chain, symbol), Symbol: symbol, Protocol: "curve", Quantity: qty})
		}
	}
	return out
}

// curveNetFlowSplits classifies each nonzero net flow as an underlying
// token (negative on add, positive on remove) or the LP token position
// (positive on add, negative on remove).
func curveNetFlowSplits(tx *models.Transaction, ctx *rawtx.Context, adding bool) []ParsedSplit {
	var out []ParsedSplit
	for _, bySymbol := range ctx.NetFlows() {
		for symbol, qty := range bySymbol {
			if qty.IsZero() {
				continue
			}
			isOutflow := qty.IsNegative()
			if adding {
				if isOutflow {
					out = append(out, ParsedSplit{Subtype: models.SubtypeERC20Token, Symbol: symbol, Quantity: qty})
				} else {
					out = append(out, ParsedSplit{Subtype: models.SubtypeProtocolAsset, Symbol: symbol, Protocol: "curve", Quantity: qty})
				}
			} else {
				if isOutflow {
					out = append(out, ParsedSplit{Subtype: models.SubtypeProtocolAsset, Symbol: symbol, Protocol: "curve", Quantity: qty})
				} else {
					out = append(out, ParsedSplit{Subtype: models.SubtypeERC20Token, Symbol: symbol, Quantity: qty})
				}
			}
		}
	}
	return out
}

func finish(splits []ParsedSplit, entryType models.EntryType, name string) (*ParseResult, error) {
	if len(splits) == 0 {
		return &ParseResult{ParserName: name}, nil
	}
	return &ParseResult{Splits: splits, EntryType: entryType, ParserName: name}, nil
}
