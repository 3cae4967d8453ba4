package parser

import (
	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

var uniswapV3Routers = NewAddressSet(map[string][]string{
	"ethereum": {"0xE592427A0AEce92De3Edee1F18E0157C05861564", "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"},
	"arbitrum": {"0xE592427A0AEce92De3Edee1F18E0157C05861564"},
	"polygon":  {"0xE592427A0AEce92De3Edee1F18E0157C05861564"},
})

var uniswapV3PositionManagers = NewAddressSet(map[string][]string{
	"ethereum": {"0xC36442b4a4522E871399CD717aBDD847Ab11FE88"},
	"arbitrum": {"0xC36442b4a4522E871399CD717aBDD847Ab11FE88"},
	"polygon":  {"0xC36442b4a4522E871399CD717aBDD847Ab11FE88"},
})

const (
	uniswapMintSelector             = "0x88316456"
	uniswapIncreaseLiquiditySelector = "0x219f5d17"
	uniswapDecreaseLiquiditySelector = "0x0c49ccbe"
	uniswapCollectSelector          = "0xfc6f7865"
)

// UniswapV3Router emits a net-flow swap, attributing it to the Uniswap V3
// protocol, for any call against a known router address (including
// multicall — the net_flows over the remaining transfers are the same
// regardless of how many individual swap legs the multicall encoded).
type UniswapV3Router struct{}

func (UniswapV3Router) Name() string { return "uniswap_v3_router" }

func (UniswapV3Router) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	return uniswapV3Routers.Contains(tx.Chain, tx.ToAddr)
}

func (UniswapV3Router) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}
	flows := ctx.NetFlows()
	for _, bySymbol := range flows {
		for symbol, qty := range bySymbol {
			if qty.IsZero() {
				continue
			}
			splits = append(splits, ParsedSplit{
				Subtype:  assetSubtype(tx.Chain, symbol),
				Symbol:   symbol,
				Protocol: "uniswap_v3",
				Quantity: qty,
			})
		}
	}
	if len(splits) == 0 {
		return &ParseResult{ParserName: "uniswap_v3_router"}, nil
	}
	return &ParseResult{Splits: splits, EntryType: models.EntrySwap, ParserName: "uniswap_v3_router"}, nil
}

// UniswapV3PositionManager handles LP mint/increaseLiquidity (tokens out,
// protocol_asset in) and decreaseLiquidity/collect (the inverse) against
// the NonfungiblePositionManager.
type UniswapV3PositionManager struct{}

func (UniswapV3PositionManager) Name() string { return "uniswap_v3_lp" }

func (UniswapV3PositionManager) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	if !uniswapV3PositionManagers.Contains(tx.Chain, tx.ToAddr) {
		return false
	}
	switch tx.Selector() {
	case uniswapMintSelector, uniswapIncreaseLiquiditySelector, uniswapDecreaseLiquiditySelector, uniswapCollectSelector:
		return true
	}
	return false
}

func (UniswapV3PositionManager) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}

	var entryType models.EntryType
	switch tx.Selector() {
	case uniswapMintSelector, uniswapIncreaseLiquiditySelector:
		for {
			t, ok := ctx.PopTransfer(rawtx.WithFrom(tx.FromAddr), rawtx.WithTo(tx.ToAddr))
			if !ok {
				break
			}
			splits = append(splits, MakeDepositSplits("uniswap_v3", symbolOf(t), qtyOf(t))...)
		}
		entryType = models.EntryDeposit

	case uniswapDecreaseLiquiditySelector, uniswapCollectSelector:
		for {
			t, ok := ctx.PopTransfer(rawtx.WithFrom(tx.ToAddr), rawtx.WithTo(tx.FromAddr))
			if !ok {
				break
			}
			splits = append(splits, MakeWithdrawalSplits("uniswap_v3", symbolOf(t), qtyOf(t))...)
		}
		entryType = models.EntryWithdrawal

	default:
		return &ParseResult{ParserName: "uniswap_v3_lp"}, nil
	}

	if len(splits) == 0 {
		return &ParseResult{ParserName: "uniswap_v3_lp"}, nil
	}
	return &ParseResult{Splits: splits, EntryType: entryType, ParserName: "uniswap_v3_lp"}, nil
}
