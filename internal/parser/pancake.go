package parser

import (
	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// PancakeSwap V3 is a Uniswap-V3 fork on BSC; its router swaps are
// identical in shape to UniswapV3Router's net-flow emission, just
// attributed to a different protocol tag and address set (§4.3.3
// "PancakeSwap" / SUPPLEMENTED FEATURES).
var pancakeV3Routers = NewAddressSet(map[string][]string{
	"bsc": {"0x13f4EA83D0bd40E75C8222255bc855a974568Dd4"},
})

// PancakeSwapV3 matches any call against the known router address and
// books the remaining net flows as a protocol-attributed swap.
type PancakeSwapV3 struct{}

func (PancakeSwapV3) Name() string { return "pancakeswap_v3" }

func (PancakeSwapV3) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	return pancakeV3Routers.Contains(tx.Chain, tx.ToAddr)
}

func (PancakeSwapV3) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid {
		splits = append(splits, gasSplits...)
	}
	for _, bySymbol := range ctx.NetFlows() {
		for symbol, qty := range bySymbol {
			if qty.IsZero() {
				continue
			}
			splits = append(splits, ParsedSplit{Subtype: assetSubtype(tx.Chain, symbol), Symbol: symbol, Protocol: "pancakeswap_v3", Quantity: qty})
		}
	}
	return finish(splits, models.EntrySwap, "pancakeswap_v3")
}
