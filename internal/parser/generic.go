package parser

import (
	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

func assetSubtype(chain, symbol string) models.AccountSubtype {
	if NativeSymbols[chain] == symbol {
		return models.SubtypeNativeAsset
	}
	return models.SubtypeERC20Token
}

// GenericEVM is the last-resort fallback: it always matches. It emits gas
// splits if the sender is one of our wallets, then converts whatever
// net_flows remain into paired asset vs external_transfer splits (§4.3.2).
type GenericEVM struct{}

func (GenericEVM) Name() string { return "generic_evm" }

func (GenericEVM) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool { return true }

func (GenericEVM) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	gasSplits, gasPaid := MakeGasSplits(tx, tx.Chain)
	if gasPaid && ctx.WalletAddrs[tx.FromAddr] {
		splits = append(splits, gasSplits...)
	} else {
		gasPaid = false
	}

	flows := ctx.NetFlows()
	valueTransferred := false
	for addr, bySymbol := range flows {
		for symbol, qty := range bySymbol {
			if qty.IsZero() {
				continue
			}
			valueTransferred = true
			splits = append(splits, ParsedSplit{
				Subtype:  assetSubtype(tx.Chain, symbol),
				Symbol:   symbol,
				Quantity: qty,
			})
			splits = append(splits, ParsedSplit{
				Subtype:            models.SubtypeExternalTransfer,
				Symbol:             symbol,
				Quantity:           qty.Neg(),
				CounterpartAddress: counterpartOf(ctx, addr, symbol),
			})
		}
	}

	entryType := models.EntryTransfer
	if !valueTransferred {
		if gasPaid {
			entryType = models.EntryGasFee
		} else {
			entryType = models.EntryUnknown
		}
	}

	if len(splits) == 0 {
		return &ParseResult{ParserName: "generic_evm"}, nil
	}
	return &ParseResult{Splits: splits, EntryType: entryType, ParserName: "generic_evm"}, nil
}

// counterpartOf returns the other party of the first remaining transfer of
// symbol that touches the wallet address addr, or "" if there is none.
func counterpartOf(ctx *rawtx.Context, addr, symbol string) string {
	for _, t := range ctx.RemainingTransfers() {
		if t.Symbol != symbol {
			continue
		}
		if t.From == addr && t.To != addr {
			return t.To
		}
		if t.To == addr && t.From != addr {
			return t.From
		}
	}
	return ""
}

// GenericSwap matches iff some wallet address has both a nonzero inflow
// and a nonzero outflow of different symbols. It emits gas splits plus one
// asset split per (address, symbol) with a nonzero net flow, preserving
// sign, and deliberately no counterparts: the signed net flow is the
// accounting representation of a swap against the protocol (§4.3.2).
type GenericSwap struct{}

func (GenericSwap) Name() string { return "generic_swap" }

func (GenericSwap) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	flows := ctx.NetFlows()
	for _, bySymbol := range flows {
		var hasPositive, hasNegative bool
		for _, qty := range bySymbol {
			if qty.IsPositive() {
				hasPositive = true
			} else if qty.IsNegative() {
				hasNegative = true
			}
		}
		if hasPositive && hasNegative {
			return true
		}
	}
	return false
}

func (GenericSwap) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var splits []ParsedSplit
	if gasSplits, paid := MakeGasSplits(tx, tx.Chain); paid && ctx.WalletAddrs[tx.FromAddr] {
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
				Quantity: qty,
			})
		}
	}

	if len(splits) == 0 {
		return &ParseResult{ParserName: "generic_swap"}, nil
	}
	return &ParseResult{Splits: splits, EntryType: models.EntrySwap, ParserName: "generic_swap"}, nil
}
