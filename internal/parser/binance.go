package parser

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// binanceQuoteAssets is tried longest-first when splitting a combined
// symbol like "BTCUSDT" into base/quote legs (§4.3.5).
var binanceQuoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB"}

// splitBinanceSymbol separates a Binance trade symbol into (base, quote).
// Unrecognized quote suffixes fall back to treating the whole string as
// base against "USD" — better than failing closed on an unlisted pair.
func splitBinanceSymbol(symbol string) (base, quote string) {
	for _, q := range binanceQuoteAssets {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return strings.TrimSuffix(symbol, q), q
		}
	}
	return symbol, "USD"
}

// binanceTradeRecord mirrors the REST myTrades / CSV "Transaction
// Buy/Sold" row shape: a fill against a base/quote pair plus an optional
// fee leg.
type binanceTradeRecord struct {
	Symbol          string          `json:"symbol"`
	Side            string          `json:"side"`    // BUY or SELL
	IsBuyer         *bool           `json:"isBuyer"` // REST myTrades carries this instead of side
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	QuoteQty        decimal.Decimal `json:"quoteQty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	Time            int64           `json:"time"`
}

// binanceTransferRecord mirrors a deposit/withdrawal row: an asset moving
// across the exchange boundary with an optional network fee.
type binanceTransferRecord struct {
	Coin    string          `json:"coin"`
	Amount  decimal.Decimal `json:"amount"`
	Fee     decimal.Decimal `json:"transactionFee"`
	Address string          `json:"address"`
	TxID    string          `json:"txId"`
	Time    int64           `json:"time"`
}

// BinanceTradeParser handles the myTrades/CSV-trade record shape: a fill
// books a cex_asset leg for both the base and quote currency, plus a
// cex_asset(-fee)/wallet_expense(+fee) pair when a commission was charged.
type BinanceTradeParser struct{}

func (BinanceTradeParser) Name() string { return "binance_trade" }

func (BinanceTradeParser) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	return tx.Chain == "binance" && strings.HasPrefix(tx.TxHash, "binance_trade_")
}

func (BinanceTradeParser) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var rec binanceTradeRecord
	if err := json.Unmarshal(tx.RawData, &rec); err != nil {
		return nil, err
	}
	base, quote := splitBinanceSymbol(rec.Symbol)

	baseQty := rec.Qty
	quoteQty := rec.QuoteQty
	isSell := strings.EqualFold(rec.Side, "SELL") || (rec.Side == "" && rec.IsBuyer != nil && !*rec.IsBuyer)
	if isSell {
		baseQty = baseQty.Neg()
	} else {
		quoteQty = quoteQty.Neg()
	}

	splits := []ParsedSplit{
		{Subtype: models.SubtypeCexAsset, Symbol: base, Quantity: baseQty},
		{Subtype: models.SubtypeCexAsset, Symbol: quote, Quantity: quoteQty},
	}
	if rec.Commission.IsPositive() {
		feeAsset := rec.CommissionAsset
		if feeAsset == "" {
			feeAsset = quote
		}
		splits = append(splits,
			ParsedSplit{Subtype: models.SubtypeCexAsset, Symbol: feeAsset, Quantity: rec.Commission.Neg()},
			ParsedSplit{Subtype: models.SubtypeWalletExpense, Symbol: feeAsset, Quantity: rec.Commission},
		)
	}
	return &ParseResult{Splits: splits, EntryType: models.EntrySwap, ParserName: "binance_trade"}, nil
}

// BinanceDepositParser handles capital/deposit/hisrec rows: an asset
// arrives on the exchange from outside the tracked boundary.
type BinanceDepositParser struct{}

func (BinanceDepositParser) Name() string { return "binance_deposit" }

func (BinanceDepositParser) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	return tx.Chain == "binance" && strings.HasPrefix(tx.TxHash, "binance_deposit_")
}

func (BinanceDepositParser) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var rec binanceTransferRecord
	if err := json.Unmarshal(tx.RawData, &rec); err != nil {
		return nil, err
	}
	splits := []ParsedSplit{
		{Subtype: models.SubtypeCexAsset, Symbol: rec.Coin, Quantity: rec.Amount},
		{Subtype: models.SubtypeExternalTransfer, Symbol: rec.Coin, Quantity: rec.Amount.Neg(), CounterpartAddress: rec.Address},
	}
	return &ParseResult{Splits: splits, EntryType: models.EntryDeposit, ParserName: "binance_deposit"}, nil
}

// BinanceWithdrawalParser handles capital/withdraw/history rows, the
// inverse of BinanceDepositParser, plus the network fee Binance deducts
// before broadcasting.
type BinanceWithdrawalParser struct{}

func (BinanceWithdrawalParser) Name() string { return "binance_withdrawal" }

func (BinanceWithdrawalParser) CanParse(tx *models.Transaction, ctx *rawtx.Context) bool {
	return tx.Chain == "binance" && strings.HasPrefix(tx.TxHash, "binance_withdraw_")
}

func (BinanceWithdrawalParser) Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error) {
	var rec binanceTransferRecord
	if err := json.Unmarshal(tx.RawData, &rec); err != nil {
		return nil, err
	}
	total := rec.Amount.Add(rec.Fee)
	splits := []ParsedSplit{
		{Subtype: models.SubtypeCexAsset, Symbol: rec.Coin, Quantity: total.Neg()},
		{Subtype: models.SubtypeExternalTransfer, Symbol: rec.Coin, Quantity: rec.Amount, CounterpartAddress: rec.Address},
	}
	if rec.Fee.IsPositive() {
		splits = append(splits, ParsedSplit{Subtype: models.SubtypeWalletExpense, Symbol: rec.Coin, Quantity: rec.Fee})
	}
	return &ParseResult{Splits: splits, EntryType: models.EntryWithdrawal, ParserName: "binance_withdrawal"}, nil
}
