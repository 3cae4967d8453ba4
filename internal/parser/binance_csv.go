package parser

import (
	"strings"

	"github.com/shopspring/decimal"

	"cryptotax/internal/models"
)

// CSVRow is one row of a Binance "Transaction History" export (§6.3).
// Required columns per the upload contract: UTC_Time, Account, Operation,
// Coin, Change.
type CSVRow struct {
	UTCTime   string
	Account   string
	Operation string
	Coin      string
	Change    decimal.Decimal
}

// RequiredCSVColumns lists the columns a Binance transaction-history file
// must carry; the upload endpoint (out of scope, §1) rejects files missing
// any of these before this importer ever runs.
var RequiredCSVColumns = []string{"UTC_Time", "Account", "Operation", "Coin", "Change"}

// CSVEntry is one journal entry produced from a group of same-timestamp
// CSV rows.
type CSVEntry struct {
	Timestamp int64
	EntryType models.EntryType
	Splits    []ParsedSplit
}

// CSVSkipped records a row group the operation-family table has no
// handler for (§6.3 "Anything else" -> status=skipped).
type CSVSkipped struct {
	UTCTime    string
	Operations []string
}

// ImportBinanceCSV groups rows by exact UTC_Time and dispatches each group
// to its operation family handler. Row order within a group does not
// matter; handlers key off Operation text.
func ImportBinanceCSV(rows []CSVRow, parseTime func(string) (int64, error)) ([]CSVEntry, []CSVSkipped, error) {
	groups := map[string][]CSVRow{}
	var order []string
	for _, r := range rows {
		if _, seen := groups[r.UTCTime]; !seen {
			order = append(order, r.UTCTime)
		}
		groups[r.UTCTime] = append(groups[r.UTCTime], r)
	}

	var entries []CSVEntry
	var skipped []CSVSkipped
	for _, ts := range order {
		group := groups[ts]
		unix, err := parseTime(ts)
		if err != nil {
			return nil, nil, err
		}
		entry, ok := dispatchBinanceGroup(group)
		if !ok {
			skipped = append(skipped, CSVSkipped{UTCTime: ts, Operations: operationNames(group)})
			continue
		}
		entry.Timestamp = unix
		entries = append(entries, entry)
	}
	return entries, skipped, nil
}

func operationNames(rows []CSVRow) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rows {
		if !seen[r.Operation] {
			seen[r.Operation] = true
			out = append(out, r.Operation)
		}
	}
	return out
}

func hasOp(rows []CSVRow, substrs ...string) bool {
	for _, r := range rows {
		for _, s := range substrs {
			if strings.Contains(r.Operation, s) {
				return true
			}
		}
	}
	return false
}

// dispatchBinanceGroup implements the §6.3 operation-family table. Order
// matters: more specific families are checked before generic ones.
func dispatchBinanceGroup(rows []CSVRow) (CSVEntry, bool) {
	switch {
	case hasOp(rows, "Transaction Buy", "Transaction Sold", "Transaction Spend", "Transaction Revenue", "Transaction Fee"):
		return cexAssetLegs(rows, models.EntrySwap), true

	case hasOp(rows, "Binance Convert"):
		return cexAssetLegs(rows, models.EntrySwap), true

	case hasOp(rows, "Deposit", "P2P Trading"):
		return externalTransferEntry(rows, models.EntryDeposit), true

	case hasOp(rows, "Withdraw"):
		return externalTransferEntry(rows, models.EntryWithdrawal), true

	case hasOp(rows, "Transfer Between", "Transfer Funds to"):
		return cexAssetLegs(rows, models.EntryTransfer), true

	case hasOp(rows, "Simple Earn Subscription", "Locked Subscription"):
		return protocolMoveEntry(rows, models.EntryDeposit, true), true

	case hasOp(rows, "Simple Earn Redemption"):
		return protocolMoveEntry(rows, models.EntryWithdrawal, false), true

	case hasOp(rows, "Simple Earn Interest", "Locked Rewards"):
		return yieldEntry(rows), true

	case hasOp(rows, "Funding Fee") || hasOp(rows, "PnL"):
		return fundingOrPnLEntry(rows), true

	case hasOp(rows, "Fee"):
		return feeEntry(rows), true

	case hasOp(rows, "Isolated Margin Loan", "Flexible Loan Lending"):
		return protocolMoveEntry(rows, models.EntryBorrow, false), true

	case hasOp(rows, "Margin Forced Repayment", "Flexible Loan Repayment"):
		return protocolMoveEntry(rows, models.EntryRepay, true), true

	case hasOp(rows, "Cross Margin Liquidation Takeover"):
		return cexAssetLegs(rows, models.EntryLiquidation), true

	case hasOp(rows, "Flexible Loan Collateral Transfer"):
		return cexAssetLegs(rows, models.EntryDeposit), true

	case hasOp(rows, "RWUSD", "BFUSD", "WBETH"):
		if hasOp(rows, "Distribution", "Daily Reward") {
			return yieldEntry(rows), true
		}
		return cexAssetLegs(rows, models.EntrySwap), true

	case hasOp(rows, "Cashback Voucher"):
		return yieldEntry(rows), true

	default:
		return CSVEntry{}, false
	}
}

// cexAssetLegs books one cex_asset split per row, signed per Change —
// the generic shape for a multi-leg trade/convert/transfer group.
func cexAssetLegs(rows []CSVRow, entryType models.EntryType) CSVEntry {
	var splits []ParsedSplit
	for _, r := range rows {
		if r.Change.IsZero() {
			continue
		}
		splits = append(splits, ParsedSplit{Subtype: models.SubtypeCexAsset, Symbol: r.Coin, Quantity: r.Change})
	}
	return CSVEntry{EntryType: entryType, Splits: splits}
}

// externalTransferEntry books each row's cex_asset leg against an
// external_transfer counterpart, for deposit/withdrawal-shaped groups
// that cross the exchange boundary.
func externalTransferEntry(rows []CSVRow, entryType models.EntryType) CSVEntry {
	var splits []ParsedSplit
	for _, r := range rows {
		if r.Change.IsZero() {
			continue
		}
		splits = append(splits,
			ParsedSplit{Subtype: models.SubtypeCexAsset, Symbol: r.Coin, Quantity: r.Change},
			ParsedSplit{Subtype: models.SubtypeExternalTransfer, Symbol: r.Coin, Quantity: r.Change.Neg()},
		)
	}
	return CSVEntry{EntryType: entryType, Splits: splits}
}

// protocolMoveEntry books each row's cex_asset leg against a
// protocol_asset or protocol_debt counterpart — Simple Earn
// subscribe/redeem and loan borrow/repay all share this shape, only the
// subtype and sign convention differ.
func protocolMoveEntry(rows []CSVRow, entryType models.EntryType, asAsset bool) CSVEntry {
	subtype := models.SubtypeProtocolDebt
	if asAsset {
		subtype = models.SubtypeProtocolAsset
	}
	var splits []ParsedSplit
	for _, r := range rows {
		if r.Change.IsZero() {
			continue
		}
		splits = append(splits,
			ParsedSplit{Subtype: models.SubtypeCexAsset, Symbol: r.Coin, Quantity: r.Change},
			ParsedSplit{Subtype: subtype, Symbol: r.Coin, Protocol: "binance_earn", Quantity: r.Change.Neg()},
		)
	}
	return CSVEntry{EntryType: entryType, Splits: splits}
}

// yieldEntry books each row's cex_asset inflow against wallet_income, with
// no counterparty leg — interest, staking rewards, funding/PNL income,
// and cashback all share this shape.
func yieldEntry(rows []CSVRow) CSVEntry {
	var splits []ParsedSplit
	for _, r := range rows {
		if r.Change.IsZero() {
			continue
		}
		splits = append(splits,
			ParsedSplit{Subtype: models.SubtypeCexAsset, Symbol: r.Coin, Quantity: r.Change},
			ParsedSplit{Subtype: models.SubtypeWalletIncome, Symbol: r.Coin, IncomeTag: "binance_yield", Quantity: r.Change.Neg()},
		)
	}
	return CSVEntry{EntryType: models.EntryYield, Splits: splits}
}

// feeEntry books each row's cex_asset outflow against wallet_expense — a
// plain exchange fee with no protocol counterparty.
func feeEntry(rows []CSVRow) CSVEntry {
	var splits []ParsedSplit
	for _, r := range rows {
		if r.Change.IsZero() {
			continue
		}
		splits = append(splits,
			ParsedSplit{Subtype: models.SubtypeCexAsset, Symbol: r.Coin, Quantity: r.Change},
			ParsedSplit{Subtype: models.SubtypeWalletExpense, Symbol: r.Coin, Quantity: r.Change.Neg()},
		)
	}
	return CSVEntry{EntryType: models.EntryGasFee, Splits: splits}
}

// fundingOrPnLEntry dispatches Funding Fee / PnL rows by sign: negative
// change is an expense (GAS_FEE), positive is income (YIELD) — the two
// only differ in which side of zero the aggregate group change falls on.
func fundingOrPnLEntry(rows []CSVRow) CSVEntry {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Change)
	}
	if total.IsNegative() {
		return feeEntry(rows)
	}
	return yieldEntry(rows)
}
