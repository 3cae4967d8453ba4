// Package export writes the ledger/tax workbook a completed bookkeeping
// and tax run produces, in the style of the teacher's internal/export
// package: one excelize.File, one helper per sheet, cell-by-cell writes
// with a bold header style.
package export

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"cryptotax/internal/models"
)

// Report is everything one entity's workbook is built from. Callers
// assemble it from the bookkeeper/tax-engine outputs; export itself never
// touches a Store.
type Report struct {
	Entity     models.Entity
	Wallets    []*models.Wallet
	Accounts   []*models.Account
	Entries    []*models.JournalEntry
	TaxSummary *models.TaxSummary
	Warnings   []*models.ParseErrorRecord
	Settings   map[string]string
}

// accountLookup resolves account IDs against Report.Accounts once, so
// sheet builders don't each do an O(n) scan.
type accountLookup map[uint64]*models.Account

func (r Report) lookup() accountLookup {
	m := make(accountLookup, len(r.Accounts))
	for _, a := range r.Accounts {
		m[a.ID] = a
	}
	return m
}

// WriteWorkbook assembles the full multi-sheet report and saves it to
// filename. Sheet order matches the roster: summary, balance sheet,
// income statement, flows, realized gains, open lots, full journal, tax
// summary, warnings, wallets, settings.
func WriteWorkbook(filename string, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	head, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	num, _ := f.NewStyle(&excelize.Style{NumFmt: 4})

	f.SetSheetName("Sheet1", "Summary")
	writeSummary(f, head, num, r)

	acct := r.lookup()
	balances := balancesBySymbol(r.Entries, acct)

	writeBalanceSheet(f, head, num, balances)
	writeIncomeStatement(f, head, num, r.Entries, acct)
	writeFlows(f, head, num, r.Entries, acct)
	writeRealizedGains(f, head, num, r.TaxSummary)
	writeOpenLots(f, head, num, r.TaxSummary)
	writeFullJournal(f, head, num, r.Entries, acct)
	writeTaxSummary(f, head, num, r.TaxSummary)
	writeWarnings(f, head, r.Warnings)
	writeWallets(f, head, r.Wallets)
	writeSettings(f, head, r.Settings)

	return f.SaveAs(filename)
}

func writeSummary(f *excelize.File, head, num int, r Report) {
	const sh = "Summary"
	f.SetCellValue(sh, "A1", "entity")
	f.SetCellValue(sh, "B1", "base_currency")
	f.SetCellValue(sh, "C1", "wallets")
	f.SetCellValue(sh, "D1", "total_realized_gain_usd")
	f.SetCellValue(sh, "E1", "total_transfer_tax_vnd")
	_ = f.SetCellStyle(sh, "A1", "E1", head)

	f.SetCellValue(sh, "A2", r.Entity.Name)
	f.SetCellValue(sh, "B2", r.Entity.BaseCurrency)
	f.SetCellValue(sh, "C2", len(r.Wallets))
	if r.TaxSummary != nil {
		f.SetCellValue(sh, "D2", r.TaxSummary.TotalRealizedGainUSD.InexactFloat64())
		f.SetCellValue(sh, "E2", r.TaxSummary.TotalTransferTaxVND.InexactFloat64())
	}
	_ = f.SetCellStyle(sh, "D2", "E2", num)
}

// symbolBalance accumulates every split's signed quantity/USD/VND value
// for one symbol across the full set of journal entries passed in — the
// workbook's point-in-time balance sheet.
type symbolBalance struct {
	Symbol   string
	Quantity decimal.Decimal
	ValueUSD decimal.Decimal
	ValueVND decimal.Decimal
}

func balancesBySymbol(entries []*models.JournalEntry, acct accountLookup) []symbolBalance {
	bySym := map[string]*symbolBalance{}
	for _, e := range entries {
		for _, sp := range e.Splits {
			a := acct[sp.AccountID]
			if a == nil || !a.IsAsset() {
				continue
			}
			b, ok := bySym[a.Symbol]
			if !ok {
				b = &symbolBalance{Symbol: a.Symbol}
				bySym[a.Symbol] = b
			}
			b.Quantity = b.Quantity.Add(sp.Quantity)
			if sp.ValueUSD != nil {
				b.ValueUSD = b.ValueUSD.Add(*sp.ValueUSD)
			}
			if sp.ValueVND != nil {
				b.ValueVND = b.ValueVND.Add(*sp.ValueVND)
			}
		}
	}
	out := make([]symbolBalance, 0, len(bySym))
	for _, b := range bySym {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func writeBalanceSheet(f *excelize.File, head, num int, balances []symbolBalance) {
	const name = "BalanceSheet"
	_, _ = f.NewSheet(name)
	f.SetCellValue(name, "A1", "symbol")
	f.SetCellValue(name, "B1", "quantity")
	f.SetCellValue(name, "C1", "value_usd")
	f.SetCellValue(name, "D1", "value_vnd")
	_ = f.SetCellStyle(name, "A1", "D1", head)
	for i, b := range balances {
		row := i + 2
		f.SetCellValue(name, fmt.Sprintf("A%d", row), b.Symbol)
		f.SetCellValue(name, fmt.Sprintf("B%d", row), b.Quantity.InexactFloat64())
		f.SetCellValue(name, fmt.Sprintf("C%d", row), b.ValueUSD.InexactFloat64())
		f.SetCellValue(name, fmt.Sprintf("D%d", row), b.ValueVND.InexactFloat64())
		_ = f.SetCellStyle(name, fmt.Sprintf("B%d", row), fmt.Sprintf("D%d", row), num)
	}
}

// writeIncomeStatement totals INCOME/EXPENSE account splits by entry type,
// the ledger's profit-and-loss view (distinct from the realized-gains
// sheet, which is FIFO-matched capital gains only).
func writeIncomeStatement(f *excelize.File, head, num int, entries []*models.JournalEntry, acct accountLookup) {
	const name = "IncomeStatement"
	_, _ = f.NewSheet(name)
	f.SetCellValue(name, "A1", "entry_type")
	f.SetCellValue(name, "B1", "account_type")
	f.SetCellValue(name, "C1", "total_usd")
	_ = f.SetCellStyle(name, "A1", "C1", head)

	type key struct {
		entryType, acctType string
	}
	totals := map[key]decimal.Decimal{}
	for _, e := range entries {
		for _, sp := range e.Splits {
			a := acct[sp.AccountID]
			if a == nil || (a.AccountType != models.AccountIncome && a.AccountType != models.AccountExpense) {
				continue
			}
			if sp.ValueUSD == nil {
				continue
			}
			k := key{string(e.EntryType), string(a.AccountType)}
			totals[k] = totals[k].Add(*sp.ValueUSD)
		}
	}
	keys := make([]key, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entryType != keys[j].entryType {
			return keys[i].entryType < keys[j].entryType
		}
		return keys[i].acctType < keys[j].acctType
	})
	for i, k := range keys {
		row := i + 2
		f.SetCellValue(name, fmt.Sprintf("A%d", row), k.entryType)
		f.SetCellValue(name, fmt.Sprintf("B%d", row), k.acctType)
		f.SetCellValue(name, fmt.Sprintf("C%d", row), totals[k].InexactFloat64())
		_ = f.SetCellStyle(name, fmt.Sprintf("C%d", row), fmt.Sprintf("C%d", row), num)
	}
}

// writeFlows lists every asset-account split as an inflow/outflow row,
// the per-transaction counterpart to the aggregated BalanceSheet sheet.
func writeFlows(f *excelize.File, head, num int, entries []*models.JournalEntry, acct accountLookup) {
	const name = "Flows"
	_, _ = f.NewSheet(name)
	f.SetCellValue(name, "A1", "timestamp")
	f.SetCellValue(name, "B1", "symbol")
	f.SetCellValue(name, "C1", "quantity")
	f.SetCellValue(name, "D1", "value_usd")
	f.SetCellValue(name, "E1", "direction")
	_ = f.SetCellStyle(name, "A1", "E1", head)

	row := 2
	for _, e := range entries {
		for _, sp := range e.Splits {
			a := acct[sp.AccountID]
			if a == nil || !a.IsAsset() {
				continue
			}
			dir := "in"
			if sp.Quantity.IsNegative() {
				dir = "out"
			}
			f.SetCellValue(name, fmt.Sprintf("A%d", row), e.Timestamp)
			f.SetCellValue(name, fmt.Sprintf("B%d", row), a.Symbol)
			f.SetCellValue(name, fmt.Sprintf("C%d", row), sp.Quantity.InexactFloat64())
			if sp.ValueUSD != nil {
				f.SetCellValue(name, fmt.Sprintf("D%d", row), sp.ValueUSD.InexactFloat64())
			}
			f.SetCellValue(name, fmt.Sprintf("E%d", row), dir)
			_ = f.SetCellStyle(name, fmt.Sprintf("C%d", row), fmt.Sprintf("D%d", row), num)
			row++
		}
	}
}

func writeRealizedGains(f *excelize.File, head, num int, ts *models.TaxSummary) {
	const name = "RealizedGains"
	_, _ = f.NewSheet(name)
	f.SetCellValue(name, "A1", "symbol")
	f.SetCellValue(name, "B1", "quantity")
	f.SetCellValue(name, "C1", "cost_basis_usd")
	f.SetCellValue(name, "D1", "proceeds_usd")
	f.SetCellValue(name, "E1", "gain_usd")
	f.SetCellValue(name, "F1", "holding_days")
	_ = f.SetCellStyle(name, "A1", "F1", head)
	if ts == nil {
		return
	}
	for i, lot := range ts.ClosedLots {
		row := i + 2
		f.SetCellValue(name, fmt.Sprintf("A%d", row), lot.Symbol)
		f.SetCellValue(name, fmt.Sprintf("B%d", row), lot.Quantity.InexactFloat64())
		f.SetCellValue(name, fmt.Sprintf("C%d", row), lot.CostBasisUSD.InexactFloat64())
		f.SetCellValue(name, fmt.Sprintf("D%d", row), lot.ProceedsUSD.InexactFloat64())
		f.SetCellValue(name, fmt.Sprintf("E%d", row), lot.GainUSD.InexactFloat64())
		f.SetCellValue(name, fmt.Sprintf("F%d", row), lot.HoldingDays)
		_ = f.SetCellStyle(name, fmt.Sprintf("B%d", row), fmt.Sprintf("E%d", row), num)
	}
}

func writeOpenLots(f *excelize.File, head, num int, ts *models.TaxSummary) {
	const name = "OpenLots"
	_, _ = f.NewSheet(name)
	f.SetCellValue(name, "A1", "symbol")
	f.SetCellValue(name, "B1", "remaining_quantity")
	f.SetCellValue(name, "C1", "cost_basis_per_unit_usd")
	f.SetCellValue(name, "D1", "buy_timestamp")
	_ = f.SetCellStyle(name, "A1", "D1", head)
	if ts == nil {
		return
	}
	for i, lot := range ts.OpenLots {
		row := i + 2
		f.SetCellValue(name, fmt.Sprintf("A%d", row), lot.Symbol)
		f.SetCellValue(name, fmt.Sprintf("B%d", row), lot.RemainingQuantity.InexactFloat64())
		f.SetCellValue(name, fmt.Sprintf("C%d", row), lot.CostBasisPerUnitUSD.InexactFloat64())
		f.SetCellValue(name, fmt.Sprintf("D%d", row), lot.BuyTimestamp)
		_ = f.SetCellStyle(name, fmt.Sprintf("B%d", row), fmt.Sprintf("C%d", row), num)
	}
}

func writeFullJournal(f *excelize.File, head, num int, entries []*models.JournalEntry, acct accountLookup) {
	const name = "FullJournal"
	_, _ = f.NewSheet(name)
	f.SetCellValue(name, "A1", "timestamp")
	f.SetCellValue(name, "B1", "entry_type")
	f.SetCellValue(name, "C1", "description")
	f.SetCellValue(name, "D1", "account_label")
	f.SetCellValue(name, "E1", "quantity")
	f.SetCellValue(name, "F1", "value_usd")
	_ = f.SetCellStyle(name, "A1", "F1", head)

	row := 2
	for _, e := range entries {
		for _, sp := range e.Splits {
			label := ""
			if a := acct[sp.AccountID]; a != nil {
				label = a.Label
			}
			f.SetCellValue(name, fmt.Sprintf("A%d", row), e.Timestamp)
			f.SetCellValue(name, fmt.Sprintf("B%d", row), string(e.EntryType))
			f.SetCellValue(name, fmt.Sprintf("C%d", row), e.Description)
			f.SetCellValue(name, fmt.Sprintf("D%d", row), label)
			f.SetCellValue(name, fmt.Sprintf("E%d", row), sp.Quantity.InexactFloat64())
			if sp.ValueUSD != nil {
				f.SetCellValue(name, fmt.Sprintf("F%d", row), sp.ValueUSD.InexactFloat64())
			}
			_ = f.SetCellStyle(name, fmt.Sprintf("E%d", row), fmt.Sprintf("F%d", row), num)
			row++
		}
	}
}

func writeTaxSummary(f *excelize.File, head, num int, ts *models.TaxSummary) {
	const name = "TaxSummary"
	_, _ = f.NewSheet(name)
	f.SetCellValue(name, "A1", "symbol")
	f.SetCellValue(name, "B1", "quantity")
	f.SetCellValue(name, "C1", "value_vnd")
	f.SetCellValue(name, "D1", "tax_amount_vnd")
	f.SetCellValue(name, "E1", "exemption_reason")
	_ = f.SetCellStyle(name, "A1", "E1", head)
	if ts == nil {
		return
	}
	for i, t := range ts.TaxableTransfers {
		row := i + 2
		f.SetCellValue(name, fmt.Sprintf("A%d", row), t.Symbol)
		f.SetCellValue(name, fmt.Sprintf("B%d", row), t.Quantity.InexactFloat64())
		f.SetCellValue(name, fmt.Sprintf("C%d", row), t.ValueVND.InexactFloat64())
		f.SetCellValue(name, fmt.Sprintf("D%d", row), t.TaxAmountVND.InexactFloat64())
		if t.ExemptionReason != nil {
			f.SetCellValue(name, fmt.Sprintf("E%d", row), string(*t.ExemptionReason))
		}
		_ = f.SetCellStyle(name, fmt.Sprintf("B%d", row), fmt.Sprintf("D%d", row), num)
	}
}

func writeWarnings(f *excelize.File, head int, warnings []*models.ParseErrorRecord) {
	const name = "Warnings"
	_, _ = f.NewSheet(name)
	f.SetCellValue(name, "A1", "error_kind")
	f.SetCellValue(name, "B1", "message")
	f.SetCellValue(name, "C1", "resolved")
	_ = f.SetCellStyle(name, "A1", "C1", head)
	for i, w := range warnings {
		row := i + 2
		f.SetCellValue(name, fmt.Sprintf("A%d", row), string(w.ErrorKind))
		f.SetCellValue(name, fmt.Sprintf("B%d", row), w.Message)
		f.SetCellValue(name, fmt.Sprintf("C%d", row), w.Resolved)
	}
}

func writeWallets(f *excelize.File, head int, wallets []*models.Wallet) {
	const name = "Wallets"
	_, _ = f.NewSheet(name)
	f.SetCellValue(name, "A1", "label")
	f.SetCellValue(name, "B1", "kind")
	f.SetCellValue(name, "C1", "identity")
	f.SetCellValue(name, "D1", "sync_status")
	_ = f.SetCellStyle(name, "A1", "D1", head)
	for i, w := range wallets {
		row := i + 2
		f.SetCellValue(name, fmt.Sprintf("A%d", row), w.Label)
		f.SetCellValue(name, fmt.Sprintf("B%d", row), string(w.Kind))
		f.SetCellValue(name, fmt.Sprintf("C%d", row), w.Prefix())
		f.SetCellValue(name, fmt.Sprintf("D%d", row), string(w.SyncStatus))
	}
}

func writeSettings(f *excelize.File, head int, settings map[string]string) {
	const name = "Settings"
	_, _ = f.NewSheet(name)
	f.SetCellValue(name, "A1", "key")
	f.SetCellValue(name, "B1", "value")
	_ = f.SetCellStyle(name, "A1", "B1", head)

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		row := i + 2
		f.SetCellValue(name, fmt.Sprintf("A%d", row), k)
		f.SetCellValue(name, fmt.Sprintf("B%d", row), settings[k])
	}
}
