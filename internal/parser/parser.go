// Package parser implements the tiered parser registry and the protocol,
// generic, and CEX parsers that turn a transaction's remaining transfers
// into balanced journal splits (§4.3).
package parser

import (
	"github.com/shopspring/decimal"

	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// ParsedSplit is one leg the Bookkeeper will resolve to an Account and
// append as a JournalSplit.
type ParsedSplit struct {
	Subtype            models.AccountSubtype
	Symbol             string
	TokenAddress       string
	Protocol           string
	Quantity           decimal.Decimal
	IncomeTag          string // disambiguator for wallet_income label keys
	CounterpartAddress string // disambiguator for external_transfer label keys
}

// ParseResult is what a Parser produces for one transaction.
type ParseResult struct {
	Splits     []ParsedSplit
	EntryType  models.EntryType
	ParserName string
}

// Parser is implemented by every protocol, generic, and CEX parser.
// CanParse must be cheap; Parse may mutate ctx by popping the transfers it
// accounts for.
type Parser interface {
	Name() string
	CanParse(tx *models.Transaction, ctx *rawtx.Context) bool
	Parse(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, error)
}
