package parser

import (
	"fmt"
	"strings"

	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// Registry implements the two-tier selection of §4.3.1. Chain-level
// parsers (CEX) override the generic fallback chain entirely; protocol
// parsers are tried first on both tiers.
type Registry struct {
	specific     map[string]map[string][]Parser // chain -> lowercased address -> parsers
	chainParsers map[string][]Parser            // chain -> CEX parsers, no generic fallback
	fallback     []Parser                        // GenericSwap, GenericEVM, in order
}

// NewRegistry returns an empty registry. Call SetFallback before any
// lookup that should use the generic chain.
func NewRegistry() *Registry {
	return &Registry{
		specific:     map[string]map[string][]Parser{},
		chainParsers: map[string][]Parser{},
	}
}

// RegisterProtocol attaches a protocol parser to a specific contract
// address on a chain. Address is normalized lowercase (EVM convention).
func (r *Registry) RegisterProtocol(chain, address string, p Parser) {
	chain = strings.ToLower(chain)
	addr := strings.ToLower(address)
	if r.specific[chain] == nil {
		r.specific[chain] = map[string][]Parser{}
	}
	r.specific[chain][addr] = append(r.specific[chain][addr], p)
}

// RegisterChainParsers installs the CEX override chain for chain (e.g.
// "binance"). When present, lookups for that chain never fall through to
// the generic EVM chain.
func (r *Registry) RegisterChainParsers(chain string, parsers ...Parser) {
	r.chainParsers[strings.ToLower(chain)] = append(r.chainParsers[strings.ToLower(chain)], parsers...)
}

// SetFallback installs the generic fallback chain used by every chain
// without a chain-level override, tried after any address-specific
// parsers.
func (r *Registry) SetFallback(parsers ...Parser) {
	r.fallback = parsers
}

// Get returns the ordered parser list for (chain, toAddress) per §4.3.1.
func (r *Registry) Get(chain, toAddress string) []Parser {
	chainKey := strings.ToLower(chain)
	addrKey := strings.ToLower(toAddress)

	var out []Parser
	out = append(out, r.specific[chainKey][addrKey]...)

	if cp, ok := r.chainParsers[chainKey]; ok {
		return append(out, cp...)
	}
	return append(out, r.fallback...)
}

// Attempt runs Get(tx.Chain, tx.ToAddr) in order and stops at the first
// parser whose CanParse returns true: that parser's ParseResult is final,
// even if its Splits come back empty or nil. Iteration is short-circuit,
// not best-effort fallthrough — later parsers are never consulted once a
// match is found (§4.3.3, matching the original's bookkeeper.py, where an
// empty result becomes UNKNOWN_TRANSACTION_INPUT_ERROR rather than a
// retry). The per-parser attempt log is returned for diagnostics
// regardless of outcome.
func (r *Registry) Attempt(tx *models.Transaction, ctx *rawtx.Context) (*ParseResult, []string, error) {
	parsers := r.Get(tx.Chain, tx.ToAddr)
	var attempted []string
	for _, p := range parsers {
		attempted = append(attempted, p.Name())
		if !p.CanParse(tx, ctx) {
			continue
		}
		res, err := p.Parse(tx, ctx)
		if err != nil {
			return nil, attempted, fmt.Errorf("parser %s: %w", p.Name(), err)
		}
		return res, attempted, nil
	}
	return nil, attempted, nil
}
