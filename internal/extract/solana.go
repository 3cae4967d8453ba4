package extract

import (
	"math/big"

	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// SolanaTokenBalance mirrors one entry of preTokenBalances/postTokenBalances
// (§6.1).
type SolanaTokenBalance struct {
	AccountIndex int      `json:"accountIndex"`
	Mint         string   `json:"mint"`
	Owner        string   `json:"owner"`
	Amount       *big.Int `json:"amount"` // raw smallest-unit amount
	Decimals     int      `json:"decimals"`
	Symbol       string   `json:"symbol"` // tokenInfo.symbol, if present
}

// SolanaTx mirrors the getTransaction(jsonParsed) shape the loader fetches
// per signature (§6.1).
type SolanaTx struct {
	AccountKeys       []string             `json:"accountKeys"`
	Fee               uint64               `json:"fee"`
	PreBalances       []*big.Int           `json:"preBalances"`
	PostBalances      []*big.Int           `json:"postBalances"`
	PreTokenBalances  []SolanaTokenBalance `json:"preTokenBalances"`
	PostTokenBalances []SolanaTokenBalance `json:"postTokenBalances"`
}

type delta struct {
	addr string
	amt  *big.Int // signed
}

// SolanaTransfers implements the Solana path of §4.1: pair every
// negative-delta account with every positive-delta account using the
// smaller absolute delta as the transfer amount, separately for native
// lamports and for each (accountIndex, mint) SPL balance change. Lamport
// conservation (modulo the fee deducted from the payer) makes this
// pairing well-defined. Grounded on
// original_source/src/cryptotax/parser/utils/solana_transfers.py's
// _extract_sol_transfers/_extract_spl_transfers: every sender is paired
// against every receiver (a full cross product), not a depleting greedy
// match — a sender's and receiver's amounts are never reduced between
// pairs, so a small residual delta (e.g. the fee payer's) produces its
// own low-value transfer to the same receiver a larger sender also paired
// against.
func SolanaTransfers(tx SolanaTx) []rawtx.RawTransfer {
	var out []rawtx.RawTransfer

	out = append(out, pairDeltas(nativeDeltas(tx), nil, 9, "SOL", models.TransferNative)...)

	for mint, group := range splDeltas(tx) {
		symbol := group.symbol
		if symbol == "" {
			symbol = shortMint(mint)
		}
		tokenAddr := mint
		out = append(out, pairDeltas(group.deltas, &tokenAddr, group.decimals, symbol, models.TransferSPL)...)
	}

	return out
}

func nativeDeltas(tx SolanaTx) []delta {
	var out []delta
	n := len(tx.AccountKeys)
	if len(tx.PreBalances) < n {
		n = len(tx.PreBalances)
	}
	if len(tx.PostBalances) < n {
		n = len(tx.PostBalances)
	}
	for i := 0; i < n; i++ {
		if tx.PreBalances[i] == nil || tx.PostBalances[i] == nil {
			continue
		}
		d := new(big.Int).Sub(tx.PostBalances[i], tx.PreBalances[i])
		if d.Sign() == 0 {
			continue
		}
		out = append(out, delta{addr: tx.AccountKeys[i], amt: d})
	}
	return out
}

type splGroup struct {
	deltas   []delta
	decimals int
	symbol   string
}

// splDeltas groups pre/post token-balance changes by mint, computing a
// signed delta per (accountIndex, mint) pair.
func splDeltas(tx SolanaTx) map[string]*splGroup {
	pre := map[int]SolanaTokenBalance{}
	for _, b := range tx.PreTokenBalances {
		pre[b.AccountIndex] = b
	}
	post := map[int]SolanaTokenBalance{}
	for _, b := range tx.PostTokenBalances {
		post[b.AccountIndex] = b
	}

	seen := map[int]bool{}
	groups := map[string]*splGroup{}
	consider := func(idx int) {
		if seen[idx] {
			return
		}
		seen[idx] = true
		before, hasBefore := pre[idx]
		after, hasAfter := post[idx]
		if !hasBefore && !hasAfter {
			return
		}
		mint := before.Mint
		decimals := before.Decimals
		symbol := before.Symbol
		owner := before.Owner
		if hasAfter {
			mint = after.Mint
			decimals = after.Decimals
			if after.Symbol != "" {
				symbol = after.Symbol
			}
			owner = after.Owner
		}
		preAmt := big.NewInt(0)
		if hasBefore && before.Amount != nil {
			preAmt = before.Amount
		}
		postAmt := big.NewInt(0)
		if hasAfter && after.Amount != nil {
			postAmt = after.Amount
		}
		d := new(big.Int).Sub(postAmt, preAmt)
		if d.Sign() == 0 {
			return
		}
		g, ok := groups[mint]
		if !ok {
			g = &splGroup{decimals: decimals, symbol: symbol}
			groups[mint] = g
		}
		g.deltas = append(g.deltas, delta{addr: owner, amt: d})
	}

	for idx := range pre {
		consider(idx)
	}
	for idx := range post {
		consider(idx)
	}
	return groups
}

// pairDeltas pairs every negative-delta (sender) account against every
// positive-delta (receiver) account, emitting one RawTransfer per pair
// using the smaller absolute amount as the transfer quantity. Neither
// side is reduced between pairs: this is a plain cross product, matching
// original_source/src/cryptotax/parser/utils/solana_transfers.py's
// _extract_sol_transfers/_extract_spl_transfers (`for sender ... for
// receiver: transfer_amount = min(sent, recv)`), not a depleting greedy
// match (§4.1).
func pairDeltas(deltas []delta, tokenAddr *string, decimals int, symbol string, kind models.TransferKind) []rawtx.RawTransfer {
	var senders, receivers []delta
	for _, d := range deltas {
		switch d.amt.Sign() {
		case -1:
			senders = append(senders, delta{addr: d.addr, amt: new(big.Int).Neg(d.amt)})
		case 1:
			receivers = append(receivers, delta{addr: d.addr, amt: new(big.Int).Set(d.amt)})
		}
	}

	var out []rawtx.RawTransfer
	for _, s := range senders {
		for _, r := range receivers {
			amt := new(big.Int).Set(s.amt)
			if r.amt.Cmp(amt) < 0 {
				amt.Set(r.amt)
			}
			if amt.Sign() <= 0 {
				continue
			}
			out = append(out, rawtx.RawTransfer{
				TokenAddress: tokenAddr,
				From:         s.addr,
				To:           r.addr,
				ValueUnits:   amt,
				Decimals:     decimals,
				Symbol:       symbol,
				Kind:         kind,
			})
		}
	}
	return out
}

// shortMint returns the first 8 characters of a mint address, used as a
// fallback symbol when tokenInfo.symbol is absent (§4.1).
func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:8]
}
