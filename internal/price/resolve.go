package price

import "strings"

// Stablecoins is the list the PriceService short-circuits to 1.0 before
// consulting any provider (§4.5 step 3d).
var Stablecoins = map[string]bool{
	"USDC": true, "USDT": true, "DAI": true, "FRAX": true, "USDS": true,
	"BUSD": true, "TUSD": true, "LUSD": true, "GUSD": true, "PYUSD": true,
	"USD1": true, "BFUSD": true, "RWUSD": true,
}

// symbolToCoinGeckoID is the static mapping step of the CoinGecko
// resolution order (§4.5 step 3a).
var symbolToCoinGeckoID = map[string]string{
	"ETH": "ethereum", "BTC": "bitcoin", "WETH": "ethereum", "WBTC": "bitcoin",
	"USDC": "usd-coin", "USDT": "tether", "DAI": "dai", "FRAX": "frax", "USDS": "usds",
	"MATIC": "matic-network", "BNB": "binancecoin", "AVAX": "avalanche-2",
	"LINK": "chainlink", "UNI": "uniswap", "AAVE": "aave", "CRV": "curve-dao-token",
	"MKR": "maker", "COMP": "compound-governance-token", "SNX": "havven", "SUSHI": "sushi",
	"1INCH": "1inch", "STETH": "staked-ether", "WSTETH": "wrapped-steth",
	"RETH": "rocket-pool-eth", "CBETH": "coinbase-wrapped-staked-eth", "FRXETH": "frax-ether",
	"SOL": "solana", "WSOL": "solana", "RAY": "raydium", "JUP": "jupiter-exchange-solana",
	"BONK": "bonk", "GRT": "the-graph", "LDO": "lido-dao", "RPL": "rocket-pool",
	"PENDLE": "pendle", "ARB": "arbitrum", "OP": "optimism", "DOGE": "dogecoin",
	"SHIB": "shiba-inu", "PEPE": "pepe", "WLD": "worldcoin-wld", "FET": "fetch-ai",
	"ENA": "ethena", "GHO": "gho", "EIGEN": "eigenlayer", "ANKR": "ankr",
	"BCH": "bitcoin-cash", "FLOW": "flow", "WBETH": "wrapped-beacon-ether", "XRP": "ripple",
}

// resolveCoinGeckoID implements the CoinGecko symbol resolution order
// (§4.5 step 3: static mapping, then heuristic prefix stripping, then
// skip-if-DEBT). Returns "" when the symbol cannot be resolved.
func resolveCoinGeckoID(symbol string) string {
	upper := strings.ToUpper(symbol)

	if id, ok := symbolToCoinGeckoID[upper]; ok {
		return id
	}

	// AETH/C*V3/SP resolve-or-fail outright: a receipt token prefix with no
	// mapped underlying is unresolvable, full stop (matches the original
	// provider's unconditional return for these three prefixes).
	if strings.HasPrefix(upper, "AETH") {
		underlying := upper[4:]
		return lookupEitherPlain(underlying)
	}

	if strings.HasPrefix(upper, "C") && strings.HasSuffix(upper, "V3") {
		underlying := strings.TrimSuffix(strings.TrimPrefix(upper, "C"), "V3")
		return lookupEitherPlain(underlying)
	}

	if strings.HasPrefix(upper, "SP") && len(upper) > 2 {
		underlying := upper[2:]
		return lookupEitherPlain(underlying)
	}

	// Staked-token prefix only short-circuits on a hit; an unmapped
	// underlying falls through to the DEBT check and final failure,
	// rather than failing immediately like the other three prefixes.
	if strings.HasPrefix(upper, "ST") && len(upper) > 2 && upper != "STETH" {
		underlying := upper[2:]
		if id := lookupEitherPlain(underlying); id != "" {
			return id
		}
	}

	if strings.Contains(upper, "DEBT") {
		return ""
	}

	return ""
}

// lookupEitherPlain tries underlying, then "W"+underlying, in
// symbolToCoinGeckoID, returning "" if neither is mapped.
func lookupEitherPlain(underlying string) string {
	if id, ok := symbolToCoinGeckoID[underlying]; ok {
		return id
	}
	if id, ok := symbolToCoinGeckoID["W"+underlying]; ok {
		return id
	}
	return ""
}

// symbolOverridesCC maps protocol receipt/wrapped tokens straight to their
// underlying CryptoCompare symbol.
var symbolOverridesCC = map[string]string{
	"WETH": "ETH", "WBTC": "BTC", "WSOL": "SOL", "WBETH": "ETH",
	"STETH": "ETH", "WSTETH": "ETH", "RETH": "ETH", "CBETH": "ETH", "FRXETH": "ETH",
}

// resolveCryptoCompareSymbol implements CryptoCompare's resolution order:
// direct overrides, then prefix stripping (each of the four prefixes
// returns unconditionally, even empty, once matched — the DEBT check below
// is only reachable for a symbol matching none of them), falling back to
// the bare uppercased symbol rather than failing (§4.5 step 3b;
// CryptoCompare knows most major ticker symbols directly).
func resolveCryptoCompareSymbol(symbol string) string {
	upper := strings.ToUpper(symbol)

	if over, ok := symbolOverridesCC[upper]; ok {
		return over
	}

	strip := func(underlying string) string {
		return strings.TrimPrefix(underlying, "W")
	}

	if strings.HasPrefix(upper, "AETH") {
		u := strip(upper[4:])
		if strings.HasPrefix(u, "LIDO") {
			return "ETH"
		}
		return u
	}
	if strings.HasPrefix(upper, "C") && strings.HasSuffix(upper, "V3") {
		return strip(strings.TrimSuffix(strings.TrimPrefix(upper, "C"), "V3"))
	}
	if strings.HasPrefix(upper, "SP") && len(upper) > 2 {
		return strip(upper[2:])
	}
	if strings.HasPrefix(upper, "ST") && len(upper) > 2 {
		return strip(upper[2:])
	}
	if strings.Contains(upper, "DEBT") {
		return ""
	}

	return upper
}
