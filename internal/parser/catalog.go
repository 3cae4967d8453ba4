package parser

// ByName looks up a protocol parser by the string its Name() method
// returns, so callers wiring config.ProtocolCfg rows onto a Registry
// don't need a type switch over every protocol file.
func ByName(name string) (Parser, bool) {
	switch name {
	case "aave_v3":
		return AaveV3{}, true
	case "uniswap_v3_router":
		return UniswapV3Router{}, true
	case "uniswap_v3_lp":
		return UniswapV3PositionManager{}, true
	case "curve":
		return Curve{}, true
	case "lido_stake":
		return LidoStake{}, true
	case "lido_wrap":
		return LidoWrap{}, true
	case "morpho_blue":
		return MorphoBlue{}, true
	case "metamorpho":
		return MetaMorpho{}, true
	case "pancakeswap_v3":
		return PancakeSwapV3{}, true
	case "pendle_router":
		return PendleRouter{}, true
	case "pendle_sy":
		return PendleSY{}, true
	case "pendle_yield":
		return PendleYieldClaim{}, true
	default:
		return nil, false
	}
}
