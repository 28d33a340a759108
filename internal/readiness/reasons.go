package readiness

// ReasonCode enumerates the degraded-reason vocabulary. Values are emitted
// verbatim in MarketDataStatusPayload.DegradedReasons.
type ReasonCode string

const (
	ReasonPriceStale       ReasonCode = "PRICE_STALE"
	ReasonPriceLowConf     ReasonCode = "PRICE_LOW_CONF"
	ReasonFlowLowConf      ReasonCode = "FLOW_LOW_CONF"
	ReasonLiquidityLowConf ReasonCode = "LIQUIDITY_LOW_CONF"
	ReasonDerivLowConf     ReasonCode = "DERIVATIVES_LOW_CONF"
	ReasonWSDisconnected   ReasonCode = "WS_DISCONNECTED"
	ReasonSourcesMissing   ReasonCode = "SOURCES_MISSING"
	ReasonExpectedSrcMissingConfig ReasonCode = "EXPECTED_SOURCES_MISSING_CONFIG"
	ReasonLagTooHigh       ReasonCode = "LAG_TOO_HIGH"
	ReasonGapsDetected     ReasonCode = "GAPS_DETECTED"
	ReasonMismatchDetected ReasonCode = "MISMATCH_DETECTED"
	ReasonNoRefPrice       ReasonCode = "NO_REF_PRICE"
	ReasonNonMonotonicTimebase ReasonCode = "NON_MONOTONIC_TIMEBASE"

	// ReasonNoValidRefPrice is the documented alias for ReasonNoRefPrice
	// per the Open Question in spec.md §9: the relationship between the
	// legacy NO_REF_PRICE and newer NO_VALID_REF_PRICE is ambiguous across
	// test suites, so both names are exposed rather than silently renamed.
	// The evaluator always emits ReasonNoRefPrice; isAliasedNoRefPrice
	// reports whether a given code is either spelling.
	ReasonNoValidRefPrice ReasonCode = "NO_VALID_REF_PRICE"
)

// reasonCanonicalOrder is the one true ordering every degraded-reason list
// is projected through before emission. Never iterate a map of reasons
// directly into a payload.
var reasonCanonicalOrder = []ReasonCode{
	ReasonPriceStale,
	ReasonPriceLowConf,
	ReasonFlowLowConf,
	ReasonLiquidityLowConf,
	ReasonDerivLowConf,
	ReasonWSDisconnected,
	ReasonSourcesMissing,
	ReasonExpectedSrcMissingConfig,
	ReasonLagTooHigh,
	ReasonGapsDetected,
	ReasonMismatchDetected,
	ReasonNoRefPrice,
	ReasonNonMonotonicTimebase,
}

// reasonClass classifies a reason for the hysteresis gate (§4.5).
type reasonClass int

const (
	classSoft reasonClass = iota
	classHard
	classHardFast
)

var reasonClasses = map[ReasonCode]reasonClass{
	ReasonPriceStale:               classHardFast,
	ReasonWSDisconnected:           classHardFast,
	ReasonGapsDetected:             classHardFast,
	ReasonNonMonotonicTimebase:     classHard,
	ReasonExpectedSrcMissingConfig: classHard,
	ReasonSourcesMissing:           classHard,
	ReasonLagTooHigh:               classHard,
	ReasonMismatchDetected:         classHard,
	ReasonNoRefPrice:               classSoft,
	ReasonPriceLowConf:             classSoft,
	ReasonFlowLowConf:              classSoft,
	ReasonLiquidityLowConf:         classSoft,
	ReasonDerivLowConf:             classSoft,
}

func classify(r ReasonCode) reasonClass {
	if c, ok := reasonClasses[r]; ok {
		return c
	}
	return classSoft
}

// isAliasedNoRefPrice reports whether code names the NO_REF_PRICE reason
// under either its legacy or newer documented spelling.
func isAliasedNoRefPrice(code ReasonCode) bool {
	return code == ReasonNoRefPrice || code == ReasonNoValidRefPrice
}

// projectReasons dedupes and orders an unordered reason set through
// reasonCanonicalOrder, producing the deterministic slice every emitted
// payload and every hysteresis ledger walk relies on.
func projectReasons(set map[ReasonCode]bool) []ReasonCode {
	out := make([]ReasonCode, 0, len(set))
	for _, r := range reasonCanonicalOrder {
		if set[r] {
			out = append(out, r)
		}
	}
	return out
}

// lowConfReasonFor maps a block to the *_LOW_CONF reason it contributes
// when its confidence falls short, used both by the per-block rule and by
// the overall-confidence-shortfall rule in §4.4.
func lowConfReasonFor(b Block) ReasonCode {
	switch b {
	case BlockPrice:
		return ReasonPriceLowConf
	case BlockFlow:
		return ReasonFlowLowConf
	case BlockLiquidity:
		return ReasonLiquidityLowConf
	case BlockDerivatives:
		return ReasonDerivLowConf
	default:
		return ""
	}
}
