package readiness

import (
	"math"

	"github.com/sawpanic/marketready/internal/registry"
)

// clampConfidence normalises a possibly-nil, possibly out-of-range or
// non-finite confidence pointer into [0,1], defaulting to 0 (spec.md §4.4:
// "missing or non-finite confidence is treated as 0").
func clampConfidence(c *float64) float64 {
	if c == nil {
		return 0
	}
	v := *c
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// confidenceValue reads the confidence-cache entry for key, applying the
// per-family stale window (spec.md §3 Confidence cache). A missing or
// stale entry reads as 0.
func (a *Aggregator) confidenceValue(key string, bucketTs int64) float64 {
	rec, ok := a.cache[key]
	if !ok {
		return 0
	}
	threshold := a.cfg.ConfidenceStaleWindowMs
	if isDerivativesKey(key) {
		threshold = a.cfg.DerivativesStaleWindowMs
	}
	if bucketTs-rec.ts > threshold {
		return 0
	}
	return clampConfidence(rec.confidence)
}

func (a *Aggregator) minConfidence(bucketTs int64, keys []string) float64 {
	min := 1.0
	for _, k := range keys {
		if v := a.confidenceValue(k, bucketTs); v < min {
			min = v
		}
	}
	return min
}

// fallbackMinConfidence implements the "neither sub-kind enabled" escape
// hatch: min() over whatever of candidates is actually cached, ignoring
// keys never observed. Returns 0 if nothing is cached at all.
func (a *Aggregator) fallbackMinConfidence(bucketTs int64, candidates []string) float64 {
	have := false
	min := 1.0
	for _, k := range candidates {
		if _, ok := a.cache[k]; !ok {
			continue
		}
		have = true
		if v := a.confidenceValue(k, bucketTs); v < min {
			min = v
		}
	}
	if !have {
		return 0
	}
	return min
}

// blockConfidence computes the four block confidences for one tick
// (spec.md §4.4).
func (a *Aggregator) blockConfidence(bucketTs int64, expected map[Block][]string) BlockConfidenceSet {
	var out BlockConfidenceSet

	if len(expected[BlockPrice]) == 0 {
		out.Price = 1
	} else {
		out.Price = a.confidenceValue(keyPrice, bucketTs)
	}

	if len(expected[BlockLiquidity]) == 0 {
		out.Liquidity = 1
	} else {
		out.Liquidity = a.confidenceValue(keyLiquidity, bucketTs)
	}

	if len(expected[BlockFlow]) == 0 {
		out.Flow = 1
	} else {
		var enabled []string
		if a.cfg.ExpectedFlowTypes["spot"] {
			enabled = append(enabled, keyFlowSpot)
		}
		if a.cfg.ExpectedFlowTypes["futures"] {
			enabled = append(enabled, keyFlowFutures)
		}
		if len(enabled) == 0 {
			out.Flow = a.fallbackMinConfidence(bucketTs, []string{keyFlowSpot, keyFlowFutures})
		} else {
			out.Flow = a.minConfidence(bucketTs, enabled)
		}
	}

	if len(expected[BlockDerivatives]) == 0 {
		out.Derivatives = 1
	} else {
		var enabled []string
		if a.cfg.ExpectedDerivativeKinds["oi"] {
			enabled = append(enabled, keyDerivativesOI)
		}
		if a.cfg.ExpectedDerivativeKinds["funding"] {
			enabled = append(enabled, keyDerivativesFunding)
		}
		if a.cfg.ExpectedDerivativeKinds["liquidations"] {
			enabled = append(enabled, keyDerivativesLiq)
		}
		if len(enabled) == 0 {
			out.Derivatives = a.fallbackMinConfidence(bucketTs, []string{keyDerivativesOI, keyDerivativesFunding, keyDerivativesLiq})
		} else {
			out.Derivatives = a.minConfidence(bucketTs, enabled)
		}
	}

	return out
}

// overallConfidence applies the weighted, critical-renormalised fusion of
// spec.md §3/§4.4.
func (a *Aggregator) overallConfidence(blockConf BlockConfidenceSet) float64 {
	weights := normalizedWeights(a.cfg.Weights, a.cfg.CriticalBlocks)
	sum := 0.0
	for _, b := range blockOrder {
		sum += weights[b] * blockConf.get(b)
	}
	if sum < 0 {
		sum = 0
	}
	if sum > 1 {
		sum = 1
	}
	return sum
}

// lowestCriticalBlock returns the critical block with the lowest
// confidence, ties broken by blockOrder (which already matches the
// canonical *_LOW_CONF ordering). Returns "" if no block is critical.
func lowestCriticalBlock(blockConf BlockConfidenceSet, critical map[Block]bool) Block {
	best := Block("")
	bestVal := math.Inf(1)
	for _, b := range blockOrder {
		if !critical[b] {
			continue
		}
		v := blockConf.get(b)
		if v < bestVal {
			bestVal = v
			best = b
		}
	}
	return best
}

func distinctAggSourceCount(usedAgg map[registry.Block][]string) int {
	set := make(map[string]struct{})
	for _, list := range usedAgg {
		for _, s := range list {
			set[s] = struct{}{}
		}
	}
	return len(set)
}

func maxLastSeenRawTs(lastSeenRawTs map[registry.Feed]*int64) int64 {
	var max int64
	for _, ts := range lastSeenRawTs {
		if ts != nil && *ts > max {
			max = *ts
		}
	}
	return max
}

var gracedExempt = map[ReasonCode]bool{
	ReasonGapsDetected:             true,
	ReasonExpectedSrcMissingConfig: true,
	ReasonNonMonotonicTimebase:     true,
}

// applyStartupGrace drops every non-exempt reason while still inside the
// startup grace window (spec.md §4.4/§8).
func applyStartupGrace(raw map[ReasonCode]bool, withinGrace bool) map[ReasonCode]bool {
	if !withinGrace {
		return raw
	}
	out := make(map[ReasonCode]bool, len(raw))
	for code := range raw {
		if gracedExempt[code] {
			out[code] = true
		}
	}
	return out
}

func minuteStartOf(tsMs int64) int64 {
	const minuteMs = 60 * 1000
	if tsMs < 0 {
		return 0
	}
	return (tsMs / minuteMs) * minuteMs
}

// updateMinuteTruth folds the raw (pre-grace, pre-hysteresis) reason set
// for this tick into the current UTC-minute bucket (spec.md §4.4 "minute
// truth": worst status plus the union of raw reasons, never smoothed by
// hysteresis).
func (a *Aggregator) updateMinuteTruth(bucketTs int64, raw map[ReasonCode]bool) {
	start := minuteStartOf(bucketTs)
	if start != a.currentMinuteStart {
		a.currentMinuteStart = start
		a.minuteWorst = "READY"
		a.minuteReasons = make(map[ReasonCode]bool)
	}
	if len(raw) > 0 {
		a.minuteWorst = "DEGRADED"
	}
	for code := range raw {
		a.minuteReasons[code] = true
	}
}
