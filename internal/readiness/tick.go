package readiness

import (
	"sort"

	"github.com/sawpanic/marketready/internal/registry"
)

// evaluateTick is the single entrypoint invoked after every aggregated
// event (spec.md §4.4): it snapshots the registry, computes confidences,
// builds the raw reason set, applies the startup grace window, runs the
// hysteresis gate, updates the minute truth, and emits a payload. Called
// with a.mu already held.
func (a *Aggregator) evaluateTick(bucketTs int64) {
	if a.lastMarketType == "" {
		return // nothing has resolved a tracked market type yet
	}
	symbol, marketType := a.lastSymbol, a.lastMarketType

	snap := a.reg.Snapshot(bucketTs, normalizeSymbol(symbol), marketType)
	expected := a.resolvedExpected(symbol, marketType)

	blockConf := a.blockConfidence(bucketTs, expected)
	overall := a.overallConfidence(blockConf)

	raw := a.buildRawReasons(bucketTs, symbol, marketType, blockConf, overall, snap, expected)
	a.updateMinuteTruth(bucketTs, raw)

	withinGrace := a.cfg.StartupGraceWindowMs > 0 && bucketTs-a.startedAtTs < a.cfg.StartupGraceWindowMs
	graced := applyStartupGrace(raw, withinGrace)

	effective, activeSince := a.gate.Tick(graced, bucketTs)
	degraded := len(effective) > 0

	a.clearTransients()

	warmingProgress, warmingUp := a.warmingState(bucketTs)

	payload := MarketDataStatusPayload{
		OverallConfidence: overall,
		BlockConfidence:   blockConf,
		Degraded:          degraded,
		DegradedReasons:   effective,

		WarmingUp:       warmingUp,
		WarmingProgress: warmingProgress,
		WarmingWindowMs: a.cfg.WarmingWindowMs,

		ActiveSources:   distinctAggSourceCount(snap.UsedAgg),
		ExpectedSources: a.cfg.ExpectedSources,

		ActiveSourcesAgg:   toReadinessBlockMap(snap.UsedAgg),
		ExpectedSourcesAgg: expected,
		ActiveSourcesRaw:   rawSourcesByFeedName(snap.UsedRaw),
		ExpectedSourcesRaw: a.expectedSourcesRaw(expected),

		LastBucketTs: bucketTs,
		Meta:         PayloadMeta{Ts: bucketTs},

		Symbol:     normalizeSymbol(symbol),
		MarketType: marketType,

		WorstStatusInMinute: a.minuteWorst,
		ReasonsInMinute:     projectReasons(a.minuteReasons),

		ReasonActiveSinceTs: activeSince,
	}

	a.emit.Emit(payload)
}

// buildRawReasons constructs the pre-grace, pre-hysteresis reason set for
// one tick (spec.md §4.4's rule list).
func (a *Aggregator) buildRawReasons(bucketTs int64, symbol, marketType string, blockConf BlockConfidenceSet, overall float64, snap registry.Snapshot, expected map[Block][]string) map[ReasonCode]bool {
	raw := make(map[ReasonCode]bool)

	priceRec, priceOk := a.cache[keyPrice]
	priceOnBucket := priceOk && a.clock.BucketEndTs(priceRec.ts) == bucketTs

	if a.cfg.CriticalBlocks[BlockPrice] && len(expected[BlockPrice]) > 0 && !priceOnBucket {
		raw[ReasonPriceStale] = true
	}

	for _, b := range blockOrder {
		if len(expected[b]) == 0 {
			continue
		}
		// PRICE_LOW_CONF additionally requires an on-bucket price record
		// (spec.md §4.4); PRICE_STALE already covers the off-bucket case so
		// the two reasons don't double up for the same underlying cause.
		if b == BlockPrice && !priceOnBucket {
			continue
		}
		if blockConf.get(b) < a.cfg.Thresholds.CriticalBlock {
			raw[lowConfReasonFor(b)] = true
		}
	}

	if a.conn.Degraded() {
		raw[ReasonWSDisconnected] = true
	}

	if a.cfg.ExpectedSources > 0 && distinctAggSourceCount(snap.UsedAgg) < a.cfg.ExpectedSources {
		raw[ReasonSourcesMissing] = true
	}

	if a.anyRawSeen(snap) && a.anyBlockMissingConfig(symbol, marketType) {
		raw[ReasonExpectedSrcMissingConfig] = true
		a.warnMissingConfigOnce(symbol, marketType)
	}

	anyLag := a.anyTransient(a.transientLag)
	if a.cfg.NoDataWindowMs > 0 {
		if bucketTs-maxLastSeenRawTs(snap.LastSeenRawTs) > a.cfg.NoDataWindowMs {
			anyLag = true
		}
	}
	if anyLag {
		raw[ReasonLagTooHigh] = true
	}

	if a.anyTransient(a.transientGap) {
		raw[ReasonGapsDetected] = true
	}

	if a.anyTransient(a.transientMismatch) {
		if priceOnBucket && blockConf.Price >= a.cfg.Thresholds.CriticalBlock {
			raw[ReasonMismatchDetected] = true
		} else {
			raw[ReasonNoRefPrice] = true
		}
	}

	if len(snap.NonMonotonicSources) > 0 {
		raw[ReasonNonMonotonicTimebase] = true
	}

	if overall < a.cfg.Thresholds.Overall {
		if b := lowestCriticalBlock(blockConf, a.cfg.CriticalBlocks); b != "" {
			raw[lowConfReasonFor(b)] = true
		}
	}

	return raw
}

func (a *Aggregator) anyTransient(m map[Block]bool) bool {
	for _, v := range m {
		if v {
			return true
		}
	}
	return false
}

func (a *Aggregator) clearTransients() {
	for b := range a.transientGap {
		delete(a.transientGap, b)
	}
	for b := range a.transientLag {
		delete(a.transientLag, b)
	}
	for b := range a.transientMismatch {
		delete(a.transientMismatch, b)
	}
}

// resolvedExpected resolves every block's expected source list straight
// from config (spec.md §4.2's Expected-Sources Resolver), independent of
// whether the registry has observed an event for that block yet — a block
// that is configured as expected but has never once arrived must still be
// seen as "expected" so PRICE_STALE and friends can fire for it. Lists are
// sorted lexicographically (spec.md §8) since config authors aren't
// required to pre-sort them, unlike the registry's own snapshot lists.
func (a *Aggregator) resolvedExpected(symbol, marketType string) map[Block][]string {
	out := make(map[Block][]string, len(blockOrder))
	for _, b := range blockOrder {
		if v, found := resolveExpectedSources(a.cfg, symbol, marketType, b); found {
			sorted := append([]string(nil), v...)
			sort.Strings(sorted)
			out[b] = sorted
		}
	}
	return out
}

func (a *Aggregator) anyBlockMissingConfig(symbol, marketType string) bool {
	for _, b := range blockOrder {
		if _, found := resolveExpectedSources(a.cfg, symbol, marketType, b); !found {
			return true
		}
	}
	return false
}

func (a *Aggregator) anyRawSeen(snap registry.Snapshot) bool {
	for _, ids := range snap.UsedRaw {
		if len(ids) > 0 {
			return true
		}
	}
	return false
}

func (a *Aggregator) warnMissingConfigOnce(symbol, marketType string) {
	k := symbol + "|" + marketType
	if a.warnedMissingConfig[k] {
		return
	}
	a.warnedMissingConfig[k] = true
	a.log.Warn("expected sources config missing", map[string]any{
		"symbol":     symbol,
		"marketType": marketType,
	})
}

// warmingState implements spec.md §4.4's warming progress: clamp((bucketTs
// - firstBucketTs) / warmingWindowMs, 0, 1); warmingUp is true while
// progress < 1.
func (a *Aggregator) warmingState(bucketTs int64) (progress float64, warmingUp bool) {
	if a.cfg.WarmingWindowMs <= 0 {
		return 1, false
	}
	start := bucketTs
	if a.firstBucketTs != nil {
		start = *a.firstBucketTs
	}
	elapsed := bucketTs - start
	if elapsed < 0 {
		elapsed = 0
	}
	progress = float64(elapsed) / float64(a.cfg.WarmingWindowMs)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}
	return progress, progress < 1
}

// expectedSourcesRaw back-fills the payload's feed-level expected-sources
// projection from the block-level expected config, per the feed -> block
// mapping (trades -> flow, orderbook -> liquidity, oi/funding ->
// derivatives, klines/markPrice/indexPrice -> price) held in feedBlock in
// aggregator.go: the wire protocol names no raw-level registration path,
// so this is derived rather than independently tracked.
func (a *Aggregator) expectedSourcesRaw(expectedAgg map[Block][]string) map[string][]string {
	out := make(map[string][]string, len(feedBlock))
	for feed, block := range feedBlock {
		out[string(feed)] = expectedAgg[block]
	}
	return out
}
