package readiness

import (
	"strings"

	"github.com/sawpanic/marketready/internal/registry"
)

// blockRecord is the per-block / per-confidence-cache-key aggregated
// record of spec.md §3: "written by the ingest handler for that block on
// each aggregated event; superseded (not accumulated) by the next record
// for the same block."
type blockRecord struct {
	ts                  int64
	confidence          *float64
	sourcesUsed         []string
	staleSourcesDropped bool
	mismatchDetected    bool
}

// confidenceCacheKeys enumerates every key the confidence cache may be
// addressed by, beyond the free-form topics ConfidenceEvent can introduce.
const (
	keyPrice              = "price"
	keyLiquidity          = "liquidity"
	keyFlowSpot           = "flow_spot"
	keyFlowFutures        = "flow_futures"
	keyDerivativesOI      = "derivatives_oi"
	keyDerivativesFunding = "derivatives_funding"
	keyDerivativesLiq     = "derivatives_liquidations"
)

func isDerivativesKey(key string) bool {
	return strings.HasPrefix(key, "derivatives_")
}

// blockForCacheKey maps a confidence-cache key back to the coarse block it
// feeds, used to route transient gap/lag/mismatch flags and registry
// updates.
func blockForCacheKey(key string) Block {
	switch key {
	case keyPrice:
		return BlockPrice
	case keyLiquidity:
		return BlockLiquidity
	case keyFlowSpot, keyFlowFutures:
		return BlockFlow
	case keyDerivativesOI, keyDerivativesFunding, keyDerivativesLiq:
		return BlockDerivatives
	default:
		return ""
	}
}

// ingestAggregated handles one aggregated block event for the given
// confidence-cache key, implementing spec.md §4.3 steps 1-4.
func (a *Aggregator) ingestAggregated(key string, ev AggregatedBlockEvent) {
	block := blockForCacheKey(key)

	if block == BlockPrice && len(ev.SourcesUsed) == 0 {
		a.recordSuppression(ev, registry.SuppressionNoCanonicalPrice)
		return
	}

	a.cache[key] = &blockRecord{
		ts:                  ev.Meta.Ts,
		confidence:          ev.Confidence,
		sourcesUsed:         append([]string(nil), ev.SourcesUsed...),
		staleSourcesDropped: ev.StaleSourcesDropped,
		mismatchDetected:    ev.MismatchDetected,
	}
	if ev.MismatchDetected {
		a.transientMismatch[block] = true
	}

	marketType := a.trackedMarketType(ev.Meta)
	if marketType != "" {
		a.registerAndMarkAgg(ev.Symbol, marketType, block, ev.SourcesUsed, ev.Meta.Ts)
		a.lastSymbol = ev.Symbol
		a.lastMarketType = marketType
	}

	a.conn.OnDataFlow(ev.Meta.Ts)

	bucketTs := a.clock.BucketEndTs(ev.Meta.Ts)
	a.advanceBucket(bucketTs)
	a.evaluateTick(bucketTs)
}

// ingestRaw handles one raw exchange-level event: registry-only update,
// advances WS recovery, never triggers a tick (spec.md §4.3 "For raw
// events").
func (a *Aggregator) ingestRaw(feed registry.Feed, ev RawEvent) {
	marketType := a.trackedMarketType(ev.Meta)
	if marketType != "" {
		a.reg.MarkRawSeen(regKey(ev.Symbol, marketType), feed, ev.SourceId, ev.Meta.Ts)
	}
	a.conn.OnDataFlow(ev.Meta.Ts)
}

func (a *Aggregator) recordSuppression(ev AggregatedBlockEvent, code string) {
	marketType := a.trackedMarketType(ev.Meta)
	if marketType == "" {
		return
	}
	a.reg.RecordSuppression(regKey(ev.Symbol, marketType), code, ev.Meta.Ts)
}

func (a *Aggregator) registerAndMarkAgg(symbol, marketType string, block Block, sources []string, ts int64) {
	k := regKey(symbol, marketType)
	if expected, found := resolveExpectedSources(a.cfg, symbol, marketType, block); found {
		a.reg.RegisterExpected(k, regBlock(block), expected)
	}
	a.reg.MarkAggEmitted(k, regBlock(block), sources, ts)
}

// ingestConfidence handles an externally-published data:confidence event,
// caching it under its own Topic key (spec.md §3 Confidence cache).
func (a *Aggregator) ingestConfidence(ev ConfidenceEvent) {
	v := ev.ConfidenceScore
	a.cache[ev.Topic] = &blockRecord{
		ts:               ev.Meta.Ts,
		confidence:       &v,
		sourcesUsed:      append([]string(nil), ev.SourcesUsed...),
		mismatchDetected: ev.MismatchDetected,
	}
	if ev.MismatchDetected {
		if b := blockForCacheKey(ev.Topic); b != "" {
			a.transientMismatch[b] = true
		}
	}
}

// ingestMismatch handles a data:mismatch quality signal, setting the
// transient mismatch flag for the named block (or every tracked block when
// Block is empty).
func (a *Aggregator) ingestMismatch(ev MismatchEvent) {
	a.applyToBlocks(ev.Block, func(b Block) { a.transientMismatch[b] = true })
}

// ingestGap handles a data:gapDetected quality signal.
func (a *Aggregator) ingestGap(ev GapEvent) {
	a.applyToBlocks(ev.Block, func(b Block) { a.transientGap[b] = true })
}

// ingestOutOfOrder handles a data:outOfOrder quality signal, raising the
// transient "lag" flag (spec.md §5: out-of-order timestamps raise lag or
// non-monotonic-timebase signals).
func (a *Aggregator) ingestOutOfOrder(ev OutOfOrderEvent) {
	a.applyToBlocks(ev.Block, func(b Block) { a.transientLag[b] = true })
}

func (a *Aggregator) applyToBlocks(name string, fn func(Block)) {
	if name == "" {
		for _, b := range blockOrder {
			fn(b)
		}
		return
	}
	fn(Block(name))
}

// trackedMarketType returns the normalised market type for meta, or "" if
// market-type tracking (spec.md §4.6) excludes this event.
func (a *Aggregator) trackedMarketType(meta EventMeta) string {
	mt := normalizeMarketType(meta.MarketType, meta.StreamId)
	if a.cfg.TargetMarketType != "" && mt != a.cfg.TargetMarketType {
		return ""
	}
	return mt
}

// normalizeMarketType implements spec.md §4.6's market-type inference:
// explicit field wins; otherwise infer from streamId vendor convention;
// otherwise "unknown".
func normalizeMarketType(explicit, streamId string) string {
	if explicit != "" {
		return explicit
	}
	s := strings.ToLower(streamId)
	switch {
	case strings.Contains(s, "usdm"), strings.Contains(s, "coinm"), strings.Contains(s, "linear"), strings.Contains(s, "inverse"):
		return "futures"
	case strings.Contains(s, "spot"):
		return "spot"
	default:
		return "unknown"
	}
}

// normalizeSymbol implements the empty/unknown-symbol default from
// spec.md §4.6.
func normalizeSymbol(symbol string) string {
	if symbol == "" {
		return "UNKNOWN"
	}
	return symbol
}
