package readiness

// EventMeta carries the fields common to every inbound event payload.
type EventMeta struct {
	Ts         int64
	StreamId   string
	MarketType string
}

// AggregatedBlockEvent is the common shape for every aggregated block
// event spec.md §6 lists (market:price_canonical, market:cvd_spot_agg,
// market:cvd_futures_agg, market:liquidity_agg, market:oi_agg,
// market:funding_agg, market:liquidations_agg), per the "polymorphic
// aggregated record" Design Note in §9: rather than one type per topic,
// ingest handlers up-cast whatever they receive into this struct before
// updating state.
type AggregatedBlockEvent struct {
	Symbol              string
	Meta                EventMeta
	Confidence          *float64 // nil = undefined
	SourcesUsed         []string
	StaleSourcesDropped bool
	MismatchDetected    bool
}

// RawEvent is the common shape for every raw exchange-level observation
// spec.md §6 lists (market:trade, market:orderbook_l2_snapshot,
// market:orderbook_l2_delta, market:oi, market:funding, market:ticker,
// market:kline). Only Symbol, Meta, and SourceId ever matter to the
// registry — the rest of each wire payload is a producer concern outside
// this module's scope (spec.md §1).
type RawEvent struct {
	Symbol   string
	Meta     EventMeta
	SourceId string
}

// ConnectedEvent / DisconnectedEvent back market:connected /
// market:disconnected.
type ConnectedEvent struct{ Meta EventMeta }
type DisconnectedEvent struct{ Meta EventMeta }

// ConfidenceEvent backs the externally published data:confidence topic,
// keyed into the confidence cache by Topic (spec.md §3 Confidence cache).
type ConfidenceEvent struct {
	Symbol          string
	Meta            EventMeta
	Topic           string
	ConfidenceScore float64
	MismatchDetected bool
	SourcesUsed     []string
}

// MismatchEvent / GapEvent / OutOfOrderEvent back data:mismatch,
// data:gapDetected, data:outOfOrder respectively. Block is optional
// (empty string routes the signal to every tracked block, per spec.md §4.5
// "Rules... gated by... any block's transient flag").
type MismatchEvent struct {
	Symbol string
	Meta   EventMeta
	Block  string
}

type GapEvent struct {
	Symbol string
	Meta   EventMeta
	Block  string
}

// OutOfOrderEvent sets the "lag" transient flag (spec.md §5: "Out-of-order
// timestamps within a topic are tolerated (they raise the lag or non-
// monotonic-timebase signals) but never crash the aggregator").
type OutOfOrderEvent struct {
	Symbol string
	Meta   EventMeta
	Block  string
}
