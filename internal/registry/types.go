// Package registry implements the Source Registry component of spec.md
// §4.1: it records which source-ids produced which feeds/metrics and when,
// and exposes deterministic, immutable per-tick snapshots. It has no
// dependency on the readiness package so it can be shared across
// aggregator instances by an injecting caller (spec.md §5 "Shared
// resources").
package registry

import "sort"

// Block mirrors readiness.Block without importing it, to keep this package
// leaf-level per the teacher's internal/ layering (domain packages never
// import application-layer packages). The two are kept in lockstep by the
// aggregator wiring layer.
type Block string

const (
	BlockPrice       Block = "price"
	BlockFlow        Block = "flow"
	BlockLiquidity   Block = "liquidity"
	BlockDerivatives Block = "derivatives"
)

// Feed enumerates the raw-event feed identifiers tracked independently of
// the aggregated blocks (spec.md §3, Registry snapshot: "feed ∈ {trades,
// orderbook, oi, funding, klines, markPrice, indexPrice}").
type Feed string

const (
	FeedTrades     Feed = "trades"
	FeedOrderbook  Feed = "orderbook"
	FeedOI         Feed = "oi"
	FeedFunding    Feed = "funding"
	FeedKlines     Feed = "klines"
	FeedMarkPrice  Feed = "markPrice"
	FeedIndexPrice Feed = "indexPrice"
)

// Key identifies one (symbol, marketType) tracking unit. All registry state
// is partitioned by Key.
type Key struct {
	Symbol     string
	MarketType string
}

// Suppression is a structured suppression audit entry (spec.md §4.1
// recordSuppression). Entries are retained in insertion order, which is
// already deterministic — no sort is applied to this slice.
type Suppression struct {
	Code string
	Ts   int64
}

// Snapshot is the immutable per-tick record returned by Snapshot(). Every
// source-id list is deduplicated and sorted lexicographically (spec.md §3);
// Suppressions stays in insertion order.
type Snapshot struct {
	Symbol     string
	MarketType string

	Expected map[Block][]string
	UsedAgg  map[Block][]string
	UsedRaw  map[Feed][]string

	LastSeenRawTs map[Feed]*int64
	LastSeenAggTs map[Block]*int64

	Suppressions []Suppression

	// NonMonotonicSources lists source-ids currently flagged by the sticky
	// non-monotonic detector for this key, sorted lexicographically.
	NonMonotonicSources []string
}

func dedupSort(in []string) []string {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s == "" {
			s = "unknown"
		}
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
