package registry

import (
	"context"
	"sync"
)

// SuppressionNoCanonicalPrice is recorded by MarkAggEmitted when a price
// record arrives with no sources used (spec.md §4.1/§4.3).
const SuppressionNoCanonicalPrice = "NO_CANONICAL_PRICE"

type perKeyState struct {
	expected map[Block]map[string]struct{}
	usedAgg  map[Block][]string
	usedRaw  map[Feed]map[string]struct{}

	lastSeenRawTs map[Feed]int64
	lastSeenAggTs map[Block]int64

	// rawSourceLastTs tracks, per feed and source-id, the timestamp of the
	// previous MarkRawSeen call — used purely for non-monotonic detection,
	// independent of the monotonic-max lastSeenRawTs above.
	rawSourceLastTs map[Feed]map[string]int64
	nonMonotonic    map[string]int // source-id -> sticky detection count

	suppressions []Suppression
}

func newPerKeyState() *perKeyState {
	return &perKeyState{
		expected:        make(map[Block]map[string]struct{}),
		usedAgg:         make(map[Block][]string),
		usedRaw:         make(map[Feed]map[string]struct{}),
		lastSeenRawTs:   make(map[Feed]int64),
		lastSeenAggTs:   make(map[Block]int64),
		rawSourceLastTs: make(map[Feed]map[string]int64),
		nonMonotonic:    make(map[string]int),
	}
}

// restore seeds a freshly created perKeyState from a persisted Snapshot.
// rawSourceLastTs is left empty — the non-monotonic detector only needs
// the sticky flags the snapshot already carries in NonMonotonicSources,
// not the individual per-source timestamps that produced them.
func (s *perKeyState) restore(snap Snapshot) {
	for block, srcs := range snap.Expected {
		set := make(map[string]struct{}, len(srcs))
		for _, src := range srcs {
			set[src] = struct{}{}
		}
		s.expected[block] = set
	}
	for block, srcs := range snap.UsedAgg {
		s.usedAgg[block] = append([]string(nil), srcs...)
	}
	for feed, srcs := range snap.UsedRaw {
		set := make(map[string]struct{}, len(srcs))
		for _, src := range srcs {
			set[src] = struct{}{}
		}
		s.usedRaw[feed] = set
	}
	for feed, ts := range snap.LastSeenRawTs {
		if ts != nil {
			s.lastSeenRawTs[feed] = *ts
		}
	}
	for block, ts := range snap.LastSeenAggTs {
		if ts != nil {
			s.lastSeenAggTs[block] = *ts
		}
	}
	s.suppressions = append([]Suppression(nil), snap.Suppressions...)
	for _, src := range snap.NonMonotonicSources {
		s.nonMonotonic[src] = 1
	}
}

// Registry is the Source Registry of spec.md §4.1. Safe for concurrent use;
// callers sharing one Registry across aggregator instances (spec.md §5)
// are responsible for nothing extra — the registry itself serialises.
type Registry struct {
	mu    sync.Mutex
	byKey map[Key]*perKeyState
	store SnapshotStore
}

// New creates an empty Registry. store may be nil, in which case the
// registry is purely in-memory (spec.md §1's default). When store is
// non-nil, a key's state is lazily hydrated from its last persisted
// snapshot the first time that key is touched, and Persist writes the
// current snapshot back out for a caller to call on its own schedule
// (spec.md §5 "Shared resources").
func New(store SnapshotStore) *Registry {
	return &Registry{byKey: make(map[Key]*perKeyState), store: store}
}

func (r *Registry) state(k Key) *perKeyState {
	s, ok := r.byKey[k]
	if ok {
		return s
	}
	s = newPerKeyState()
	r.byKey[k] = s
	if r.store != nil {
		if snap, found, err := r.store.LoadSnapshot(context.Background(), k); err == nil && found {
			s.restore(snap)
		}
	}
	return s
}

// MarkRawSeen inserts sourceId into the raw-seen set for (key, feed),
// advances lastSeenRawTs monotonically, and flags sourceId as non-monotonic
// if ts regresses relative to the previous call for the same source-id on
// this feed.
func (r *Registry) MarkRawSeen(k Key, feed Feed, sourceId string, ts int64) {
	if sourceId == "" {
		sourceId = "unknown"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state(k)

	if s.usedRaw[feed] == nil {
		s.usedRaw[feed] = make(map[string]struct{})
	}
	s.usedRaw[feed][sourceId] = struct{}{}

	if ts > s.lastSeenRawTs[feed] {
		s.lastSeenRawTs[feed] = ts
	}

	if s.rawSourceLastTs[feed] == nil {
		s.rawSourceLastTs[feed] = make(map[string]int64)
	}
	if prev, ok := s.rawSourceLastTs[feed][sourceId]; ok && ts < prev {
		s.nonMonotonic[sourceId]++
	}
	s.rawSourceLastTs[feed][sourceId] = ts
}

// MarkAggEmitted replaces the used-agg set for (key, block) and updates its
// last-seen-agg ts. When block is BlockPrice and sources is empty, it
// instead records a NO_CANONICAL_PRICE suppression and leaves the price
// record untouched (spec.md §4.1, §4.3 rule 1).
func (r *Registry) MarkAggEmitted(k Key, block Block, sources []string, ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state(k)

	if block == BlockPrice && len(sources) == 0 {
		s.suppressions = append(s.suppressions, Suppression{Code: SuppressionNoCanonicalPrice, Ts: ts})
		return
	}

	s.usedAgg[block] = dedupSort(sources)
	s.lastSeenAggTs[block] = ts
}

// RegisterExpected unions sourceId set into the expected set for (key,
// block), deduplicated.
func (r *Registry) RegisterExpected(k Key, block Block, sources []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state(k)

	if s.expected[block] == nil {
		s.expected[block] = make(map[string]struct{})
	}
	for _, src := range sources {
		if src == "" {
			src = "unknown"
		}
		s.expected[block][src] = struct{}{}
	}
}

// RecordSuppression appends a structured suppression entry for key.
func (r *Registry) RecordSuppression(k Key, code string, ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state(k)
	s.suppressions = append(s.suppressions, Suppression{Code: code, Ts: ts})
}

// Snapshot returns an immutable, deterministic view of everything recorded
// for (symbol, marketType) as of bucketTs. bucketTs is accepted (per the
// spec.md §4.1 signature) for callers that want to stamp the snapshot, but
// the registry itself performs no staleness filtering — that is the
// Readiness Evaluator's job.
func (r *Registry) Snapshot(bucketTs int64, symbol, marketType string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := Key{Symbol: symbol, MarketType: marketType}
	s, ok := r.byKey[k]
	if !ok && r.store != nil {
		s, ok = r.state(k), true
	}
	if !ok {
		return Snapshot{
			Symbol:        symbol,
			MarketType:    marketType,
			Expected:      map[Block][]string{},
			UsedAgg:       map[Block][]string{},
			UsedRaw:       map[Feed][]string{},
			LastSeenRawTs: map[Feed]*int64{},
			LastSeenAggTs: map[Block]*int64{},
		}
	}

	out := Snapshot{
		Symbol:        symbol,
		MarketType:    marketType,
		Expected:      map[Block][]string{},
		UsedAgg:       map[Block][]string{},
		UsedRaw:       map[Feed][]string{},
		LastSeenRawTs: map[Feed]*int64{},
		LastSeenAggTs: map[Block]*int64{},
	}

	for block, set := range s.expected {
		list := make([]string, 0, len(set))
		for src := range set {
			list = append(list, src)
		}
		out.Expected[block] = dedupSort(list)
	}
	for block, list := range s.usedAgg {
		out.UsedAgg[block] = dedupSort(append([]string(nil), list...))
	}
	for feed, set := range s.usedRaw {
		list := make([]string, 0, len(set))
		for src := range set {
			list = append(list, src)
		}
		out.UsedRaw[feed] = dedupSort(list)
	}
	for feed, ts := range s.lastSeenRawTs {
		v := ts
		out.LastSeenRawTs[feed] = &v
	}
	for block, ts := range s.lastSeenAggTs {
		v := ts
		out.LastSeenAggTs[block] = &v
	}

	out.Suppressions = append([]Suppression(nil), s.suppressions...)

	nm := make([]string, 0, len(s.nonMonotonic))
	for src, count := range s.nonMonotonic {
		if count > 0 {
			nm = append(nm, src)
		}
	}
	out.NonMonotonicSources = dedupSort(nm)

	return out
}

// Persist writes the current snapshot for (symbol, marketType) through the
// configured SnapshotStore. It is a no-op returning nil when the registry
// was constructed without one — the default, in-memory-only mode.
func (r *Registry) Persist(ctx context.Context, symbol, marketType string) error {
	if r.store == nil {
		return nil
	}
	k := Key{Symbol: symbol, MarketType: marketType}
	snap := r.Snapshot(0, symbol, marketType)
	return r.store.SaveSnapshot(ctx, k, snap)
}
