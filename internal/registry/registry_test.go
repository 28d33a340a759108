package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory SnapshotStore stand-in, letting the persist/
// restore seam be tested without a real Redis instance.
type fakeStore struct {
	byKey map[Key]Snapshot
}

func newFakeStore() *fakeStore { return &fakeStore{byKey: make(map[Key]Snapshot)} }

func (f *fakeStore) SaveSnapshot(_ context.Context, key Key, snap Snapshot) error {
	f.byKey[key] = snap
	return nil
}

func (f *fakeStore) LoadSnapshot(_ context.Context, key Key) (Snapshot, bool, error) {
	snap, ok := f.byKey[key]
	return snap, ok, nil
}

func TestSnapshot_DeterministicOrdering(t *testing.T) {
	r := New(nil)
	k := Key{Symbol: "BTC-USD", MarketType: "spot"}

	r.RegisterExpected(k, BlockPrice, []string{"binance", "coinbase"})
	r.RegisterExpected(k, BlockPrice, []string{"coinbase", "kraken"})
	r.MarkAggEmitted(k, BlockPrice, []string{"kraken", "binance", "binance"}, 1000)
	r.MarkRawSeen(k, FeedTrades, "kraken", 900)
	r.MarkRawSeen(k, FeedTrades, "binance", 950)

	snap := r.Snapshot(1000, k.Symbol, k.MarketType)
	assert.Equal(t, []string{"binance", "coinbase", "kraken"}, snap.Expected[BlockPrice])
	assert.Equal(t, []string{"binance", "kraken"}, snap.UsedAgg[BlockPrice])
	assert.Equal(t, []string{"binance", "kraken"}, snap.UsedRaw[FeedTrades])

	// Insertion order shouldn't matter — a fresh registry populated in the
	// reverse order must produce byte-identical sorted slices.
	r2 := New(nil)
	r2.RegisterExpected(k, BlockPrice, []string{"kraken"})
	r2.RegisterExpected(k, BlockPrice, []string{"coinbase", "binance"})
	r2.MarkAggEmitted(k, BlockPrice, []string{"binance", "kraken"}, 1000)
	snap2 := r2.Snapshot(1000, k.Symbol, k.MarketType)
	assert.Equal(t, snap.Expected[BlockPrice], snap2.Expected[BlockPrice])
	assert.Equal(t, snap.UsedAgg[BlockPrice], snap2.UsedAgg[BlockPrice])
}

func TestMarkAggEmitted_PriceEmptySourcesSuppressesNotUpdates(t *testing.T) {
	r := New(nil)
	k := Key{Symbol: "ETH-USD", MarketType: "spot"}

	r.MarkAggEmitted(k, BlockPrice, []string{"binance"}, 1000)
	r.MarkAggEmitted(k, BlockPrice, nil, 2000)

	snap := r.Snapshot(2000, k.Symbol, k.MarketType)
	require.Contains(t, snap.UsedAgg, BlockPrice)
	assert.Equal(t, []string{"binance"}, snap.UsedAgg[BlockPrice])
	lastTs := snap.LastSeenAggTs[BlockPrice]
	require.NotNil(t, lastTs)
	assert.Equal(t, int64(1000), *lastTs)

	require.Len(t, snap.Suppressions, 1)
	assert.Equal(t, SuppressionNoCanonicalPrice, snap.Suppressions[0].Code)
	assert.Equal(t, int64(2000), snap.Suppressions[0].Ts)
}

func TestMarkRawSeen_NonMonotonicDetection(t *testing.T) {
	r := New(nil)
	k := Key{Symbol: "BTC-USD", MarketType: "futures"}

	r.MarkRawSeen(k, FeedTrades, "okx", 1000)
	r.MarkRawSeen(k, FeedTrades, "okx", 900) // regresses -> flagged
	r.MarkRawSeen(k, FeedTrades, "bybit", 1100)

	snap := r.Snapshot(1100, k.Symbol, k.MarketType)
	assert.Equal(t, []string{"okx"}, snap.NonMonotonicSources)

	// lastSeenRawTs stays the per-feed monotonic max regardless of the
	// regression (bybit's 1100 is the newest trades timestamp).
	lastTs := snap.LastSeenRawTs[FeedTrades]
	require.NotNil(t, lastTs)
	assert.Equal(t, int64(1100), *lastTs)

	// Sticky: a later snapshot still reports it without re-triggering.
	r.MarkRawSeen(k, FeedTrades, "bybit", 1200)
	snap2 := r.Snapshot(1200, k.Symbol, k.MarketType)
	assert.Equal(t, []string{"okx"}, snap2.NonMonotonicSources)
}

func TestMarkRawSeen_EmptySourceIdBecomesUnknown(t *testing.T) {
	r := New(nil)
	k := Key{Symbol: "SOL-USD", MarketType: "spot"}
	r.MarkRawSeen(k, FeedTrades, "", 1000)
	snap := r.Snapshot(1000, k.Symbol, k.MarketType)
	assert.Equal(t, []string{"unknown"}, snap.UsedRaw[FeedTrades])
}

func TestSnapshot_UnknownKeyReturnsEmptyNotNil(t *testing.T) {
	r := New(nil)
	snap := r.Snapshot(1000, "NOPE", "spot")
	assert.NotNil(t, snap.Expected)
	assert.NotNil(t, snap.UsedAgg)
	assert.Empty(t, snap.NonMonotonicSources)
}

func TestPersist_NoStoreIsNoop(t *testing.T) {
	r := New(nil)
	k := Key{Symbol: "BTC-USD", MarketType: "spot"}
	r.MarkAggEmitted(k, BlockPrice, []string{"binance"}, 1000)
	assert.NoError(t, r.Persist(context.Background(), k.Symbol, k.MarketType))
}

func TestPersist_WritesThroughStore(t *testing.T) {
	store := newFakeStore()
	r := New(store)
	k := Key{Symbol: "BTC-USD", MarketType: "spot"}

	r.RegisterExpected(k, BlockPrice, []string{"binance", "coinbase"})
	r.MarkAggEmitted(k, BlockPrice, []string{"binance"}, 1000)
	require.NoError(t, r.Persist(context.Background(), k.Symbol, k.MarketType))

	saved, ok := store.byKey[k]
	require.True(t, ok)
	assert.Equal(t, []string{"binance", "coinbase"}, saved.Expected[BlockPrice])
}

func TestNew_HydratesStateFromPersistedSnapshot(t *testing.T) {
	store := newFakeStore()
	k := Key{Symbol: "ETH-USD", MarketType: "futures"}
	ts := int64(5000)
	store.byKey[k] = Snapshot{
		Symbol:              k.Symbol,
		MarketType:          k.MarketType,
		Expected:            map[Block][]string{BlockPrice: {"binance", "coinbase"}},
		UsedAgg:             map[Block][]string{BlockPrice: {"binance"}},
		UsedRaw:             map[Feed][]string{},
		LastSeenAggTs:       map[Block]*int64{BlockPrice: &ts},
		LastSeenRawTs:       map[Feed]*int64{},
		NonMonotonicSources: []string{"kraken"},
	}

	r := New(store)
	snap := r.Snapshot(6000, k.Symbol, k.MarketType)

	assert.Equal(t, []string{"binance", "coinbase"}, snap.Expected[BlockPrice])
	assert.Equal(t, []string{"binance"}, snap.UsedAgg[BlockPrice])
	require.NotNil(t, snap.LastSeenAggTs[BlockPrice])
	assert.Equal(t, int64(5000), *snap.LastSeenAggTs[BlockPrice])
	assert.Equal(t, []string{"kraken"}, snap.NonMonotonicSources)

	// A second access for the same key must not re-load from the store —
	// state() only hydrates once, on first creation.
	store.byKey[k] = Snapshot{}
	snap2 := r.Snapshot(6000, k.Symbol, k.MarketType)
	assert.Equal(t, []string{"binance", "coinbase"}, snap2.Expected[BlockPrice])
}
