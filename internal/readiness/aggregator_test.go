package readiness

import (
	"testing"

	"github.com/sawpanic/marketready/internal/bus"
	"github.com/sawpanic/marketready/internal/registry"
)

func zeroWindowConfig() Config {
	c := DefaultConfig()
	c.BucketMs = 1000
	c.StartupGraceWindowMs = 0
	c.HardFastReasonEnterWindowMs = 0
	c.HardReasonEnterWindowMs = 0
	c.HardReasonExitWindowMs = 0
	c.SoftReasonEnterWindowMs = 0
	c.SoftReasonExitWindowMs = 0
	c.WSRecoveryWindowMs = 1000
	c.ExpectedSourcesByBlock = map[Block][]string{
		BlockPrice: {"binance", "coinbase"},
	}
	return c
}

func conf(v float64) *float64 { return &v }

func newHarness(cfg Config) (*bus.MemoryBus, *Aggregator, *[]MarketDataStatusPayload) {
	b := bus.NewMemoryBus()
	reg := registry.New(nil)
	var captured []MarketDataStatusPayload
	b.Subscribe(statusTopic, func(_ string, payload any) {
		captured = append(captured, payload.(MarketDataStatusPayload))
	})
	agg := New(cfg, b, reg, nil)
	agg.Start()
	return b, agg, &captured
}

func publishPrice(b *bus.MemoryBus, ts int64, sources []string, confidence *float64) {
	b.Publish(topicPriceCanonical, AggregatedBlockEvent{
		Symbol:      "BTCUSDT",
		Meta:        EventMeta{Ts: ts, MarketType: "spot"},
		Confidence:  confidence,
		SourcesUsed: sources,
	})
}

func publishLiquidity(b *bus.MemoryBus, ts int64, sources []string, confidence *float64) {
	b.Publish(topicLiquidityAgg, AggregatedBlockEvent{
		Symbol:      "BTCUSDT",
		Meta:        EventMeta{Ts: ts, MarketType: "spot"},
		Confidence:  confidence,
		SourcesUsed: sources,
	})
}

func TestAggregator_WarmPathToReady(t *testing.T) {
	b, _, captured := newHarness(zeroWindowConfig())

	publishPrice(b, 500, []string{"binance", "coinbase"}, conf(1))

	if len(*captured) == 0 {
		t.Fatal("expected at least one status payload")
	}
	last := (*captured)[len(*captured)-1]
	if last.Degraded {
		t.Fatalf("expected READY, got degraded with reasons %v", last.DegradedReasons)
	}
}

func TestAggregator_PriceStaleWhenPriceNeverIngested(t *testing.T) {
	b, _, captured := newHarness(zeroWindowConfig())

	// Ingest an unrelated block to trigger an evaluation tick without ever
	// sending a price_canonical event.
	publishLiquidity(b, 500, []string{"some-source"}, conf(1))

	last := (*captured)[len(*captured)-1]
	if !containsReason(last.DegradedReasons, ReasonPriceStale) {
		t.Fatalf("expected PRICE_STALE, got %v", last.DegradedReasons)
	}
}

func TestAggregator_SourcesMissing(t *testing.T) {
	cfg := zeroWindowConfig()
	cfg.ExpectedSources = 2

	b, _, captured := newHarness(cfg)
	publishPrice(b, 500, []string{"binance"}, conf(1))

	last := (*captured)[len(*captured)-1]
	if !containsReason(last.DegradedReasons, ReasonSourcesMissing) {
		t.Fatalf("expected SOURCES_MISSING with only one distinct source, got %v", last.DegradedReasons)
	}
}

func TestAggregator_WarmingProgressBeforeWarmingWindowElapses(t *testing.T) {
	cfg := zeroWindowConfig()
	cfg.WarmingWindowMs = 60000

	b, _, captured := newHarness(cfg)
	publishPrice(b, 500, []string{"binance", "coinbase"}, conf(1))

	first := (*captured)[len(*captured)-1]
	if !first.WarmingUp || first.WarmingProgress != 0 {
		t.Fatalf("expected warmingUp=true and progress=0 on the very first bucket, got progress=%v warmingUp=%v",
			first.WarmingProgress, first.WarmingUp)
	}

	publishPrice(b, 30500, []string{"binance", "coinbase"}, conf(1))

	later := (*captured)[len(*captured)-1]
	if later.WarmingProgress <= 0 || later.WarmingProgress >= 1 {
		t.Fatalf("expected warming progress strictly between 0 and 1 partway through the window, got %v", later.WarmingProgress)
	}
	if !later.WarmingUp {
		t.Fatal("expected warmingUp=true while progress < 1")
	}
}

func TestAggregator_ExpectedEmptyDoesNotPenalise(t *testing.T) {
	// Liquidity has no configured expected sources, so it must never
	// contribute a LOW_CONF reason or block readiness on its own.
	b, _, captured := newHarness(zeroWindowConfig())
	publishPrice(b, 500, []string{"binance", "coinbase"}, conf(1))

	last := (*captured)[len(*captured)-1]
	if containsReason(last.DegradedReasons, ReasonLiquidityLowConf) {
		t.Fatalf("did not expect LIQUIDITY_LOW_CONF when liquidity has no expected sources, got %v", last.DegradedReasons)
	}
}

func TestAggregator_PriceEventWithoutSourcesUsedIsIgnored(t *testing.T) {
	b, _, captured := newHarness(zeroWindowConfig())

	publishPrice(b, 500, nil, conf(1)) // no SourcesUsed -> suppressed, no tick

	if len(*captured) != 0 {
		t.Fatalf("expected no status payload for a sourceless price event, got %d", len(*captured))
	}
}

func TestAggregator_TransientGapAbsorbedByHysteresis(t *testing.T) {
	cfg := zeroWindowConfig()
	cfg.HardFastReasonEnterWindowMs = 5000 // require 5s of continuous observation to raise GAPS_DETECTED
	cfg.HardReasonExitWindowMs = 0

	b, _, captured := newHarness(cfg)

	publishPrice(b, 1000, []string{"binance", "coinbase"}, conf(1))
	b.Publish(topicGapDetected, GapEvent{Symbol: "BTCUSDT", Meta: EventMeta{Ts: 1000, MarketType: "spot"}})
	publishPrice(b, 1100, []string{"binance", "coinbase"}, conf(1))

	last := (*captured)[len(*captured)-1]
	if containsReason(last.DegradedReasons, ReasonGapsDetected) {
		t.Fatalf("expected a single transient gap to be absorbed by the hysteresis enter window, got %v", last.DegradedReasons)
	}
}

func TestAggregator_ConnectAloneNeverClearsWSDisconnected(t *testing.T) {
	b, _, captured := newHarness(zeroWindowConfig())

	publishPrice(b, 500, []string{"binance", "coinbase"}, conf(1))
	b.Publish(topicDisconnected, DisconnectedEvent{Meta: EventMeta{Ts: 600, MarketType: "spot"}})
	b.Publish(topicConnected, ConnectedEvent{Meta: EventMeta{Ts: 700, MarketType: "spot"}})
	publishPrice(b, 1500, []string{"binance", "coinbase"}, conf(1))

	last := (*captured)[len(*captured)-1]
	if !containsReason(last.DegradedReasons, ReasonWSDisconnected) {
		t.Fatalf("a bare connect must not clear WS_DISCONNECTED, got %v", last.DegradedReasons)
	}
}

func TestAggregator_PriceStaleFiresEarlyWhenGraceDisabled(t *testing.T) {
	cfg := zeroWindowConfig()
	cfg.StartupGraceWindowMs = 0 // PRICE_STALE is grace-gated, so the grace window is switched off here

	b, _, captured := newHarness(cfg)
	publishLiquidity(b, 10, []string{"some-source"}, conf(1))

	last := (*captured)[len(*captured)-1]
	if !containsReason(last.DegradedReasons, ReasonPriceStale) {
		t.Fatalf("PRICE_STALE must fire even very early, got %v", last.DegradedReasons)
	}
}

func TestAggregator_DegradedMatchesNonEmptyReasons(t *testing.T) {
	b, _, captured := newHarness(zeroWindowConfig())
	publishPrice(b, 500, []string{"binance", "coinbase"}, conf(1))
	publishLiquidity(b, 600, []string{"some-source"}, conf(1))

	for _, p := range *captured {
		if p.Degraded != (len(p.DegradedReasons) > 0) {
			t.Fatalf("degraded=%v but reasons=%v — these must always agree", p.Degraded, p.DegradedReasons)
		}
	}
}

func TestAggregator_ConfidencesStayInUnitRange(t *testing.T) {
	b, _, captured := newHarness(zeroWindowConfig())
	publishPrice(b, 500, []string{"binance", "coinbase"}, conf(1))

	last := (*captured)[len(*captured)-1]
	if last.OverallConfidence < 0 || last.OverallConfidence > 1 {
		t.Fatalf("overall confidence out of [0,1]: %v", last.OverallConfidence)
	}
	for _, blk := range blockOrder {
		v := last.BlockConfidence.Get(blk)
		if v < 0 || v > 1 {
			t.Fatalf("block %s confidence out of [0,1]: %v", blk, v)
		}
	}
}

func containsReason(reasons []ReasonCode, want ReasonCode) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}
