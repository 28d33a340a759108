package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/marketready/internal/bus"
	"github.com/sawpanic/marketready/internal/readiness"
)

func TestMetricsRegistry_ObservePopulatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsRegistry(reg)

	payload := readiness.MarketDataStatusPayload{
		Symbol:            "BTCUSDT",
		MarketType:        "spot",
		OverallConfidence: 0.77,
		Degraded:          true,
		DegradedReasons:   []readiness.ReasonCode{readiness.ReasonPriceStale},
		WarmingProgress:   0.5,
		ActiveSources:     2,
		ExpectedSources:   3,
		BlockConfidence:   readiness.BlockConfidenceSet{Price: 0.9, Flow: 0.1, Liquidity: 1, Derivatives: 1},
	}

	m.observe(payload)

	labels := prometheus.Labels{"symbol": "BTCUSDT", "market_type": "spot"}
	assert.Equal(t, 0.77, testutil.ToFloat64(m.OverallConfidence.With(labels)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Degraded.With(labels)))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.WarmingProgress.With(labels)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSources.With(labels)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ExpectedSources.With(labels)))

	priceLabels := prometheus.Labels{"symbol": "BTCUSDT", "market_type": "spot", "block": "price"}
	assert.Equal(t, 0.9, testutil.ToFloat64(m.BlockConfidence.With(priceLabels)))

	reasonLabels := prometheus.Labels{"symbol": "BTCUSDT", "market_type": "spot", "reason": string(readiness.ReasonPriceStale)}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReasonActive.With(reasonLabels)))

	otherReasonLabels := prometheus.Labels{"symbol": "BTCUSDT", "market_type": "spot", "reason": string(readiness.ReasonGapsDetected)}
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ReasonActive.With(otherReasonLabels)))
}

func TestMetricsRegistry_SubscribeWiresBusPayloads(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsRegistry(reg)

	b := bus.NewMemoryBus()
	m.Subscribe(b)

	b.Publish("system:market_data_status", readiness.MarketDataStatusPayload{
		Symbol:     "ETHUSDT",
		MarketType: "spot",
		Degraded:   false,
	})

	labels := prometheus.Labels{"symbol": "ETHUSDT", "market_type": "spot"}
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Degraded.With(labels)))
}
