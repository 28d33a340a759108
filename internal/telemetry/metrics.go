// Package telemetry exports the readiness aggregator's status payloads as
// Prometheus metrics, grounded on internal/interfaces/http/metrics.go's
// MetricsRegistry pattern in the teacher repo: a struct of pre-registered
// collectors, constructed once and updated from application events rather
// than scraped directly off domain state.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sawpanic/marketready/internal/bus"
	"github.com/sawpanic/marketready/internal/readiness"
)

// MetricsRegistry holds every Prometheus collector the readiness
// aggregator feeds.
type MetricsRegistry struct {
	OverallConfidence *prometheus.GaugeVec
	BlockConfidence   *prometheus.GaugeVec
	Degraded          *prometheus.GaugeVec
	ReasonActive      *prometheus.GaugeVec
	WarmingProgress   *prometheus.GaugeVec
	ActiveSources     *prometheus.GaugeVec
	ExpectedSources   *prometheus.GaugeVec
	StatusEmitted     *prometheus.CounterVec
}

// NewMetricsRegistry builds and registers every collector against reg.
// Pass prometheus.NewRegistry() in tests to avoid collisions with the
// global DefaultRegisterer.
func NewMetricsRegistry(reg prometheus.Registerer) *MetricsRegistry {
	m := &MetricsRegistry{
		OverallConfidence: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketready_overall_confidence",
				Help: "Overall readiness confidence in [0,1] per symbol/marketType.",
			},
			[]string{"symbol", "market_type"},
		),
		BlockConfidence: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketready_block_confidence",
				Help: "Per-block readiness confidence in [0,1].",
			},
			[]string{"symbol", "market_type", "block"},
		),
		Degraded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketready_degraded",
				Help: "1 if the latest status payload was degraded, else 0.",
			},
			[]string{"symbol", "market_type"},
		),
		ReasonActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketready_reason_active",
				Help: "1 if a given degraded reason is currently active.",
			},
			[]string{"symbol", "market_type", "reason"},
		),
		WarmingProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketready_warming_progress",
				Help: "Warm-up progress in [0,1]; 1 means fully warmed.",
			},
			[]string{"symbol", "market_type"},
		),
		ActiveSources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketready_active_sources",
				Help: "Distinct active aggregated source-id count.",
			},
			[]string{"symbol", "market_type"},
		),
		ExpectedSources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketready_expected_sources",
				Help: "Configured expected aggregated source count.",
			},
			[]string{"symbol", "market_type"},
		),
		StatusEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketready_status_emitted_total",
				Help: "Total number of status payloads emitted.",
			},
			[]string{"symbol", "market_type"},
		),
	}

	reg.MustRegister(
		m.OverallConfidence,
		m.BlockConfidence,
		m.Degraded,
		m.ReasonActive,
		m.WarmingProgress,
		m.ActiveSources,
		m.ExpectedSources,
		m.StatusEmitted,
	)
	return m
}

// allReasons enumerates every reason code so ReasonActive reports an
// explicit 0 for inactive reasons instead of leaving the series absent.
var allReasons = []readiness.ReasonCode{
	readiness.ReasonPriceStale,
	readiness.ReasonPriceLowConf,
	readiness.ReasonFlowLowConf,
	readiness.ReasonLiquidityLowConf,
	readiness.ReasonDerivLowConf,
	readiness.ReasonWSDisconnected,
	readiness.ReasonSourcesMissing,
	readiness.ReasonExpectedSrcMissingConfig,
	readiness.ReasonLagTooHigh,
	readiness.ReasonGapsDetected,
	readiness.ReasonMismatchDetected,
	readiness.ReasonNoRefPrice,
	readiness.ReasonNonMonotonicTimebase,
}

// Subscribe wires the registry to bus's system:market_data_status topic.
func (m *MetricsRegistry) Subscribe(b bus.EventBus) bus.Token {
	return b.Subscribe("system:market_data_status", func(_ string, payload any) {
		p, ok := payload.(readiness.MarketDataStatusPayload)
		if !ok {
			return
		}
		m.observe(p)
	})
}

func (m *MetricsRegistry) observe(p readiness.MarketDataStatusPayload) {
	labels := prometheus.Labels{"symbol": p.Symbol, "market_type": p.MarketType}

	m.OverallConfidence.With(labels).Set(p.OverallConfidence)
	m.WarmingProgress.With(labels).Set(p.WarmingProgress)
	m.ActiveSources.With(labels).Set(float64(p.ActiveSources))
	m.ExpectedSources.With(labels).Set(float64(p.ExpectedSources))
	m.StatusEmitted.With(labels).Inc()

	if p.Degraded {
		m.Degraded.With(labels).Set(1)
	} else {
		m.Degraded.With(labels).Set(0)
	}

	for _, b := range []readiness.Block{readiness.BlockPrice, readiness.BlockFlow, readiness.BlockLiquidity, readiness.BlockDerivatives} {
		blockLabels := prometheus.Labels{"symbol": p.Symbol, "market_type": p.MarketType, "block": string(b)}
		m.BlockConfidence.With(blockLabels).Set(p.BlockConfidence.Get(b))
	}

	active := make(map[readiness.ReasonCode]bool, len(p.DegradedReasons))
	for _, r := range p.DegradedReasons {
		active[r] = true
	}
	for _, r := range allReasons {
		reasonLabels := prometheus.Labels{"symbol": p.Symbol, "market_type": p.MarketType, "reason": string(r)}
		if active[r] {
			m.ReasonActive.With(reasonLabels).Set(1)
		} else {
			m.ReasonActive.With(reasonLabels).Set(0)
		}
	}
}
