package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sawpanic/marketready/internal/bus"
	"github.com/sawpanic/marketready/internal/readiness"
	"github.com/sawpanic/marketready/internal/telemetry"
)

// statusCache holds the latest payload per (symbol, marketType), serving
// the /health endpoint without re-running the evaluator.
type statusCache struct {
	mu      sync.RWMutex
	latest  map[string]readiness.MarketDataStatusPayload
	started time.Time
}

func newStatusCache() *statusCache {
	return &statusCache{latest: make(map[string]readiness.MarketDataStatusPayload), started: time.Now()}
}

func (s *statusCache) Subscribe(b bus.EventBus) bus.Token {
	return b.Subscribe("system:market_data_status", func(_ string, payload any) {
		p, ok := payload.(readiness.MarketDataStatusPayload)
		if !ok {
			return
		}
		s.mu.Lock()
		s.latest[p.Symbol+"|"+p.MarketType] = p
		s.mu.Unlock()
	})
}

// healthSnapshot is the JSON shape served at /health — grounded on
// cmd_health.go's HealthStatus envelope, narrowed to what this module
// actually tracks.
type healthSnapshot struct {
	Overall   string                                        `json:"overall"`
	UpTimeSec float64                                       `json:"uptime_seconds"`
	Symbols   map[string]readiness.MarketDataStatusPayload `json:"symbols"`
}

func (s *statusCache) snapshot() healthSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	overall := "READY"
	out := make(map[string]readiness.MarketDataStatusPayload, len(s.latest))
	for k, p := range s.latest {
		out[k] = p
		if p.Degraded {
			overall = "DEGRADED"
		}
	}
	if len(s.latest) == 0 {
		overall = "WARMING_UP"
	}
	return healthSnapshot{
		Overall:   overall,
		UpTimeSec: time.Since(s.started).Seconds(),
		Symbols:   out,
	}
}

// newHTTPServer wires /health and /metrics on a gorilla/mux router, the
// same shape internal/interfaces/http/server.go builds for cryptorun's
// read-only monitoring endpoints.
func newHTTPServer(addr string, cache *statusCache, metricsReg prometheus.Gatherer) *http.Server {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cache.snapshot())
	}).Methods("GET")

	router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{})).Methods("GET")

	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func newMetricsRegistry() (*telemetry.MetricsRegistry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return telemetry.NewMetricsRegistry(reg), reg
}
