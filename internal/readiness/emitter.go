package readiness

import (
	"strings"

	"github.com/sawpanic/marketready/internal/bus"
)

// Emitter publishes system:market_data_status and applies the log-gating
// policy of spec.md §4.7: log on every change of degraded/reasons, or at
// most once every logIntervalMs otherwise, to keep steady-state logging
// quiet without losing transitions.
type Emitter struct {
	bus bus.EventBus
	log Logger
	cfg Config

	lastLogTs   int64
	haveLogged  bool
	lastFingerprint string
}

func newEmitter(b bus.EventBus, log Logger, cfg Config) *Emitter {
	return &Emitter{bus: b, log: log, cfg: cfg}
}

// Emit publishes payload on system:market_data_status and, per the
// gating policy, logs a structured snapshot.
func (e *Emitter) Emit(payload MarketDataStatusPayload) {
	if e.bus != nil {
		e.bus.Publish(statusTopic, payload)
	}

	fingerprint := reasonFingerprint(payload.WarmingUp, payload.Degraded, payload.DegradedReasons)
	changed := !e.haveLogged || fingerprint != e.lastFingerprint
	intervalElapsed := e.cfg.LogIntervalMs <= 0 || payload.LastBucketTs-e.lastLogTs >= e.cfg.LogIntervalMs

	if changed || intervalElapsed {
		e.logSnapshot(payload)
		e.haveLogged = true
		e.lastFingerprint = fingerprint
		e.lastLogTs = payload.LastBucketTs
	}

	// MarketStatusJSON adds one structured snapshot record per tick,
	// outside the gating policy above.
	if e.cfg.MarketStatusJSON {
		e.log.Info("market data status snapshot", map[string]any{
			"symbol":            payload.Symbol,
			"marketType":        payload.MarketType,
			"bucketTs":          payload.LastBucketTs,
			"degraded":          payload.Degraded,
			"reasons":           payload.DegradedReasons,
			"overallConfidence": payload.OverallConfidence,
			"blockConfidence":   payload.BlockConfidence,
			"warmingProgress":   payload.WarmingProgress,
		})
	}
}

// reasonFingerprint covers every field spec.md §4.7 names as a log-gating
// trigger: warmingUp, degraded, and the joined reason list. Any change to
// any of the three must produce a different fingerprint.
func reasonFingerprint(warmingUp, degraded bool, reasons []ReasonCode) string {
	parts := make([]string, 0, len(reasons)+2)
	if warmingUp {
		parts = append(parts, "warming")
	} else {
		parts = append(parts, "settled")
	}
	if degraded {
		parts = append(parts, "degraded")
	} else {
		parts = append(parts, "ready")
	}
	for _, r := range reasons {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ",")
}

func (e *Emitter) logSnapshot(payload MarketDataStatusPayload) {
	fields := map[string]any{
		"symbol":            payload.Symbol,
		"marketType":        payload.MarketType,
		"degraded":          payload.Degraded,
		"reasons":           payload.DegradedReasons,
		"overallConfidence": payload.OverallConfidence,
		"warmingUp":         payload.WarmingUp,
		"bucketTs":          payload.LastBucketTs,
	}
	if payload.Degraded {
		e.log.Warn("market data status", fields)
	} else {
		e.log.Info("market data status", fields)
	}
}
