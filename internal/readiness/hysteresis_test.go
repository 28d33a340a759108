package readiness

import "testing"

func baseGateConfig() Config {
	return Config{
		HardFastReasonEnterWindowMs: 0,
		HardReasonEnterWindowMs:     3000,
		HardReasonExitWindowMs:      5000,
		SoftReasonEnterWindowMs:     10000,
		SoftReasonExitWindowMs:      10000,
	}
}

func TestHysteresisGate_HardFastEntersImmediately(t *testing.T) {
	g := newHysteresisGate(baseGateConfig())
	effective, since := g.Tick(map[ReasonCode]bool{ReasonPriceStale: true}, 1000)
	if len(effective) != 1 || effective[0] != ReasonPriceStale {
		t.Fatalf("expected PRICE_STALE active immediately, got %v", effective)
	}
	if since[ReasonPriceStale] != 1000 {
		t.Fatalf("expected activeSince=1000, got %v", since[ReasonPriceStale])
	}
}

func TestHysteresisGate_HardReasonRequiresEnterWindow(t *testing.T) {
	g := newHysteresisGate(baseGateConfig())

	effective, _ := g.Tick(map[ReasonCode]bool{ReasonSourcesMissing: true}, 0)
	if len(effective) != 0 {
		t.Fatalf("expected not yet active at t=0, got %v", effective)
	}

	effective, _ = g.Tick(map[ReasonCode]bool{ReasonSourcesMissing: true}, 2000)
	if len(effective) != 0 {
		t.Fatalf("expected not yet active at t=2000 (enter window 3000), got %v", effective)
	}

	effective, since := g.Tick(map[ReasonCode]bool{ReasonSourcesMissing: true}, 3000)
	if len(effective) != 1 || effective[0] != ReasonSourcesMissing {
		t.Fatalf("expected active at t=3000, got %v", effective)
	}
	if since[ReasonSourcesMissing] != 0 {
		t.Fatalf("expected activeSince=0 (first observed), got %v", since[ReasonSourcesMissing])
	}
}

func TestHysteresisGate_TransientBlipAbsorbed(t *testing.T) {
	g := newHysteresisGate(baseGateConfig())

	// Observed once, then absent — never crosses the 3000ms enter window,
	// so it must never become effective.
	g.Tick(map[ReasonCode]bool{ReasonSourcesMissing: true}, 0)
	effective, _ := g.Tick(map[ReasonCode]bool{}, 500)
	if len(effective) != 0 {
		t.Fatalf("expected transient blip absorbed, got %v", effective)
	}

	// Re-observing restarts the enter-window clock from this tick.
	g.Tick(map[ReasonCode]bool{ReasonSourcesMissing: true}, 1000)
	effective, _ = g.Tick(map[ReasonCode]bool{ReasonSourcesMissing: true}, 3500)
	if len(effective) != 0 {
		t.Fatalf("expected still below enter window (observed since 1000, now 3500 < +3000), got %v", effective)
	}
	effective, _ = g.Tick(map[ReasonCode]bool{ReasonSourcesMissing: true}, 4000)
	if len(effective) != 1 {
		t.Fatalf("expected active once 3000ms since restarted observation, got %v", effective)
	}
}

func TestHysteresisGate_ExitRequiresExitWindow(t *testing.T) {
	g := newHysteresisGate(baseGateConfig())
	g.Tick(map[ReasonCode]bool{ReasonSourcesMissing: true}, 0)
	g.Tick(map[ReasonCode]bool{ReasonSourcesMissing: true}, 3000) // now active

	effective, _ := g.Tick(map[ReasonCode]bool{}, 4000) // absent, but exit window is 5000ms
	if len(effective) != 1 {
		t.Fatalf("expected still active before exit window elapses, got %v", effective)
	}

	effective, _ = g.Tick(map[ReasonCode]bool{}, 8000) // 5000ms since last observed at 3000
	if len(effective) != 0 {
		t.Fatalf("expected cleared once exit window elapses, got %v", effective)
	}
}

func TestHysteresisGate_ReasonsAreOrderedCanonically(t *testing.T) {
	g := newHysteresisGate(baseGateConfig())
	observed := map[ReasonCode]bool{
		ReasonNonMonotonicTimebase: true,
		ReasonPriceStale:           true,
		ReasonWSDisconnected:       true,
	}
	effective, _ := g.Tick(observed, 0)
	want := []ReasonCode{ReasonPriceStale, ReasonWSDisconnected, ReasonNonMonotonicTimebase}
	if len(effective) != len(want) {
		t.Fatalf("expected %v, got %v", want, effective)
	}
	for i := range want {
		if effective[i] != want[i] {
			t.Fatalf("expected canonical order %v, got %v", want, effective)
		}
	}
}

func TestHysteresisGate_ByReasonNotByBlock(t *testing.T) {
	// PRICE_LOW_CONF raised repeatedly keeps the same ledger entry
	// regardless of which underlying condition re-raises it each tick.
	g := newHysteresisGate(baseGateConfig())
	g.Tick(map[ReasonCode]bool{ReasonPriceLowConf: true}, 0)
	effective, _ := g.Tick(map[ReasonCode]bool{ReasonPriceLowConf: true}, 10000)
	if len(effective) != 1 || effective[0] != ReasonPriceLowConf {
		t.Fatalf("expected soft reason active after soft enter window, got %v", effective)
	}
}
