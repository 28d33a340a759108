package readiness

// hysteresisEntry is the per-reason ledger entry of spec.md §3/§4.5.
type hysteresisEntry struct {
	firstObservedTs *int64 // start of the current continuous-observed streak; nil while absent
	lastObservedTs  *int64 // most recent tick at which the reason was observed; nil if never
	active          bool
	activeSinceTs   *int64
}

// hysteresisGate wraps reason-set emission with per-reason enter/exit
// timers (spec.md §4.5). Timers are keyed only by reason code, never by
// block, so a reason that keeps getting raised for different underlying
// blocks doesn't stutter.
type hysteresisGate struct {
	cfg     Config
	ledger  map[ReasonCode]*hysteresisEntry
}

func newHysteresisGate(cfg Config) *hysteresisGate {
	return &hysteresisGate{cfg: cfg, ledger: make(map[ReasonCode]*hysteresisEntry)}
}

func (g *hysteresisGate) windows(code ReasonCode) (enter, exit int64) {
	switch classify(code) {
	case classHardFast:
		return g.cfg.HardFastReasonEnterWindowMs, g.cfg.HardReasonExitWindowMs
	case classHard:
		return g.cfg.HardReasonEnterWindowMs, g.cfg.HardReasonExitWindowMs
	default:
		return g.cfg.SoftReasonEnterWindowMs, g.cfg.SoftReasonExitWindowMs
	}
}

func (g *hysteresisGate) entry(code ReasonCode) *hysteresisEntry {
	e, ok := g.ledger[code]
	if !ok {
		e = &hysteresisEntry{}
		g.ledger[code] = e
	}
	return e
}

// Tick advances every known-or-observed reason's ledger by one evaluation
// tick and returns the effective (post-hysteresis) reason set, canonically
// ordered, plus a map of activeSinceTs for reasons currently active.
func (g *hysteresisGate) Tick(observed map[ReasonCode]bool, now int64) ([]ReasonCode, map[ReasonCode]int64) {
	// Touch every reason the gate has ever seen plus every reason observed
	// this tick, so a reason that stops being observed still gets its
	// absence processed (and can eventually exit).
	codes := make(map[ReasonCode]bool, len(g.ledger)+len(observed))
	for code := range g.ledger {
		codes[code] = true
	}
	for code := range observed {
		codes[code] = true
	}

	effective := make(map[ReasonCode]bool, len(codes))
	activeSince := make(map[ReasonCode]int64, len(codes))

	for code := range codes {
		e := g.entry(code)
		enterWindow, exitWindow := g.windows(code)

		if observed[code] {
			if e.firstObservedTs == nil {
				t := now
				e.firstObservedTs = &t
			}
			t := now
			e.lastObservedTs = &t
			if !e.active && now-*e.firstObservedTs >= enterWindow {
				e.active = true
				since := *e.firstObservedTs
				e.activeSinceTs = &since
			}
		} else {
			e.firstObservedTs = nil
			if e.active && e.lastObservedTs != nil && now-*e.lastObservedTs >= exitWindow {
				e.active = false
				e.activeSinceTs = nil
			}
		}

		if e.active {
			effective[code] = true
			if e.activeSinceTs != nil {
				activeSince[code] = *e.activeSinceTs
			}
		}
	}

	return projectReasons(effective), activeSince
}
