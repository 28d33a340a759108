package readiness

// ConnectionState is the Connection Tracker's state (spec.md §3):
// wsDegraded=false implies both timestamps are unset.
type ConnectionState struct {
	WSDegraded       bool
	LastDisconnectTs *int64
	RecoveryStartTs  *int64
}

// connectionTracker tracks WebSocket-level degraded state (spec.md §4.6 —
// numbered §4's Connection Tracker component). A disconnect sets degraded;
// a connect alone never clears it; clearing requires wsRecoveryWindowMs of
// continuous data flow since the last disconnect.
type connectionTracker struct {
	recoveryWindowMs int64
	state            ConnectionState
}

func newConnectionTracker(recoveryWindowMs int64) *connectionTracker {
	return &connectionTracker{recoveryWindowMs: recoveryWindowMs}
}

// OnConnect records a connect event. Per spec.md §8 invariant, a connect
// alone never clears WS_DISCONNECTED.
func (c *connectionTracker) OnConnect(ts int64) {
	_ = ts // connects carry no recovery weight on their own
}

// OnDisconnect marks the connection degraded and resets the recovery
// window — any progress made towards clearing is lost.
func (c *connectionTracker) OnDisconnect(ts int64) {
	c.state.WSDegraded = true
	t := ts
	c.state.LastDisconnectTs = &t
	c.state.RecoveryStartTs = nil
}

// OnDataFlow advances the recovery marker. Called for every aggregated and
// raw event (spec.md §4.3 step 4, and the raw-event path). If not
// currently degraded this is a no-op; otherwise it starts the recovery
// window on the first data flow after a disconnect and clears degraded
// once wsRecoveryWindowMs has elapsed since that start.
func (c *connectionTracker) OnDataFlow(ts int64) {
	if !c.state.WSDegraded {
		return
	}
	if c.state.RecoveryStartTs == nil {
		t := ts
		c.state.RecoveryStartTs = &t
		return
	}
	if ts-*c.state.RecoveryStartTs >= c.recoveryWindowMs {
		c.state.WSDegraded = false
		c.state.LastDisconnectTs = nil
		c.state.RecoveryStartTs = nil
	}
}

// Degraded reports whether WS_DISCONNECTED should be raised this tick.
func (c *connectionTracker) Degraded() bool {
	return c.state.WSDegraded
}
