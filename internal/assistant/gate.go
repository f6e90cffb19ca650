package assistant

import "sync/atomic"

// State is the wake gate state.
type State int32

const (
	StateDisabled State = iota
	StateDormant
	StateAwake
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateDormant:
		return "dormant"
	case StateAwake:
		return "awake"
	default:
		return "unknown"
	}
}

// Route says which engine a window goes to.
type Route int

const (
	RouteNone Route = iota
	RouteWakeWord
	RouteIntent
)

// Gate decides per window whether to listen for the wake word or for a
// command. Transitions are made only by the detector goroutine; other
// goroutines may read State.
type Gate struct {
	state       atomic.Int32
	alwaysAwake bool
}

func NewGate(alwaysAwake bool) *Gate {
	return &Gate{alwaysAwake: alwaysAwake}
}

func (g *Gate) State() State { return State(g.state.Load()) }

func (g *Gate) AlwaysAwake() bool { return g.alwaysAwake }

// Enable moves Disabled to Dormant, or straight to Awake for an
// always-awake gate. Other states are left alone.
func (g *Gate) Enable() {
	next := StateDormant
	if g.alwaysAwake {
		next = StateAwake
	}
	g.state.CompareAndSwap(int32(StateDisabled), int32(next))
}

// Disable is valid from any state.
func (g *Gate) Disable() {
	g.state.Store(int32(StateDisabled))
}

// Route returns the engine the next window should be fed to.
func (g *Gate) Route() Route {
	switch g.State() {
	case StateDisabled:
		return RouteNone
	case StateAwake:
		return RouteIntent
	default:
		return RouteWakeWord
	}
}

// Wake moves Dormant to Awake and reports whether it did.
func (g *Gate) Wake() bool {
	return g.state.CompareAndSwap(int32(StateDormant), int32(StateAwake))
}

// Sleep returns the gate to Dormant after an inference was enqueued.
// An always-awake gate never leaves Awake routing, so it is left as is.
func (g *Gate) Sleep() {
	if g.alwaysAwake {
		return
	}
	g.state.CompareAndSwap(int32(StateAwake), int32(StateDormant))
}
