package endpoint

import "sync/atomic"

// State is the lifecycle state of an endpoint.
type State uint32

const (
	ActiveState State = iota
	ClosingState
	TerminatedState
)

func (s State) String() string {
	switch s {
	case ActiveState:
		return "Active"
	case ClosingState:
		return "Closing"
	case TerminatedState:
		return "Terminated"
	default:
		return "Unknown"
	}
}

type atomicState struct {
	state atomic.Uint32
}

// Get returns the current state.
func (st *atomicState) Get() State {
	return State(st.state.Load())
}

func (st *atomicState) IsActive() bool {
	return st.Get() == ActiveState
}

// ToClosing moves Active to Closing. It returns false if the endpoint has
// already left the Active state.
func (st *atomicState) ToClosing() bool {
	return st.state.CompareAndSwap(uint32(ActiveState), uint32(ClosingState))
}

// ToTerminated moves the endpoint to Terminated from any state.
func (st *atomicState) ToTerminated() {
	st.state.Store(uint32(TerminatedState))
}
