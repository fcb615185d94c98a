// Package peer drives one peer connection per remote participant of the
// active room through its negotiation and health lifecycle.
package peer

type State int

const (
	StateConnecting State = iota
	StateConnected
	StateFailed
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
// Teardown closes a record from any state and does not go through here.
func CanTransition(from, to State) bool {
	switch from {
	case StateConnecting:
		return to == StateConnected || to == StateFailed
	case StateConnected:
		return to == StateDisconnected
	case StateDisconnected:
		return to == StateConnected || to == StateClosed
	case StateFailed:
		// A late recovery inside the grace window is honoured.
		return to == StateConnected || to == StateClosed
	}
	return false
}

// unhealthy states wait out the grace window before the record is dropped.
func (s State) unhealthy() bool {
	return s == StateFailed || s == StateDisconnected
}
