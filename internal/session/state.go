package session

// State is a session's lifecycle position. Transitions only move forward:
// Connecting, Authenticating, Active, Draining, Closed. Draining and Closed
// may be entered from any earlier state.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
