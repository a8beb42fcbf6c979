package controller

// State is the session lifecycle state machine position.
type State int

const (
	StateIdle State = iota
	StateCheckingPreconditions
	StateLoadingScript
	StateAwaitingContainer
	StateCreatingWidget
	StateConnecting
	StateConnected
	StateLeft
	StateFailed
	StateTimedOut
	StateMembersOnly
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckingPreconditions:
		return "checking_preconditions"
	case StateLoadingScript:
		return "loading_script"
	case StateAwaitingContainer:
		return "awaiting_container"
	case StateCreatingWidget:
		return "creating_widget"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLeft:
		return "left"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	case StateMembersOnly:
		return "members_only"
	default:
		return "unknown"
	}
}

// Recoverable reports whether an explicit user action (retry or server
// switch) can re-enter the attempt loop from this state.
func (s State) Recoverable() bool {
	switch s {
	case StateFailed, StateTimedOut, StateMembersOnly:
		return true
	default:
		return false
	}
}

// inFlight reports whether an attempt is currently progressing or live.
func (s State) inFlight() bool {
	switch s {
	case StateCheckingPreconditions, StateLoadingScript, StateAwaitingContainer,
		StateCreatingWidget, StateConnecting, StateConnected:
		return true
	default:
		return false
	}
}
