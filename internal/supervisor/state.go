package supervisor

// State is a supervisor lifecycle state
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reason records why a session reached StateTerminated
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonFocusLost    Reason = "focus_lost"
	ReasonInterrupted  Reason = "interrupted"
	ReasonLaunchFailed Reason = "launch_failed"
)
