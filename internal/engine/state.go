package engine

// State is a phase of the turn state machine.
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateVisionBranch
	StateAdvisingLoop
	StateArbitrating
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateSelecting:    "selecting",
	StateVisionBranch: "vision",
	StateAdvisingLoop: "advising",
	StateArbitrating:  "arbitrating",
	StateComplete:     "complete",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InProgress reports whether a turn is running in this state.
func (s State) InProgress() bool {
	switch s {
	case StateSelecting, StateVisionBranch, StateAdvisingLoop, StateArbitrating:
		return true
	default:
		return false
	}
}

// canTransition lists the legal edges of the state machine.
func canTransition(from, to State) bool {
	if to == StateFailed {
		return from.InProgress()
	}
	switch from {
	case StateIdle:
		return to == StateSelecting || to == StateVisionBranch
	case StateSelecting:
		return to == StateAdvisingLoop
	case StateAdvisingLoop:
		return to == StateArbitrating
	case StateVisionBranch, StateArbitrating:
		return to == StateComplete
	case StateComplete, StateFailed:
		return to == StateIdle
	default:
		return false
	}
}
