package entities

// State is a stage in the lifecycle of one module instance.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateTrapped   State = "trapped"
	StateTimedOut  State = "timed_out"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTrapped || s == StateTimedOut
}

// CanTransition reports whether moving from s to next is a legal step.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateIdle:
		return next == StateLoading
	case StateLoading:
		// A module that fails to instantiate never runs.
		return next == StateRunning || next == StateTrapped || next == StateTimedOut
	case StateRunning:
		return next.Terminal()
	default:
		return false
	}
}

// StateForOutcome maps an outcome to the terminal state that produced it.
func StateForOutcome(o Outcome) State {
	switch o.Kind {
	case OutcomeSuccess:
		return StateCompleted
	case OutcomeTimedOut:
		return StateTimedOut
	default:
		return StateTrapped
	}
}
