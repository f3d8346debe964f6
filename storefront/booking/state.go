package booking

type State string

const (
	StateIdle       State = "IDLE"
	StateValidating State = "VALIDATING"
	StateSubmitting State = "SUBMITTING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
)

var transitions = map[State][]State{
	StateIdle:       {StateValidating},
	StateValidating: {StateIdle, StateSubmitting},
	StateSubmitting: {StateSucceeded, StateFailed},
	// a new order may be placed after either outcome
	StateSucceeded: {StateValidating},
	StateFailed:    {StateValidating},
}

func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// InFlight reports whether an order is being validated or submitted.
func (s State) InFlight() bool {
	return s == StateValidating || s == StateSubmitting
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) String() string {
	return string(s)
}
