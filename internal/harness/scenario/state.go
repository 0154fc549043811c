package scenario

// State is a scenario run's lifecycle state.
type State int

const (
	NotStarted State = iota
	SessionStarting
	Ready
	Probing
	Passed
	Failed
	TornDown
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case SessionStarting:
		return "session-starting"
	case Ready:
		return "ready"
	case Probing:
		return "probing"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case TornDown:
		return "torn-down"
	}
	return "unknown"
}

// MarshalText renders the state name in reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// next lists the legal successors of each state.
var next = map[State][]State{
	NotStarted:      {SessionStarting},
	SessionStarting: {Ready, Failed},
	Ready:           {Probing, Failed},
	Probing:         {Passed, Failed},
	Passed:          {TornDown},
	Failed:          {TornDown},
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Outcome is the verdict of a scenario.
type Outcome string

const (
	// OutcomePassed means every probe passed.
	OutcomePassed Outcome = "passed"
	// OutcomeFailed means at least one verdict failure was collected.
	OutcomeFailed Outcome = "failed"
	// OutcomeError means the scenario was aborted by launch or
	// infrastructure trouble.
	OutcomeError Outcome = "error"
)
