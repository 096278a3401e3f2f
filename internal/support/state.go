package support

import "fmt"

// State is the submission lifecycle of a single workflow.
type State int

const (
	StateInitial State = iota
	StateLoading
	StateSuccess
	StateFailed
)

var stateNames = [...]string{
	StateInitial: "INITIAL",
	StateLoading: "LOADING",
	StateSuccess: "SUCCESS",
	StateFailed:  "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name so API clients see "LOADING" rather than 1.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AttemptKind tells a fresh submission apart from a retry, for telemetry only.
type AttemptKind string

const (
	AttemptSubmit AttemptKind = "submit"
	AttemptRetry  AttemptKind = "retry"
)
