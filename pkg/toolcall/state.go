package toolcall

// State is a tool call's lifecycle position
type State int

const (
	StateGenerating State = iota
	StatePending
	StateExecuting
	StateSuccess
	StateError
	StateRejected
	StateAborted
	StateReview
	StateBackground
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StatePending:
		return "pending"
	case StateExecuting:
		return "executing"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	case StateRejected:
		return "rejected"
	case StateAborted:
		return "aborted"
	case StateReview:
		return "review"
	case StateBackground:
		return "background"
	default:
		return "unknown"
	}
}

// Terminal reports whether no later event may move the call back to an
// in-flight state.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateError, StateRejected, StateAborted, StateReview, StateBackground:
		return true
	}
	return false
}

// Protected reports the terminal states that asynchronous completion signals
// (tool_result, tool_error, executor returns) must never overwrite.
func (s State) Protected() bool {
	return s == StateRejected || s == StateReview || s == StateBackground
}

// CanTransition applies the lifecycle rules:
//   - terminal states never move to non-terminal states
//   - executing never downgrades to pending
//   - pending never downgrades to generating
//   - protected terminal states accept no transition at all
func CanTransition(from, to State) bool {
	if from == to {
		return false
	}
	if from.Protected() {
		return false
	}
	if from.Terminal() && !to.Terminal() {
		return false
	}
	if from == StateExecuting && to == StatePending {
		return false
	}
	if from == StatePending && to == StateGenerating {
		return false
	}
	return true
}
