package toolcall

import (
	"time"
)

// Call tracks one tool invocation requested by the model
type Call struct {
	ID      string
	Name    string
	State   State
	Params  map[string]any
	Display string

	// Result holds the outcome once the call reaches success/error/rejected
	Result *Result

	// Sub-agent activity attributed to this call as parent
	SubAgentContent   string
	SubAgentToolCalls []*Call
	SubAgentStreaming bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Result is the outcome of a tool execution
type Result struct {
	Status  string
	Message string
	Data    map[string]any
}

// MergeParams folds newly supplied arguments into the call, keeping values
// that earlier partial payloads already delivered.
func (c *Call) MergeParams(args map[string]any) {
	if len(args) == 0 {
		return
	}
	if c.Params == nil {
		c.Params = make(map[string]any, len(args))
	}
	for k, v := range args {
		c.Params[k] = v
	}
}

// transition moves the call to next if the lifecycle rules allow it
func (c *Call) transition(next State) bool {
	if !CanTransition(c.State, next) {
		return false
	}
	c.State = next
	c.UpdatedAt = time.Now()
	return true
}
