package assembler

import (
	"github.com/flowforge/copilot/pkg/toolcall"
)

// Final is a streaming context collapsed into an immutable finalized message
type Final struct {
	StreamID  string
	ChatID    string
	Title     string
	Content   string
	Blocks    []Block
	ToolCalls map[string]*toolcall.Call
	DesignDoc string
	Err       string
	Aborted   bool
}

// Finalize collapses the context into a Final. The flusher must be drained
// before calling this; the context is not meant to be mutated afterwards.
func (a *Assembler) Finalize() Final {
	c := a.ctx
	calls := make(map[string]*toolcall.Call)
	if a.machine != nil {
		for _, call := range a.machine.Calls() {
			calls[call.ID] = call
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Final{
		StreamID:  c.StreamID,
		ChatID:    c.ChatID,
		Title:     c.Title,
		Content:   c.accumulated,
		Blocks:    c.blocksLocked(),
		ToolCalls: calls,
		DesignDoc: c.designDoc,
		Err:       c.errMsg,
		Aborted:   c.aborted,
	}
}

// AppendContinueMarker appends the continue-options affordance to the
// transcript after an abort, unless it is already present.
func (a *Assembler) AppendContinueMarker() {
	c := a.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.accumulated) >= len(ContinueOptionsMarker) &&
		c.accumulated[len(c.accumulated)-len(ContinueOptionsMarker):] == ContinueOptionsMarker {
		return
	}
	c.appendText(ContinueOptionsMarker)
}

// ContinueOptionsMarker is the literal affordance the UI renders as a
// "Continue" prompt at the end of an aborted response.
const ContinueOptionsMarker = "\n\n<contOptions/>"
