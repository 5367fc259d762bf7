package toolcall

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/copilot/pkg/events"
	"github.com/flowforge/copilot/pkg/logger"
)

// Machine tracks the lifecycle of every tool call referenced during one
// in-flight response and applies the auto-execution policy.
//
// Event-driven mutation happens on the stream goroutine, but executor
// completions run asynchronously and race with later stream events for the
// same call id. The terminal-state guard in CanTransition resolves that race:
// whichever side settles the call first wins.
type Machine struct {
	mu    sync.Mutex
	calls map[string]*Call
	order []string

	registry    Registry
	autoAllowed map[string]bool

	// schedule defers auto-execution so the pending state is observable
	// before the call flips to executing. Replaced with a synchronous
	// function in tests.
	schedule func(fn func())

	// execDisabled suspends auto-execution while replayed events rebuild
	// state; results come from the replayed tool_result events instead.
	execDisabled bool

	onUpdate func(*Call)
	log      *logger.Logger
}

// SetExecutionEnabled toggles the auto-execution policy. Disabled during
// checkpoint replay, re-enabled before the live feed resumes.
func (m *Machine) SetExecutionEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execDisabled = !on
}

// Option configures a Machine
type Option func(*Machine)

// WithAutoAllowed sets tool names that execute without confirmation even when
// the registry declares an interrupt.
func WithAutoAllowed(names []string) Option {
	return func(m *Machine) {
		for _, n := range names {
			m.autoAllowed[n] = true
		}
	}
}

// WithScheduler replaces the deferred-execution scheduler
func WithScheduler(schedule func(fn func())) Option {
	return func(m *Machine) { m.schedule = schedule }
}

// WithUpdateHook registers a callback invoked after every state change
func WithUpdateHook(fn func(*Call)) Option {
	return func(m *Machine) { m.onUpdate = fn }
}

// NewMachine creates a state machine. A nil registry disables auto-execution
// entirely, which is how replay reconstructs state without re-running tools.
func NewMachine(registry Registry, opts ...Option) *Machine {
	m := &Machine{
		calls:       make(map[string]*Call),
		registry:    registry,
		autoAllowed: make(map[string]bool),
		schedule:    func(fn func()) { go fn() },
		log:         logger.WithComponent("toolcall_machine"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a tracked call by id
func (m *Machine) Get(id string) (*Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	return c, ok
}

// State returns the current state of a tracked call
func (m *Machine) State(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return StateGenerating, false
	}
	return c.State, true
}

// Calls returns all tracked calls in first-seen order
func (m *Machine) Calls() []*Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Call, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.calls[id])
	}
	return out
}

// upsert returns the tracked call for id, creating it when unseen.
// Callers must hold m.mu.
func (m *Machine) upsert(id, name string) (*Call, bool) {
	if c, ok := m.calls[id]; ok {
		if name != "" && c.Name == "" {
			c.Name = name
		}
		return c, false
	}
	c := &Call{
		ID:        id,
		Name:      name,
		State:     StatePending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.calls[id] = c
	m.order = append(m.order, id)
	return c, true
}

// ApplyGenerating handles a tool_generating event: an unseen call is created
// pending; a known call is left alone (guards forbid downgrades anyway).
func (m *Machine) ApplyGenerating(ev events.Event) *Call {
	m.mu.Lock()
	c, created := m.upsert(ev.ToolCallID, ev.ToolName)
	m.mu.Unlock()
	if created {
		m.log.Debug("tool call generating", "id", c.ID, "name", c.Name)
		m.notify(c)
	}
	return c
}

// ApplyCall handles a tool_call event: upsert, merge arguments, transition to
// pending, and schedule auto-execution when the policy allows it.
func (m *Machine) ApplyCall(ctx context.Context, ev events.Event) *Call {
	m.mu.Lock()
	c, _ := m.upsert(ev.ToolCallID, ev.ToolName)
	c.MergeParams(ev.Args)
	c.transition(StatePending)

	run := false
	if !ev.Partial && m.registry != nil && !m.execDisabled {
		allowed := m.autoAllowed[c.Name] || !m.registry.HasInterrupt(c.Name, c.Params)
		// auto-execution fires at most once per call
		if allowed && c.State != StateExecuting && !c.State.Terminal() {
			run = true
		}
	}
	id := c.ID
	m.mu.Unlock()

	m.notify(c)
	if run {
		m.schedule(func() { m.execute(ctx, id) })
	}
	return c
}

// execute flips the call to executing and runs it through the registry
func (m *Machine) execute(ctx context.Context, id string) {
	m.mu.Lock()
	c, ok := m.calls[id]
	if !ok || !c.transition(StateExecuting) {
		m.mu.Unlock()
		return
	}
	name, params := c.Name, c.Params
	m.mu.Unlock()
	m.notify(c)

	res, err := m.registry.Execute(ctx, name, params)

	m.mu.Lock()
	// a stream event may have finished the call while the executor ran;
	// protected and terminal outcomes win over the executor's answer
	if c.State != StateExecuting {
		m.mu.Unlock()
		m.log.Debug("executor result ignored, call already settled",
			"id", id, "state", c.State.String())
		return
	}
	if err != nil && res.Message == "" {
		res.Message = err.Error()
	}
	c.Result = &res
	if err != nil || res.Status == "error" {
		c.transition(StateError)
	} else {
		c.transition(StateSuccess)
	}
	m.mu.Unlock()
	m.notify(c)
}

// ApplyResult handles tool_result / tool_error events. Protected terminal
// states are never overwritten by these asynchronous completion signals.
func (m *Machine) ApplyResult(ev events.Event) *Call {
	m.mu.Lock()
	c, _ := m.upsert(ev.ToolCallID, ev.ToolName)
	if c.State.Protected() {
		m.mu.Unlock()
		m.log.Debug("ignoring result for protected call", "id", c.ID, "state", c.State.String())
		return c
	}

	next := StateSuccess
	if ev.Result != nil {
		switch ev.Result.Status {
		case events.StatusError:
			next = StateError
		case events.StatusSkipped:
			next = StateRejected
		}
		c.Result = &Result{
			Status:  ev.Result.Status,
			Message: ev.Result.Message,
			Data:    ev.Result.Data,
		}
	}
	if ev.Type == events.TypeToolError {
		next = StateError
	}
	changed := c.transition(next)
	m.mu.Unlock()
	if changed {
		m.notify(c)
	}
	return c
}

// Confirm is the external collaborator action for an interrupt-gated call:
// the user approved it, so execute now.
func (m *Machine) Confirm(ctx context.Context, id string) bool {
	m.mu.Lock()
	c, ok := m.calls[id]
	runnable := ok && c.State == StatePending && m.registry != nil
	m.mu.Unlock()
	if !runnable {
		return false
	}
	m.schedule(func() { m.execute(ctx, id) })
	return true
}

// Reject marks a pending call as rejected by the user
func (m *Machine) Reject(id string) bool {
	m.mu.Lock()
	c, ok := m.calls[id]
	changed := ok && c.transition(StateRejected)
	m.mu.Unlock()
	if changed {
		m.notify(c)
	}
	return changed
}

// AbortAll forces every non-terminal call, and any call parked in review,
// into aborted.
func (m *Machine) AbortAll() {
	m.mu.Lock()
	var changed []*Call
	for _, id := range m.order {
		c := m.calls[id]
		if !c.State.Terminal() || c.State == StateReview {
			c.State = StateAborted
			c.UpdatedAt = time.Now()
			changed = append(changed, c)
		}
	}
	m.mu.Unlock()
	for _, c := range changed {
		m.notify(c)
	}
}

func (m *Machine) notify(c *Call) {
	if m.onUpdate != nil {
		m.onUpdate(c)
	}
}
