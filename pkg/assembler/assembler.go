package assembler

import (
	"context"
	"strings"
	"time"

	"github.com/flowforge/copilot/pkg/events"
	"github.com/flowforge/copilot/pkg/logger"
	"github.com/flowforge/copilot/pkg/toolcall"
)

// TodoSink receives the side effects of todo markers embedded in content
type TodoSink interface {
	MarkTodo(id string)
	CheckOffTodo(id string)
}

// defaultLookback bounds the partial-tag search window at chunk boundaries
const defaultLookback = 50

// Assembler consumes decoded events and maintains the ordered content-block
// transcript for one in-flight response.
type Assembler struct {
	ctx     *Context
	machine *toolcall.Machine
	todos   TodoSink
	flusher *Flusher

	onTitle func(string)

	lookback    int
	lastEventID int64

	log *logger.Logger
}

// AssemblerOption configures an Assembler
type AssemblerOption func(*Assembler)

// WithTodoSink wires the todo-marker collaborator
func WithTodoSink(s TodoSink) AssemblerOption {
	return func(a *Assembler) { a.todos = s }
}

// WithFlusher wires the batching flusher for UI notifications
func WithFlusher(f *Flusher) AssemblerOption {
	return func(a *Assembler) { a.flusher = f }
}

// WithTitleHook registers a callback for title_updated events
func WithTitleHook(fn func(string)) AssemblerOption {
	return func(a *Assembler) { a.onTitle = fn }
}

// WithLookback overrides the partial-tag lookback window
func WithLookback(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.lookback = n
		}
	}
}

// New creates an assembler bound to one streaming context and one tool-call
// machine.
func New(sctx *Context, machine *toolcall.Machine, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		ctx:      sctx,
		machine:  machine,
		lookback: defaultLookback,
		log:      logger.WithComponent("assembler"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Context returns the streaming context this assembler mutates
func (a *Assembler) Context() *Context { return a.ctx }

// Apply folds one event into the context. It returns false once the stream
// is logically complete (done or error); errors inside a single handler never
// terminate the loop.
//
// Apply holds the context mutex for the whole event so the flusher's timer
// goroutine never snapshots a half-applied mutation. Collaborator callbacks
// (todo sink, title hook) run with the mutex held and must not call back into
// the context.
func (a *Assembler) Apply(ctx context.Context, ev events.Event) bool {
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()

	// replay de-duplication: server event ids are monotonic per stream
	if ev.EventID > 0 {
		if ev.EventID <= a.lastEventID {
			a.log.Debug("skipping already-applied event", "event_id", ev.EventID)
			return true
		}
		a.lastEventID = ev.EventID
	}

	if ev.Subagent != "" {
		switch ev.Type {
		case events.TypeContent, events.TypeToolGenerating, events.TypeToolCall,
			events.TypeToolResult, events.TypeToolError:
			a.applySubagent(ev)
			a.notify()
			return true
		}
	}

	switch ev.Type {
	case events.TypeContent:
		a.ctx.pending += ev.Text
		a.tokenize(false)
		a.notify()

	case events.TypeReasoning:
		a.applyReasoning(ev)
		a.notify()

	case events.TypeToolGenerating:
		call := a.machine.ApplyGenerating(ev)
		a.upsertToolBlock(call)
		a.notify()

	case events.TypeToolCall:
		call := a.machine.ApplyCall(ctx, ev)
		a.upsertToolBlock(call)
		a.notify()

	case events.TypeToolResult, events.TypeToolError:
		call := a.machine.ApplyResult(ev)
		a.upsertToolBlock(call)
		a.notify()

	case events.TypeSubagentStart:
		if call, ok := a.machine.Get(ev.ToolCallID); ok {
			call.SubAgentStreaming = true
		}
		a.notify()

	case events.TypeSubagentEnd:
		if call, ok := a.machine.Get(ev.ToolCallID); ok {
			call.SubAgentStreaming = false
			call.SubAgentContent = a.ctx.subContent[ev.ToolCallID]
		}
		a.notify()

	case events.TypeChatID:
		a.ctx.ChatID = ev.ChatID

	case events.TypeTitleUpdated:
		a.ctx.Title = ev.Title
		if a.onTitle != nil {
			a.onTitle(ev.Title)
		}

	case events.TypeDone:
		a.ctx.doneCount++
		if a.ctx.doneCount > 1 {
			a.log.Debug("duplicate done event", "count", a.ctx.doneCount)
		}
		// one done marks the stream logically complete
		return false

	case events.TypeError:
		a.ctx.errMsg = ev.ErrorMessage
		return false

	case events.TypeStreamEnd:
		a.finishStream()

	default:
		a.log.Warn("unhandled event type", "type", string(ev.Type))
	}

	return true
}

// finishStream is the synthetic end-of-stream handler: flush any pending
// content and close any open thinking block.
func (a *Assembler) finishStream() {
	a.tokenize(true)
	a.closeThinking()
	a.notify()
}

// applyReasoning handles reasoning events: start/end phases bracket a
// thinking block, anything else is streamed reasoning text.
func (a *Assembler) applyReasoning(ev events.Event) {
	switch ev.Phase {
	case events.PhaseStart:
		a.openThinking()
	case events.PhaseEnd:
		a.closeThinking()
	default:
		// inline thinking tags are stripped defensively
		text := strings.ReplaceAll(ev.Text, tagThinkingOpen, "")
		text = strings.ReplaceAll(text, tagThinkingClose, "")
		a.appendThinking(text)
	}
}

// upsertToolBlock inserts or refreshes the content block embedding a call
func (a *Assembler) upsertToolBlock(call *toolcall.Call) {
	if call == nil || call.ID == "" {
		return
	}
	c := a.ctx
	if idx, ok := c.blockByCall[call.ID]; ok {
		c.blocks[idx].ToolCall = call
		return
	}
	c.blocks = append(c.blocks, &Block{
		Type:      BlockToolCall,
		Timestamp: time.Now(),
		ToolCall:  call,
	})
	c.blockByCall[call.ID] = len(c.blocks) - 1
}

// applySubagent routes sub-agent attributed events into the nested maps
// keyed by the parent tool-call id. The parent stream and the sub-agent
// stream write to disjoint keys. Called with the context mutex held.
func (a *Assembler) applySubagent(ev events.Event) {
	c := a.ctx
	parent := ev.Subagent

	switch ev.Type {
	case events.TypeContent:
		c.subContent[parent] += ev.Text
		blocks := c.subBlocks[parent]
		if n := len(blocks); n > 0 && blocks[n-1].Type == BlockSubagentText {
			blocks[n-1].Content += ev.Text
		} else {
			c.subBlocks[parent] = append(blocks, &Block{
				Type:      BlockSubagentText,
				Content:   ev.Text,
				Timestamp: time.Now(),
			})
		}
		if call, ok := a.machine.Get(parent); ok {
			call.SubAgentContent = c.subContent[parent]
		}

	case events.TypeToolGenerating, events.TypeToolCall:
		sub := a.findSubCall(parent, ev.ToolCallID)
		if sub == nil {
			sub = &toolcall.Call{
				ID:        ev.ToolCallID,
				Name:      ev.ToolName,
				State:     toolcall.StatePending,
				CreatedAt: time.Now(),
			}
			c.subCalls[parent] = append(c.subCalls[parent], sub)
			c.subBlocks[parent] = append(c.subBlocks[parent], &Block{
				Type:      BlockSubagentToolCall,
				Timestamp: time.Now(),
				ToolCall:  sub,
			})
			if call, ok := a.machine.Get(parent); ok {
				call.SubAgentToolCalls = c.subCalls[parent]
			}
		}
		sub.MergeParams(ev.Args)

	case events.TypeToolResult, events.TypeToolError:
		sub := a.findSubCall(parent, ev.ToolCallID)
		if sub == nil {
			return
		}
		next := toolcall.StateSuccess
		if ev.Type == events.TypeToolError ||
			(ev.Result != nil && ev.Result.Status == events.StatusError) {
			next = toolcall.StateError
		} else if ev.Result != nil && ev.Result.Status == events.StatusSkipped {
			next = toolcall.StateRejected
		}
		if !sub.State.Protected() && toolcall.CanTransition(sub.State, next) {
			sub.State = next
			if ev.Result != nil {
				sub.Result = &toolcall.Result{
					Status:  ev.Result.Status,
					Message: ev.Result.Message,
					Data:    ev.Result.Data,
				}
			}
		}
	}
}

func (a *Assembler) findSubCall(parent, id string) *toolcall.Call {
	for _, sub := range a.ctx.subCalls[parent] {
		if sub.ID == id {
			return sub
		}
	}
	return nil
}

// AddContexts inserts a contexts block carrying attached context documents
func (a *Assembler) AddContexts(items []string) {
	if len(items) == 0 {
		return
	}
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()
	a.ctx.blocks = append(a.ctx.blocks, &Block{
		Type:      BlockContexts,
		Timestamp: time.Now(),
		Items:     items,
	})
	a.notify()
}

func (a *Assembler) notify() {
	if a.flusher != nil {
		a.flusher.Notify()
	}
}
