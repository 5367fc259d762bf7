package assembler

import (
	"sync"
	"time"

	"github.com/flowforge/copilot/pkg/toolcall"
)

// Context is the per-message mutable accumulator for one in-flight response.
// It is created when a send begins, mutated only by the Assembler while the
// stream runs, and collapsed into a Final when the stream terminates.
//
// Mutation happens on the stream goroutine applying events in arrival order,
// but the flusher snapshots blocks from its timer goroutine and Abort flags
// the context from the caller's goroutine, so a mutex guards all mutable
// state. The exported accessors take it; the Assembler holds it for the
// duration of each applied event.
type Context struct {
	StreamID string
	ChatID   string
	Title    string

	mu sync.Mutex

	accumulated string
	blocks      []*Block

	// pending holds trailing bytes that cannot be classified yet (possible
	// partial tags held back by the tokenizer)
	pending string

	inThinking    bool
	thinkingIdx   int
	thinkingStart time.Time

	inDesign  bool
	designDoc string

	// todo-tag blank line collapsing state
	skipNewlines bool
	tailNewline  bool

	doneCount int
	errMsg    string
	aborted   bool

	blockByCall map[string]int

	// sub-agent accumulation, keyed by parent tool-call id
	subContent map[string]string
	subBlocks  map[string][]*Block
	subCalls   map[string][]*toolcall.Call
}

// NewContext creates an empty streaming context
func NewContext(streamID string) *Context {
	return &Context{
		StreamID:    streamID,
		blockByCall: make(map[string]int),
		subContent:  make(map[string]string),
		subBlocks:   make(map[string][]*Block),
		subCalls:    make(map[string][]*toolcall.Call),
	}
}

// AccumulatedContent returns the full plain-text transcript so far
func (c *Context) AccumulatedContent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accumulated
}

// Blocks returns a snapshot copy of the ordered content blocks
func (c *Context) Blocks() []Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocksLocked()
}

func (c *Context) blocksLocked() []Block {
	out := make([]Block, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = *b
	}
	return out
}

// DesignDoc returns the captured design-document artifact, if any
func (c *Context) DesignDoc() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.designDoc
}

// DoneCount returns how many done events arrived
func (c *Context) DoneCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doneCount
}

// Done reports whether the stream reached logical completion
func (c *Context) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doneCount >= 1
}

// Err returns the error payload of a terminal error event, if any
func (c *Context) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Aborted reports whether the context was flagged as user-aborted
func (c *Context) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

// MarkAborted flags the context as aborted
func (c *Context) MarkAborted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
}

// SubAgentContent returns the accumulated sub-agent text for a parent call
func (c *Context) SubAgentContent(parentID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subContent[parentID]
}

// SubAgentBlocks returns the sub-agent blocks for a parent call
func (c *Context) SubAgentBlocks(parentID string) []Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	src := c.subBlocks[parentID]
	out := make([]Block, len(src))
	for i, b := range src {
		out[i] = *b
	}
	return out
}

// AppendText appends visible plain text, merging into a trailing text block
// or starting a new one.
func (c *Context) appendText(text string) {
	if text == "" {
		return
	}
	c.accumulated += text
	if n := len(c.blocks); n > 0 && c.blocks[n-1].Type == BlockText {
		c.blocks[n-1].Content += text
		return
	}
	c.blocks = append(c.blocks, &Block{
		Type:      BlockText,
		Content:   text,
		Timestamp: time.Now(),
	})
}

// trimTrailingNewlines reduces the visible tail to at most one newline,
// reporting whether a newline remains. Used when a todo marker is stripped.
func (c *Context) trimTrailingNewlines() bool {
	n := len(c.blocks)
	if n == 0 || c.blocks[n-1].Type != BlockText {
		return false
	}
	b := c.blocks[n-1]
	trimmed := 0
	for len(b.Content) > 0 && b.Content[len(b.Content)-1] == '\n' {
		b.Content = b.Content[:len(b.Content)-1]
		trimmed++
	}
	if trimmed > 0 {
		b.Content += "\n"
		trimmed--
	}
	if trimmed > 0 {
		c.accumulated = c.accumulated[:len(c.accumulated)-trimmed]
	}
	return len(b.Content) > 0 && b.Content[len(b.Content)-1] == '\n'
}
