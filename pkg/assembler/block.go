package assembler

import (
	"time"

	"github.com/flowforge/copilot/pkg/toolcall"
)

// BlockType identifies one kind of rendering unit
type BlockType string

const (
	BlockText             BlockType = "text"
	BlockThinking         BlockType = "thinking"
	BlockToolCall         BlockType = "tool_call"
	BlockSubagentText     BlockType = "subagent_text"
	BlockSubagentToolCall BlockType = "subagent_tool_call"
	BlockContexts         BlockType = "contexts"
)

// Block is one ordered unit of a rendered assistant message
type Block struct {
	Type      BlockType
	Content   string
	Timestamp time.Time

	// ToolCall is set for tool_call and subagent_tool_call blocks
	ToolCall *toolcall.Call

	// Streaming marks a thinking block that has not closed yet
	Streaming bool

	// Duration is stamped on a thinking block when it closes
	Duration time.Duration

	// Items is set for contexts blocks
	Items []string
}
