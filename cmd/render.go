package cmd

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/flowforge/copilot/pkg/assembler"
)

var (
	thinkingStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	toolStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#61afaf"))
	toolStateOk   = lipgloss.NewStyle().Foreground(lipgloss.Color("#93b56b"))
	toolStateBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d95f5f"))
	contextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#83715f"))
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f5b761"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#d95f5f"))
)

// renderBlocks formats an ordered block snapshot for terminal output
func renderBlocks(blocks []assembler.Block) string {
	var b strings.Builder
	for _, block := range blocks {
		switch block.Type {
		case assembler.BlockText:
			b.WriteString(block.Content)
		case assembler.BlockThinking:
			if block.Content != "" {
				b.WriteString(thinkingStyle.Render(block.Content))
				b.WriteString("\n")
			}
		case assembler.BlockToolCall:
			if block.ToolCall == nil {
				continue
			}
			state := block.ToolCall.State.String()
			styled := toolStateOk
			switch state {
			case "error", "rejected", "aborted":
				styled = toolStateBad
			}
			b.WriteString(toolStyle.Render(fmt.Sprintf("⏺ %s", block.ToolCall.Name)))
			b.WriteString(" ")
			b.WriteString(styled.Render(state))
			b.WriteString("\n")
		case assembler.BlockContexts:
			b.WriteString(contextStyle.Render(fmt.Sprintf("(%d attached contexts)", len(block.Items))))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// consoleSink streams visible text to stdout as it arrives and renders the
// full block transcript once the stream finalizes. Block snapshots arrive on
// the flusher's timer goroutine while the final arrives on the stream
// goroutine, so the print offset is guarded.
type consoleSink struct {
	mu      sync.Mutex
	printed int
}

func newConsoleSink() *consoleSink {
	return &consoleSink{}
}

// visibleText concatenates the plain text blocks of a snapshot
func visibleText(blocks []assembler.Block) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == assembler.BlockText {
			b.WriteString(block.Content)
		}
	}
	return b.String()
}

// OnBlocks prints the text delta since the last snapshot
func (s *consoleSink) OnBlocks(blocks []assembler.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := visibleText(blocks)
	if len(text) > s.printed {
		fmt.Print(text[s.printed:])
		s.printed = len(text)
	}
}

// OnTitle implements orchestrator.Sink
func (s *consoleSink) OnTitle(title string) {
	fmt.Println(titleStyle.Render(title))
}

// OnFinal prints any remaining text plus the non-text transcript structure
func (s *consoleSink) OnFinal(final assembler.Final) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := visibleText(final.Blocks)
	if len(text) > s.printed {
		fmt.Print(text[s.printed:])
		s.printed = len(text)
	}
	fmt.Println()
	for _, block := range final.Blocks {
		if block.Type == assembler.BlockText {
			continue
		}
		fmt.Print(renderBlocks([]assembler.Block{block}))
	}
	if final.Err != "" {
		fmt.Println(errorStyle.Render(final.Err))
	}
}

// OnError implements orchestrator.Sink
func (s *consoleSink) OnError(err error) {
	fmt.Println(errorStyle.Render(err.Error()))
}
