package assembler

import (
	"strings"
	"time"
)

// Inline tags recognized by the tokenizer, in priority order: design-document
// block, paired todo markers, thinking block.
const (
	tagDesignOpen    = "<design_workflow>"
	tagDesignClose   = "</design_workflow>"
	tagMarkOpen      = "<marktodo>"
	tagMarkClose     = "</marktodo>"
	tagCheckOpen     = "<checkofftodo>"
	tagCheckClose    = "</checkofftodo>"
	tagThinkingOpen  = "<thinking>"
	tagThinkingClose = "</thinking>"
)

var openerTags = []string{tagDesignOpen, tagMarkOpen, tagCheckOpen, tagThinkingOpen}

// tokenize runs the tag-aware tokenizer over the pending buffer left to
// right. A tag whose closing delimiter has not arrived yet is held back as
// the minimal possibly-partial suffix (bounded lookback: the last '<' within
// the final lookback bytes) and re-processed on the next chunk, so text is
// never corrupted by a tag split across chunk boundaries. With final set,
// everything still pending is flushed as-is instead of held.
func (a *Assembler) tokenize(final bool) {
	c := a.ctx
	for {
		if c.inDesign {
			if idx := strings.Index(c.pending, tagDesignClose); idx >= 0 {
				c.designDoc += c.pending[:idx]
				c.pending = c.pending[idx+len(tagDesignClose):]
				c.inDesign = false
				continue
			}
			hold := partialSuffixLen(c.pending, tagDesignClose, a.lookback)
			c.designDoc += c.pending[:len(c.pending)-hold]
			c.pending = c.pending[len(c.pending)-hold:]
			if final {
				c.designDoc += c.pending
				c.pending = ""
				c.inDesign = false
			}
			return
		}

		if c.inThinking {
			if idx := strings.Index(c.pending, tagThinkingClose); idx >= 0 {
				a.appendThinking(c.pending[:idx])
				c.pending = c.pending[idx+len(tagThinkingClose):]
				a.closeThinking()
				continue
			}
			hold := partialSuffixLen(c.pending, tagThinkingClose, a.lookback)
			a.appendThinking(c.pending[:len(c.pending)-hold])
			c.pending = c.pending[len(c.pending)-hold:]
			if final {
				a.appendThinking(c.pending)
				c.pending = ""
				a.closeThinking()
			}
			return
		}

		idx, tag := earliestTag(c.pending)
		if idx < 0 {
			hold := partialOpenerLen(c.pending, a.lookback)
			a.emitVisible(c.pending[:len(c.pending)-hold])
			c.pending = c.pending[len(c.pending)-hold:]
			if final && c.pending != "" {
				a.emitVisible(c.pending)
				c.pending = ""
			}
			return
		}

		a.emitVisible(c.pending[:idx])
		rest := c.pending[idx:]

		switch tag {
		case tagDesignOpen:
			c.pending = rest[len(tag):]
			c.inDesign = true

		case tagThinkingOpen:
			c.pending = rest[len(tag):]
			a.openThinking()

		case tagMarkOpen, tagCheckOpen:
			closeTag := tagMarkClose
			if tag == tagCheckOpen {
				closeTag = tagCheckClose
			}
			body := rest[len(tag):]
			end := strings.Index(body, closeTag)
			if end < 0 {
				// opener seen but closing delimiter not here yet
				c.pending = rest
				if final {
					a.emitVisible(c.pending)
					c.pending = ""
				}
				return
			}
			id := strings.TrimSpace(body[:end])
			c.pending = body[end+len(closeTag):]
			a.fireTodo(tag, id)
		}
	}
}

// emitVisible appends plain text to the transcript, applying the blank-line
// collapse that follows a stripped todo marker.
func (a *Assembler) emitVisible(text string) {
	c := a.ctx
	if c.skipNewlines {
		i := 0
		for i < len(text) && text[i] == '\n' {
			i++
		}
		if i == len(text) {
			// still inside the collapsed run
			return
		}
		if i > 0 && !c.tailNewline {
			c.appendText("\n")
		}
		c.skipNewlines = false
		text = text[i:]
	}
	c.appendText(text)
}

// fireTodo strips a todo marker from visible output, collapses the
// surrounding blank lines to at most one newline, and notifies the todo
// collaborator exactly once.
func (a *Assembler) fireTodo(openTag, id string) {
	c := a.ctx
	c.tailNewline = c.trimTrailingNewlines()
	c.skipNewlines = true

	if id == "" || a.todos == nil {
		return
	}
	if openTag == tagMarkOpen {
		a.todos.MarkTodo(id)
	} else {
		a.todos.CheckOffTodo(id)
	}
	a.log.Debug("todo marker applied", "tag", openTag, "id", id)
}

func (a *Assembler) openThinking() {
	c := a.ctx
	if c.inThinking {
		return
	}
	now := time.Now()
	c.blocks = append(c.blocks, &Block{
		Type:      BlockThinking,
		Timestamp: now,
		Streaming: true,
	})
	c.thinkingIdx = len(c.blocks) - 1
	c.thinkingStart = now
	c.inThinking = true
}

func (a *Assembler) appendThinking(text string) {
	c := a.ctx
	if text == "" {
		return
	}
	if !c.inThinking {
		a.openThinking()
	}
	c.blocks[c.thinkingIdx].Content += text
}

func (a *Assembler) closeThinking() {
	c := a.ctx
	if !c.inThinking {
		return
	}
	b := c.blocks[c.thinkingIdx]
	b.Streaming = false
	b.Duration = time.Since(c.thinkingStart)
	c.inThinking = false
}

// earliestTag finds the leftmost recognized opening tag
func earliestTag(s string) (int, string) {
	best := -1
	var bestTag string
	for _, tag := range openerTags {
		if i := strings.Index(s, tag); i >= 0 && (best < 0 || i < best) {
			best = i
			bestTag = tag
		}
	}
	return best, bestTag
}

// partialSuffixLen returns the length of the trailing suffix of s that could
// be the beginning of tag, looking back at most lookback bytes for a '<'.
func partialSuffixLen(s, tag string, lookback int) int {
	start := len(s) - lookback
	if start < 0 {
		start = 0
	}
	i := strings.LastIndexByte(s[start:], '<')
	if i < 0 {
		return 0
	}
	i += start
	suffix := s[i:]
	if len(suffix) < len(tag) && strings.HasPrefix(tag, suffix) {
		return len(suffix)
	}
	return 0
}

// partialOpenerLen is partialSuffixLen over every recognized opening tag
func partialOpenerLen(s string, lookback int) int {
	start := len(s) - lookback
	if start < 0 {
		start = 0
	}
	i := strings.LastIndexByte(s[start:], '<')
	if i < 0 {
		return 0
	}
	i += start
	suffix := s[i:]
	for _, tag := range openerTags {
		if len(suffix) < len(tag) && strings.HasPrefix(tag, suffix) {
			return len(suffix)
		}
	}
	return 0
}
