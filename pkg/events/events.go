package events

import (
	"encoding/json"
	"fmt"
)

// Type identifies one kind of server emission
type Type string

const (
	TypeContent        Type = "content"
	TypeReasoning      Type = "reasoning"
	TypeToolGenerating Type = "tool_generating"
	TypeToolCall       Type = "tool_call"
	TypeToolResult     Type = "tool_result"
	TypeToolError      Type = "tool_error"
	TypeSubagentStart  Type = "subagent_start"
	TypeSubagentEnd    Type = "subagent_end"
	TypeChatID         Type = "chat_id"
	TypeTitleUpdated   Type = "title_updated"
	TypeDone           Type = "done"
	TypeError          Type = "error"

	// TypeStreamEnd is synthetic: the orchestrator injects it after the
	// decoder is exhausted so the assembler can flush and finalize.
	TypeStreamEnd Type = "stream_end"
)

// ReasoningPhase values carried by reasoning events
const (
	PhaseStart = "start"
	PhaseEnd   = "end"
)

// ToolResult is the payload of tool_result / tool_error events and of
// registry executions.
type ToolResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Tool result statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Event is one decoded server emission. The duck-typed wire payload is
// resolved into explicit per-variant fields exactly once, at decode time.
type Event struct {
	Type     Type
	EventID  int64
	StreamID string
	// Subagent carries the parent tool-call id for sub-agent attributed events
	Subagent string

	// content / reasoning
	Text  string
	Phase string

	// tool_generating / tool_call
	ToolCallID string
	ToolName   string
	Args       map[string]any
	Partial    bool

	// tool_result / tool_error
	Result *ToolResult

	// chat_id / title_updated
	ChatID string
	Title  string

	// error
	ErrorMessage string
}

// wireEvent is the raw JSON frame shape
type wireEvent struct {
	Type       Type            `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	EventID    int64           `json:"eventId,omitempty"`
	StreamID   string          `json:"streamId,omitempty"`
	Subagent   string          `json:"subagent,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
}

// toolPayload covers the tool_* data shapes
type toolPayload struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Partial   bool           `json:"partial"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
}

// textPayload covers content/reasoning object payloads
type textPayload struct {
	Text  string `json:"text"`
	Phase string `json:"phase"`
}

// Parse decodes one JSON frame into a resolved Event.
func Parse(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("malformed event frame: %w", err)
	}
	if w.Type == "" {
		return Event{}, fmt.Errorf("event frame missing type")
	}

	ev := Event{
		Type:     w.Type,
		EventID:  w.EventID,
		StreamID: w.StreamID,
		Subagent: w.Subagent,
	}

	switch w.Type {
	case TypeContent:
		ev.Text = decodeText(w.Data)

	case TypeReasoning:
		text, phase := decodeTextPhase(w.Data)
		ev.Text = text
		ev.Phase = phase

	case TypeToolGenerating, TypeToolCall:
		var p toolPayload
		if len(w.Data) > 0 {
			if err := json.Unmarshal(w.Data, &p); err != nil {
				return Event{}, fmt.Errorf("malformed %s payload: %w", w.Type, err)
			}
		}
		ev.ToolCallID = firstNonEmpty(w.ToolCallID, p.ID)
		ev.ToolName = p.Name
		ev.Args = p.Arguments
		ev.Partial = p.Partial

	case TypeToolResult, TypeToolError:
		var p toolPayload
		if len(w.Data) > 0 {
			if err := json.Unmarshal(w.Data, &p); err != nil {
				return Event{}, fmt.Errorf("malformed %s payload: %w", w.Type, err)
			}
		}
		ev.ToolCallID = firstNonEmpty(w.ToolCallID, p.ID)
		ev.Result = &ToolResult{Status: p.Status, Message: p.Message, Data: p.Data}
		if ev.Result.Status == "" {
			if w.Type == TypeToolError {
				ev.Result.Status = StatusError
			} else {
				ev.Result.Status = StatusSuccess
			}
		}

	case TypeSubagentStart, TypeSubagentEnd:
		ev.ToolCallID = firstNonEmpty(w.ToolCallID, w.Subagent, decodeText(w.Data))
		if ev.Subagent == "" {
			ev.Subagent = ev.ToolCallID
		}

	case TypeChatID:
		ev.ChatID = decodeText(w.Data)

	case TypeTitleUpdated:
		ev.Title = decodeText(w.Data)

	case TypeError:
		ev.ErrorMessage = decodeText(w.Data)
		if ev.ErrorMessage == "" {
			ev.ErrorMessage = "stream error"
		}

	case TypeDone:
		// no payload
	}

	return ev, nil
}

// decodeText accepts either a bare JSON string or an object with a text field
func decodeText(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var p textPayload
	if err := json.Unmarshal(data, &p); err == nil {
		return p.Text
	}
	return ""
}

func decodeTextPhase(data json.RawMessage) (string, string) {
	if len(data) == 0 {
		return "", ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == PhaseStart || s == PhaseEnd {
			return "", s
		}
		return s, ""
	}
	var p textPayload
	if err := json.Unmarshal(data, &p); err == nil {
		return p.Text, p.Phase
	}
	return "", ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
