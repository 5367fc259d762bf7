package orchestrator

import (
	"strings"
	"sync"
	"time"

	"github.com/flowforge/copilot/pkg/checkpoint"
	"github.com/flowforge/copilot/pkg/logger"
)

// Role identifies who authored a transcript message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the session transcript
type Message struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Transcript is the ordered in-memory message history for one session. The
// orchestrator appends a user/assistant pair per send and patches the
// assistant entry as streams finalize or resume.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
	index    map[string]int
	log      *logger.Logger
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{
		index: make(map[string]int),
		log:   logger.WithComponent("transcript"),
	}
}

// Append adds a message to the end of the transcript
func (t *Transcript) Append(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(msg)
}

func (t *Transcript) appendLocked(msg Message) {
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, msg)
}

// Messages returns a snapshot copy of the transcript
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Get returns a message by id
func (t *Transcript) Get(id string) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.index[id]
	if !ok {
		return Message{}, false
	}
	return t.messages[idx], true
}

// SetContent replaces the content of an existing message
func (t *Transcript) SetContent(id, content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.index[id]
	if !ok {
		return false
	}
	t.messages[idx].Content = content
	return true
}

// Reconcile aligns the transcript with a resumed checkpoint. Missing user and
// assistant entries are recreated from the checkpoint; the assistant entry is
// then patched with the replayed content. When the existing assistant text is
// a strict prefix of the replay, the replay simply extends it; any other
// divergence is replaced verbatim and logged.
func (t *Transcript) Reconcile(cp checkpoint.Checkpoint, replayed string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.index[cp.UserMessageID]; !ok {
		t.appendLocked(Message{
			ID:        cp.UserMessageID,
			Role:      RoleUser,
			Content:   cp.UserMessageContent,
			CreatedAt: cp.StartedAt,
		})
	}
	idx, ok := t.index[cp.AssistantMessageID]
	if !ok {
		t.appendLocked(Message{
			ID:        cp.AssistantMessageID,
			Role:      RoleAssistant,
			CreatedAt: cp.StartedAt,
		})
		idx = t.index[cp.AssistantMessageID]
	}

	existing := t.messages[idx].Content
	if existing != "" && existing != replayed && !strings.HasPrefix(replayed, existing) {
		t.log.Warn("replayed content diverges from transcript, replacing",
			"message_id", cp.AssistantMessageID,
			"existing_len", len(existing), "replayed_len", len(replayed))
	}
	t.messages[idx].Content = replayed
}
