package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/copilot/pkg/logger"
)

// Checkpoint is the durable record of stream position that survives a page
// reload: which stream, and the last event offset applied.
type Checkpoint struct {
	StreamID           string    `json:"streamId"`
	WorkflowID         string    `json:"workflowId"`
	ChatID             string    `json:"chatId,omitempty"`
	UserMessageID      string    `json:"userMessageId"`
	AssistantMessageID string    `json:"assistantMessageId"`
	LastEventID        int64     `json:"lastEventId"`
	ResumeAttempts     int       `json:"resumeAttempts"`
	UserMessageContent string    `json:"userMessageContent"`
	FileAttachments    []string  `json:"fileAttachments,omitempty"`
	Contexts           []string  `json:"contexts,omitempty"`
	StartedAt          time.Time `json:"startedAt"`
}

// Store persists a single checkpoint under one fixed storage key
type Store interface {
	Load(ctx context.Context) (*Checkpoint, bool, error)
	Put(ctx context.Context, cp *Checkpoint) error
	Delete(ctx context.Context) error
}

// Manager owns the checkpoint for one in-flight stream. Offsets are
// monotonic: Observe persists only when a new event id exceeds the stored
// one, so out-of-order or replayed deliveries are idempotent no-ops.
type Manager struct {
	mu    sync.Mutex
	store Store
	cp    *Checkpoint
	log   *logger.Logger
}

// NewManager creates a manager over a store
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		log:   logger.WithComponent("checkpoint"),
	}
}

// Begin installs and persists a fresh checkpoint at send time
func (m *Manager) Begin(ctx context.Context, cp Checkpoint) error {
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now()
	}
	m.mu.Lock()
	m.cp = &cp
	m.mu.Unlock()
	return m.store.Put(ctx, &cp)
}

// Current returns a copy of the active checkpoint
func (m *Manager) Current() (Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cp == nil {
		return Checkpoint{}, false
	}
	return *m.cp, true
}

// Observe records an event offset. The stored offset never decreases.
func (m *Manager) Observe(ctx context.Context, eventID int64) {
	m.mu.Lock()
	if m.cp == nil || eventID <= m.cp.LastEventID {
		m.mu.Unlock()
		return
	}
	m.cp.LastEventID = eventID
	snapshot := *m.cp
	m.mu.Unlock()

	if err := m.store.Put(ctx, &snapshot); err != nil {
		m.log.Warn("failed to persist checkpoint", "error", err, "event_id", eventID)
	}
}

// SetChatID patches the chat identity once the server assigns it
func (m *Manager) SetChatID(ctx context.Context, chatID string) {
	m.mu.Lock()
	if m.cp == nil || chatID == "" || m.cp.ChatID == chatID {
		m.mu.Unlock()
		return
	}
	m.cp.ChatID = chatID
	snapshot := *m.cp
	m.mu.Unlock()

	if err := m.store.Put(ctx, &snapshot); err != nil {
		m.log.Warn("failed to persist checkpoint", "error", err)
	}
}

// BumpResumeAttempts increments and persists the resume counter, returning
// the new count.
func (m *Manager) BumpResumeAttempts(ctx context.Context) int {
	m.mu.Lock()
	if m.cp == nil {
		m.mu.Unlock()
		return 0
	}
	m.cp.ResumeAttempts++
	snapshot := *m.cp
	m.mu.Unlock()

	if err := m.store.Put(ctx, &snapshot); err != nil {
		m.log.Warn("failed to persist checkpoint", "error", err)
	}
	return snapshot.ResumeAttempts
}

// Adopt installs an existing checkpoint (loaded at startup) as the active one
func (m *Manager) Adopt(cp Checkpoint) {
	m.mu.Lock()
	m.cp = &cp
	m.mu.Unlock()
}

// Clear deletes the checkpoint: called on normal completion and on explicit
// user abort. A page-unload abort must NOT clear, so a reload can resume.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.cp = nil
	m.mu.Unlock()
	if err := m.store.Delete(ctx); err != nil {
		m.log.Warn("failed to delete checkpoint", "error", err)
	}
}

// Load reads the persisted checkpoint, if any, without adopting it
func (m *Manager) Load(ctx context.Context) (*Checkpoint, bool, error) {
	return m.store.Load(ctx)
}
