package orchestrator

import (
	"sync"
	"time"
)

// StreamState is the coarse lifecycle state of one stream id
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamStreaming
	StreamComplete
	StreamError
	StreamAborted
)

// String returns the string representation of the state
func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamStreaming:
		return "streaming"
	case StreamComplete:
		return "complete"
	case StreamError:
		return "error"
	case StreamAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// StreamInfo holds bookkeeping for one stream id
type StreamInfo struct {
	ID        string
	State     StreamState
	StartTime time.Time
	EndTime   time.Time
	Err       error
}

// Tracker records the lifecycle state of streams seen this session. Startup
// resume consults it so a stream already being consumed is never adopted
// twice.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]*StreamInfo
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*StreamInfo)}
}

// Start marks a stream as actively streaming
func (t *Tracker) Start(streamID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[streamID] = &StreamInfo{
		ID:        streamID,
		State:     StreamStreaming,
		StartTime: time.Now(),
	}
}

// Update moves a stream to a terminal state
func (t *Tracker) Update(streamID string, state StreamState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.states[streamID]
	if !ok {
		return
	}
	info.State = state
	if state != StreamStreaming {
		info.EndTime = time.Now()
	}
}

// SetError marks a stream as failed
func (t *Tracker) SetError(streamID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.states[streamID]; ok {
		info.Err = err
		info.State = StreamError
		info.EndTime = time.Now()
	}
}

// State returns the current state of a stream
func (t *Tracker) State(streamID string) (StreamState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if info, ok := t.states[streamID]; ok {
		return info.State, true
	}
	return StreamIdle, false
}

// Info returns a copy of the bookkeeping for a stream
func (t *Tracker) Info(streamID string) (StreamInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.states[streamID]
	if !ok {
		return StreamInfo{}, false
	}
	return *info, true
}

// Forget drops a stream entry entirely, used when the server renames a
// stream at open time.
func (t *Tracker) Forget(streamID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, streamID)
}

// Cleanup drops terminal streams older than the given age
func (t *Tracker) Cleanup(olderThan time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for id, info := range t.states {
		if info.State != StreamStreaming && now.Sub(info.EndTime) > olderThan {
			delete(t.states, id)
		}
	}
}
