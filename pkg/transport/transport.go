package transport

import (
	"context"
	"io"

	"github.com/flowforge/copilot/pkg/events"
)

// OpenRequest carries everything needed to open one response stream
type OpenRequest struct {
	Message           string
	ChatID            string
	WorkflowID        string
	Model             string
	FileAttachments   []string
	Contexts          []string
	ResumeFromEventID int64
}

// OpenResult is a successfully opened stream plus its HTTP status
type OpenResult struct {
	Stream   io.ReadCloser
	StreamID string
	Status   int
}

// Opener opens the SSE byte stream for a send. Implementations must honor
// ctx cancellation both while connecting and while the stream is read.
type Opener interface {
	Open(ctx context.Context, req OpenRequest) (*OpenResult, error)
}

// Fetcher retrieves already-emitted events for a stream in the inclusive
// range [from, to], in event-id order. Used by resume replay.
type Fetcher interface {
	FetchEvents(ctx context.Context, streamID string, from, to int64) ([]events.Event, error)
}
