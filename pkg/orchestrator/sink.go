package orchestrator

import (
	"context"

	"github.com/flowforge/copilot/pkg/assembler"
)

// Sink receives UI-facing updates from an in-flight stream. Implementations
// must be fast; block snapshots arrive on flusher ticks and the final message
// arrives exactly once per send.
type Sink interface {
	OnBlocks(blocks []assembler.Block)
	OnTitle(title string)
	OnFinal(final assembler.Final)
	OnError(err error)
}

// SinkFuncs adapts plain functions into a Sink. Nil fields are no-ops.
type SinkFuncs struct {
	Blocks func(blocks []assembler.Block)
	Title  func(title string)
	Final  func(final assembler.Final)
	Err    func(err error)
}

// OnBlocks implements Sink
func (s SinkFuncs) OnBlocks(blocks []assembler.Block) {
	if s.Blocks != nil {
		s.Blocks(blocks)
	}
}

// OnTitle implements Sink
func (s SinkFuncs) OnTitle(title string) {
	if s.Title != nil {
		s.Title(title)
	}
}

// OnFinal implements Sink
func (s SinkFuncs) OnFinal(final assembler.Final) {
	if s.Final != nil {
		s.Final(final)
	}
}

// OnError implements Sink
func (s SinkFuncs) OnError(err error) {
	if s.Err != nil {
		s.Err(err)
	}
}

var _ Sink = SinkFuncs{}

// Persister stores the finalized message after a stream terminates.
// Persistence failures are logged, never fatal: the in-memory transcript is
// the source of truth for the session.
type Persister interface {
	SaveFinal(ctx context.Context, final assembler.Final) error
}
