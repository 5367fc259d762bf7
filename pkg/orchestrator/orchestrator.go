package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/copilot/pkg/assembler"
	"github.com/flowforge/copilot/pkg/checkpoint"
	"github.com/flowforge/copilot/pkg/events"
	"github.com/flowforge/copilot/pkg/logger"
	"github.com/flowforge/copilot/pkg/toolcall"
	"github.com/flowforge/copilot/pkg/transport"
)

// Cancellation causes. Abort distinguishes a deliberate user stop from a page
// unload: only the latter keeps the checkpoint so a reload can resume.
var (
	ErrAborted   = errors.New("stream aborted by user")
	ErrUnloading = errors.New("stream interrupted by unload")
)

// SendRequest is one user message to stream a response for
type SendRequest struct {
	Message         string
	ChatID          string
	FileAttachments []string
	Contexts        []string
}

// AbortOptions control how an in-flight stream is torn down
type AbortOptions struct {
	// SuppressContinueOption skips the trailing continue affordance, used
	// when the abort is immediately followed by a replacement send.
	SuppressContinueOption bool
	// Unloading marks a page-unload teardown: the checkpoint is preserved
	// and no continue affordance is appended.
	Unloading bool
}

// Orchestrator drives the full lifecycle of a send: open the stream, decode
// and assemble events, track tool calls, checkpoint progress, and finalize.
// One stream runs at a time; sends arriving mid-stream queue in FIFO order.
type Orchestrator struct {
	opener      transport.Opener
	fetcher     transport.Fetcher
	registry    toolcall.Registry
	checkpoints *checkpoint.Manager
	sink        Sink
	todos       assembler.TodoSink
	persister   Persister
	tracker     *Tracker
	transcript  *Transcript

	workflowID string
	model      string

	flushInterval     time.Duration
	maxPendingFlushes int
	maxResumeAttempts int
	tagLookback       int
	autoAllowed       []string

	mu     sync.Mutex
	active *activeSend
	queue  []SendRequest

	log *logger.Logger
}

// activeSend is the mutable machinery of the one in-flight stream
type activeSend struct {
	streamID    string
	assistantID string
	cancel      context.CancelCauseFunc
	sctx        *assembler.Context
	asm         *assembler.Assembler
	machine     *toolcall.Machine
	flusher     *assembler.Flusher
	opts        AbortOptions
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithFetcher wires the event history fetcher used by startup resume
func WithFetcher(f transport.Fetcher) OrchestratorOption {
	return func(o *Orchestrator) { o.fetcher = f }
}

// WithRegistry wires the tool registry
func WithRegistry(r toolcall.Registry) OrchestratorOption {
	return func(o *Orchestrator) { o.registry = r }
}

// WithTodoSink wires the todo-marker collaborator
func WithTodoSink(s assembler.TodoSink) OrchestratorOption {
	return func(o *Orchestrator) { o.todos = s }
}

// WithPersister wires best-effort persistence of finalized messages
func WithPersister(p Persister) OrchestratorOption {
	return func(o *Orchestrator) { o.persister = p }
}

// WithModel sets the model identifier sent with each request
func WithModel(model string) OrchestratorOption {
	return func(o *Orchestrator) { o.model = model }
}

// WithAutoAllowed sets tool names that execute without confirmation
func WithAutoAllowed(names []string) OrchestratorOption {
	return func(o *Orchestrator) { o.autoAllowed = names }
}

// WithFlushing overrides the UI notification batching parameters
func WithFlushing(interval time.Duration, maxPending int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.flushInterval = interval
		o.maxPendingFlushes = maxPending
	}
}

// WithMaxResumeAttempts caps how many reload resumes one checkpoint survives
func WithMaxResumeAttempts(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxResumeAttempts = n
		}
	}
}

// WithTagLookback overrides the assembler's partial-tag lookback window
func WithTagLookback(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.tagLookback = n }
}

// New creates an orchestrator for one workflow session
func New(workflowID string, opener transport.Opener, checkpoints *checkpoint.Manager, sink Sink, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		opener:            opener,
		checkpoints:       checkpoints,
		sink:              sink,
		tracker:           NewTracker(),
		transcript:        NewTranscript(),
		workflowID:        workflowID,
		maxResumeAttempts: 3,
		log:               logger.WithComponent("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = SinkFuncs{}
	}
	return o
}

// Transcript returns the session transcript
func (o *Orchestrator) Transcript() *Transcript { return o.transcript }

// Tracker returns the stream state tracker
func (o *Orchestrator) Tracker() *Tracker { return o.tracker }

// Streaming reports whether a stream is currently in flight
func (o *Orchestrator) Streaming() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil
}

// SendMessage streams a response for one user message, blocking until the
// stream finalizes. A call arriving while another stream is in flight is
// queued and runs after the active one finishes; queued sends report their
// outcome through the sink and SendMessage returns nil for them immediately.
func (o *Orchestrator) SendMessage(ctx context.Context, req SendRequest) error {
	o.mu.Lock()
	if o.active != nil {
		o.queue = append(o.queue, req)
		n := len(o.queue)
		o.mu.Unlock()
		o.log.Debug("send deferred, stream in flight", "queued", n)
		return nil
	}
	o.mu.Unlock()

	err := o.run(ctx, req)
	o.drainQueue(ctx)
	return err
}

// drainQueue runs deferred sends in arrival order
func (o *Orchestrator) drainQueue(ctx context.Context) {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 || o.active != nil {
			o.mu.Unlock()
			return
		}
		next := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		if err := o.run(ctx, next); err != nil {
			o.log.Warn("queued send failed", "error", err)
		}
	}
}

// Abort cancels the in-flight stream, if any. The partial transcript is
// finalized by the streaming goroutine; Abort only signals it.
func (o *Orchestrator) Abort(opts AbortOptions) bool {
	o.mu.Lock()
	s := o.active
	if s == nil {
		o.mu.Unlock()
		return false
	}
	s.opts = opts
	o.mu.Unlock()

	s.sctx.MarkAborted()
	s.machine.AbortAll()
	cause := ErrAborted
	if opts.Unloading {
		cause = ErrUnloading
	}
	s.cancel(cause)
	o.log.Info("stream abort requested",
		"stream_id", s.streamID, "unloading", opts.Unloading,
		"suppress_continue", opts.SuppressContinueOption)
	return true
}

// trackerRetention is how long finished stream entries stay queryable
const trackerRetention = time.Hour

// run executes one send end to end
func (o *Orchestrator) run(ctx context.Context, req SendRequest) error {
	o.tracker.Cleanup(trackerRetention)

	sendCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	streamID := uuid.NewString()
	userMsgID := uuid.NewString()
	assistantID := uuid.NewString()

	s := o.newActiveSend(streamID, assistantID, cancel)

	o.mu.Lock()
	o.active = s
	o.mu.Unlock()
	defer o.clearActive(s)

	o.transcript.Append(Message{ID: userMsgID, Role: RoleUser, Content: req.Message})
	o.transcript.Append(Message{ID: assistantID, Role: RoleAssistant})
	o.tracker.Start(streamID)

	if err := o.checkpoints.Begin(sendCtx, checkpoint.Checkpoint{
		StreamID:           streamID,
		WorkflowID:         o.workflowID,
		ChatID:             req.ChatID,
		UserMessageID:      userMsgID,
		AssistantMessageID: assistantID,
		UserMessageContent: req.Message,
		FileAttachments:    req.FileAttachments,
		Contexts:           req.Contexts,
	}); err != nil {
		o.log.Warn("failed to persist initial checkpoint", "error", err)
	}

	if len(req.Contexts) > 0 {
		s.asm.AddContexts(req.Contexts)
	}

	err := o.consume(sendCtx, s, req, 0, 0)
	o.finalize(ctx, s, err)
	return err
}

// newActiveSend builds the per-send assembly machinery
func (o *Orchestrator) newActiveSend(streamID, assistantID string, cancel context.CancelCauseFunc) *activeSend {
	sctx := assembler.NewContext(streamID)
	flusher := assembler.NewFlusher(o.flushInterval, o.maxPendingFlushes, func() {
		o.sink.OnBlocks(sctx.Blocks())
	})
	machine := toolcall.NewMachine(o.registry,
		toolcall.WithAutoAllowed(o.autoAllowed),
		toolcall.WithUpdateHook(func(*toolcall.Call) { flusher.Notify() }))
	asm := assembler.New(sctx, machine,
		assembler.WithFlusher(flusher),
		assembler.WithTodoSink(o.todos),
		assembler.WithTitleHook(o.sink.OnTitle),
		assembler.WithLookback(o.tagLookback))
	return &activeSend{
		streamID:    streamID,
		assistantID: assistantID,
		cancel:      cancel,
		sctx:        sctx,
		asm:         asm,
		machine:     machine,
		flusher:     flusher,
	}
}

func (o *Orchestrator) clearActive(s *activeSend) {
	o.mu.Lock()
	if o.active == s {
		o.active = nil
	}
	o.mu.Unlock()
}

// consume opens the stream and applies decoded events until it terminates.
// A stream that drops before done, without an error event and without an
// abort, is reopened once from the checkpointed offset.
func (o *Orchestrator) consume(sendCtx context.Context, s *activeSend, req SendRequest, resumeFrom int64, attempt int) error {
	result, err := o.opener.Open(sendCtx, transport.OpenRequest{
		Message:           req.Message,
		ChatID:            req.ChatID,
		WorkflowID:        o.workflowID,
		Model:             o.model,
		FileAttachments:   req.FileAttachments,
		Contexts:          req.Contexts,
		ResumeFromEventID: resumeFrom,
	})
	if err != nil {
		if cause := context.Cause(sendCtx); errors.Is(cause, ErrAborted) || errors.Is(cause, ErrUnloading) {
			return cause
		}
		o.log.Error("failed to open stream", "error", err)
		o.sink.OnError(err)
		return err
	}

	if se := transport.CategorizeStatus(result.Status); se != nil {
		if result.Stream != nil {
			result.Stream.Close()
		}
		o.log.Warn("stream request rejected",
			"status", result.Status, "category", string(se.Category))
		// surfaced as a finalized assistant message, never retried
		s.asm.Apply(sendCtx, events.Event{Type: events.TypeError, ErrorMessage: se.UserMessage()})
		o.sink.OnError(se)
		return nil
	}

	// the server owns the stream identity; adopt its id so the checkpoint
	// and any later resume reference the right stream
	if result.StreamID != "" && result.StreamID != s.streamID {
		o.tracker.Forget(s.streamID)
		s.streamID = result.StreamID
		s.sctx.StreamID = result.StreamID
		if cp, ok := o.checkpoints.Current(); ok {
			cp.StreamID = result.StreamID
			o.checkpoints.Adopt(cp)
		}
		o.tracker.Start(result.StreamID)
	}

	// close the stream when the send is cancelled so a blocked read unblocks
	done := make(chan struct{})
	go func() {
		select {
		case <-sendCtx.Done():
			result.Stream.Close()
		case <-done:
		}
	}()
	readErr := o.decodeLoop(sendCtx, s, result.Stream)
	close(done)
	result.Stream.Close()

	if cause := context.Cause(sendCtx); errors.Is(cause, ErrAborted) || errors.Is(cause, ErrUnloading) {
		return cause
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		o.log.Warn("stream read failed", "error", readErr, "stream_id", s.streamID)
	}

	// truncation: the stream ended with neither done nor error
	if !s.sctx.Done() && s.sctx.Err() == "" {
		if attempt >= 1 {
			o.log.Warn("stream truncated again, giving up", "stream_id", s.streamID)
			return nil
		}
		from := resumeFrom
		if cp, ok := o.checkpoints.Current(); ok {
			from = cp.LastEventID
		}
		o.log.Info("stream truncated, reopening", "stream_id", s.streamID, "from_event", from)
		return o.consume(sendCtx, s, req, from, attempt+1)
	}
	return nil
}

// decodeLoop feeds decoded events through the assembler, checkpointing each
// applied offset.
func (o *Orchestrator) decodeLoop(sendCtx context.Context, s *activeSend, stream io.Reader) error {
	dec := events.NewDecoder(stream)
	for {
		ev, err := dec.Next(sendCtx)
		if err != nil {
			return err
		}
		if ev.EventID > 0 {
			o.checkpoints.Observe(sendCtx, ev.EventID)
		}
		if ev.Type == events.TypeChatID {
			o.checkpoints.SetChatID(sendCtx, ev.ChatID)
		}
		if !s.asm.Apply(sendCtx, ev) {
			return nil
		}
	}
}

// finalize collapses the stream into its terminal shape: flush, patch the
// transcript, emit the final message, persist, and settle the checkpoint.
// It runs on contexts detached from the send's cancellation so teardown work
// survives the abort that triggered it.
func (o *Orchestrator) finalize(ctx context.Context, s *activeSend, sendErr error) {
	bg := context.WithoutCancel(ctx)

	aborted := errors.Is(sendErr, ErrAborted) || errors.Is(sendErr, ErrUnloading) || s.sctx.Aborted()
	unloading := errors.Is(sendErr, ErrUnloading) || s.opts.Unloading

	s.asm.Apply(bg, events.Event{Type: events.TypeStreamEnd})
	if aborted {
		s.sctx.MarkAborted()
		s.machine.AbortAll()
		if !s.opts.SuppressContinueOption && !unloading {
			s.asm.AppendContinueMarker()
		}
	}

	s.flusher.Close()
	o.sink.OnBlocks(s.sctx.Blocks())

	final := s.asm.Finalize()
	o.transcript.SetContent(s.assistantID, final.Content)
	o.sink.OnFinal(final)

	if o.persister != nil {
		if err := o.persister.SaveFinal(bg, final); err != nil {
			o.log.Warn("failed to persist finalized message", "error", err)
		}
	}

	switch {
	case unloading:
		// keep the checkpoint: a reload resumes this stream
		o.tracker.Update(s.streamID, StreamAborted)
	case aborted:
		o.checkpoints.Clear(bg)
		o.tracker.Update(s.streamID, StreamAborted)
	case sendErr != nil || final.Err != "":
		o.checkpoints.Clear(bg)
		failure := sendErr
		if failure == nil {
			failure = errors.New(final.Err)
		}
		o.tracker.SetError(s.streamID, failure)
	default:
		o.checkpoints.Clear(bg)
		o.tracker.Update(s.streamID, StreamComplete)
	}

	o.log.Info("stream finalized",
		"stream_id", s.streamID,
		"aborted", aborted,
		"unloading", unloading,
		"content_len", len(final.Content),
		"tool_calls", len(final.ToolCalls))
}

// Resume recovers an interrupted stream at startup. It loads the persisted
// checkpoint, replays the already-emitted events with UI flushing suppressed
// and tool execution disabled, reconciles the transcript, then reattaches to
// the live stream from the checkpointed offset. Returns true when a resume
// actually ran.
func (o *Orchestrator) Resume(ctx context.Context) (bool, error) {
	cp, ok, err := o.checkpoints.Load(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if o.workflowID != "" && cp.WorkflowID != o.workflowID {
		o.log.Debug("checkpoint belongs to another workflow, ignoring",
			"checkpoint_workflow", cp.WorkflowID)
		return false, nil
	}
	if st, tracked := o.tracker.State(cp.StreamID); tracked && st == StreamStreaming {
		return false, nil
	}
	if cp.ResumeAttempts >= o.maxResumeAttempts {
		o.log.Warn("resume attempts exhausted, abandoning checkpoint",
			"stream_id", cp.StreamID, "attempts", cp.ResumeAttempts)
		o.checkpoints.Clear(ctx)
		return false, nil
	}

	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return false, nil
	}
	o.mu.Unlock()

	o.checkpoints.Adopt(*cp)
	attempts := o.checkpoints.BumpResumeAttempts(ctx)
	o.log.Info("resuming interrupted stream",
		"stream_id", cp.StreamID, "last_event_id", cp.LastEventID, "attempt", attempts)

	sendCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s := o.newActiveSend(cp.StreamID, cp.AssistantMessageID, cancel)
	s.sctx.ChatID = cp.ChatID

	o.mu.Lock()
	o.active = s
	o.mu.Unlock()
	defer o.clearActive(s)

	o.tracker.Start(cp.StreamID)

	// replay is silent and side-effect free: no UI flushes, no tool runs
	s.flusher.Suppress(true)
	s.machine.SetExecutionEnabled(false)
	replayDone := o.replay(sendCtx, s, cp)
	s.machine.SetExecutionEnabled(true)
	s.flusher.Suppress(false)

	o.transcript.Reconcile(*cp, s.sctx.AccumulatedContent())
	o.sink.OnBlocks(s.sctx.Blocks())

	if replayDone {
		// the stream had already finished; nothing live to reattach
		o.finalize(ctx, s, nil)
		return true, nil
	}

	req := SendRequest{
		Message:         cp.UserMessageContent,
		ChatID:          cp.ChatID,
		FileAttachments: cp.FileAttachments,
		Contexts:        cp.Contexts,
	}
	err = o.consume(sendCtx, s, req, cp.LastEventID, 0)
	o.finalize(ctx, s, err)
	o.drainQueue(ctx)
	return true, err
}

// replay applies the already-emitted event history. Returns true when the
// replayed history already contains the stream's logical end.
func (o *Orchestrator) replay(ctx context.Context, s *activeSend, cp *checkpoint.Checkpoint) bool {
	if o.fetcher == nil || cp.LastEventID <= 0 {
		return false
	}
	evs, err := o.fetcher.FetchEvents(ctx, cp.StreamID, 0, cp.LastEventID)
	if err != nil {
		o.log.Warn("failed to fetch replay events, reattaching without history",
			"error", err, "stream_id", cp.StreamID)
		return false
	}
	for _, ev := range evs {
		if !s.asm.Apply(ctx, ev) {
			return true
		}
	}
	return false
}
