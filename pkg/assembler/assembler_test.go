package assembler_test

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowforge/copilot/pkg/assembler"
	"github.com/flowforge/copilot/pkg/events"
	"github.com/flowforge/copilot/pkg/toolcall"
)

var _ = Describe("Assembler", func() {
	var (
		a    *assembler.Assembler
		sctx *assembler.Context
	)

	apply := func(ev events.Event) bool {
		return a.Apply(context.Background(), ev)
	}

	BeforeEach(func() {
		a, sctx = newHarness()
	})

	Describe("event id replay de-duplication", func() {
		It("applies each event id at most once", func() {
			apply(events.Event{Type: events.TypeContent, Text: "a", EventID: 1})
			apply(events.Event{Type: events.TypeContent, Text: "a", EventID: 1})
			apply(events.Event{Type: events.TypeContent, Text: "b", EventID: 2})
			apply(events.Event{Type: events.TypeStreamEnd})

			Expect(sctx.AccumulatedContent()).To(Equal("ab"))
		})

		It("skips events arriving below the high-water mark", func() {
			apply(events.Event{Type: events.TypeContent, Text: "late", EventID: 5})
			apply(events.Event{Type: events.TypeContent, Text: "early", EventID: 3})
			apply(events.Event{Type: events.TypeStreamEnd})

			Expect(sctx.AccumulatedContent()).To(Equal("late"))
		})

		It("always applies events without an id", func() {
			apply(events.Event{Type: events.TypeContent, Text: "x"})
			apply(events.Event{Type: events.TypeContent, Text: "x"})
			apply(events.Event{Type: events.TypeStreamEnd})

			Expect(sctx.AccumulatedContent()).To(Equal("xx"))
		})
	})

	Describe("reasoning events", func() {
		It("brackets a thinking block with phase markers", func() {
			apply(events.Event{Type: events.TypeReasoning, Phase: events.PhaseStart})
			apply(events.Event{Type: events.TypeReasoning, Text: "pondering"})
			apply(events.Event{Type: events.TypeReasoning, Phase: events.PhaseEnd})
			apply(events.Event{Type: events.TypeStreamEnd})

			blocks := sctx.Blocks()
			Expect(thinkingContents(blocks)).To(Equal([]string{"pondering"}))
			Expect(blocks[0].Streaming).To(BeFalse())
			Expect(blocks[0].Duration).To(BeNumerically(">=", 0))
		})

		It("strips inline thinking tags from reasoning text", func() {
			apply(events.Event{Type: events.TypeReasoning, Text: "<thinking>raw</thinking>"})
			apply(events.Event{Type: events.TypeStreamEnd})

			Expect(thinkingContents(sctx.Blocks())).To(Equal([]string{"raw"}))
		})
	})

	Describe("tool call events", func() {
		It("embeds the tracked call in an ordered block", func() {
			apply(events.Event{Type: events.TypeContent, Text: "A"})
			apply(events.Event{Type: events.TypeToolGenerating, ToolCallID: "tc-1", ToolName: "search"})
			apply(events.Event{Type: events.TypeContent, Text: "B"})
			apply(events.Event{Type: events.TypeStreamEnd})

			blocks := sctx.Blocks()
			Expect(blocks).To(HaveLen(3))
			Expect(blocks[0].Type).To(Equal(assembler.BlockText))
			Expect(blocks[1].Type).To(Equal(assembler.BlockToolCall))
			Expect(blocks[1].ToolCall.Name).To(Equal("search"))
			Expect(blocks[2].Type).To(Equal(assembler.BlockText))
		})

		It("reuses one block across the call's lifecycle", func() {
			apply(events.Event{Type: events.TypeToolGenerating, ToolCallID: "tc-1", ToolName: "search"})
			apply(events.Event{Type: events.TypeToolCall, ToolCallID: "tc-1", ToolName: "search"})
			apply(events.Event{Type: events.TypeToolResult, ToolCallID: "tc-1",
				Result: &events.ToolResult{Status: events.StatusSuccess}})
			apply(events.Event{Type: events.TypeStreamEnd})

			blocks := sctx.Blocks()
			Expect(blocks).To(HaveLen(1))
			Expect(blocks[0].ToolCall.State).To(Equal(toolcall.StateSuccess))
		})
	})

	Describe("sub-agent events", func() {
		BeforeEach(func() {
			apply(events.Event{Type: events.TypeToolGenerating, ToolCallID: "parent", ToolName: "spawn_agent"})
			apply(events.Event{Type: events.TypeSubagentStart, ToolCallID: "parent", Subagent: "parent"})
		})

		It("routes attributed content into the parent's nested maps", func() {
			apply(events.Event{Type: events.TypeContent, Subagent: "parent", Text: "sub "})
			apply(events.Event{Type: events.TypeContent, Subagent: "parent", Text: "text"})

			Expect(sctx.SubAgentContent("parent")).To(Equal("sub text"))
			Expect(sctx.AccumulatedContent()).To(BeEmpty())

			sub := sctx.SubAgentBlocks("parent")
			Expect(sub).To(HaveLen(1))
			Expect(sub[0].Type).To(Equal(assembler.BlockSubagentText))
			Expect(sub[0].Content).To(Equal("sub text"))
		})

		It("tracks nested tool calls separately from parent calls", func() {
			apply(events.Event{Type: events.TypeToolCall, Subagent: "parent",
				ToolCallID: "sub-1", ToolName: "read_file"})
			apply(events.Event{Type: events.TypeToolResult, Subagent: "parent",
				ToolCallID: "sub-1", Result: &events.ToolResult{Status: events.StatusSuccess}})

			sub := sctx.SubAgentBlocks("parent")
			Expect(sub).To(HaveLen(1))
			Expect(sub[0].Type).To(Equal(assembler.BlockSubagentToolCall))
			Expect(sub[0].ToolCall.State).To(Equal(toolcall.StateSuccess))
		})

		It("copies the accumulated text onto the parent call at subagent end", func() {
			apply(events.Event{Type: events.TypeContent, Subagent: "parent", Text: "hi"})
			apply(events.Event{Type: events.TypeSubagentEnd, ToolCallID: "parent"})

			Expect(sctx.SubAgentContent("parent")).To(Equal("hi"))
		})
	})

	Describe("stream lifecycle events", func() {
		It("stops the loop on done", func() {
			Expect(apply(events.Event{Type: events.TypeDone})).To(BeFalse())
			Expect(sctx.Done()).To(BeTrue())
			Expect(sctx.DoneCount()).To(Equal(1))
		})

		It("tolerates duplicate done events", func() {
			apply(events.Event{Type: events.TypeDone})
			apply(events.Event{Type: events.TypeDone})
			Expect(sctx.DoneCount()).To(Equal(2))
			Expect(sctx.Done()).To(BeTrue())
		})

		It("stops the loop on error and records the message", func() {
			Expect(apply(events.Event{Type: events.TypeError, ErrorMessage: "quota exceeded"})).To(BeFalse())
			Expect(sctx.Err()).To(Equal("quota exceeded"))
		})

		It("records chat identity and title", func() {
			titles := []string{}
			a, sctx = newHarness(assembler.WithTitleHook(func(s string) { titles = append(titles, s) }))

			a.Apply(context.Background(), events.Event{Type: events.TypeChatID, ChatID: "chat-7"})
			a.Apply(context.Background(), events.Event{Type: events.TypeTitleUpdated, Title: "Plan review"})

			Expect(sctx.ChatID).To(Equal("chat-7"))
			Expect(sctx.Title).To(Equal("Plan review"))
			Expect(titles).To(Equal([]string{"Plan review"}))
		})
	})

	Describe("finalization", func() {
		It("collapses the context into an immutable final message", func() {
			apply(events.Event{Type: events.TypeContent, Text: "answer"})
			apply(events.Event{Type: events.TypeToolGenerating, ToolCallID: "tc-1", ToolName: "search"})
			apply(events.Event{Type: events.TypeDone})
			apply(events.Event{Type: events.TypeStreamEnd})

			final := a.Finalize()
			Expect(final.StreamID).To(Equal("stream-1"))
			Expect(final.Content).To(Equal("answer"))
			Expect(final.ToolCalls).To(HaveKey("tc-1"))
			Expect(final.Aborted).To(BeFalse())
		})

		It("appends the continue marker exactly once", func() {
			apply(events.Event{Type: events.TypeContent, Text: "partial"})
			apply(events.Event{Type: events.TypeStreamEnd})
			sctx.MarkAborted()

			a.AppendContinueMarker()
			a.AppendContinueMarker()

			final := a.Finalize()
			Expect(final.Aborted).To(BeTrue())
			Expect(final.Content).To(Equal("partial" + assembler.ContinueOptionsMarker))
		})
	})

	Describe("flushing during a live stream", func() {
		// the flusher snapshots blocks from its timer goroutine while the
		// stream goroutine is still applying events
		It("serves consistent block snapshots while events apply", func() {
			var snapshots atomic.Int32
			var target atomic.Pointer[assembler.Context]
			f := assembler.NewFlusher(time.Millisecond, 1, func() {
				if blocks := target.Load().Blocks(); len(blocks) > 0 {
					snapshots.Add(1)
				}
			})
			a, sctx = newHarness(assembler.WithFlusher(f))
			target.Store(sctx)

			const chunk = "chunk "
			for i := 0; i < 5000; i++ {
				apply(events.Event{Type: events.TypeContent, Text: chunk})
			}
			apply(events.Event{Type: events.TypeStreamEnd})
			f.Close()

			Expect(sctx.AccumulatedContent()).To(Equal(strings.Repeat(chunk, 5000)))
			Expect(snapshots.Load()).To(BeNumerically(">", 0))
		})
	})

	Describe("attached contexts", func() {
		It("inserts a contexts block", func() {
			a.AddContexts([]string{"doc-1", "doc-2"})

			blocks := sctx.Blocks()
			Expect(blocks).To(HaveLen(1))
			Expect(blocks[0].Type).To(Equal(assembler.BlockContexts))
			Expect(blocks[0].Items).To(Equal([]string{"doc-1", "doc-2"}))
		})
	})
})
