package assembler_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowforge/copilot/pkg/assembler"
	"github.com/flowforge/copilot/pkg/events"
	"github.com/flowforge/copilot/pkg/toolcall"
)

// todoRecorder captures todo-marker side effects
type todoRecorder struct {
	marked  []string
	checked []string
}

func (r *todoRecorder) MarkTodo(id string)     { r.marked = append(r.marked, id) }
func (r *todoRecorder) CheckOffTodo(id string) { r.checked = append(r.checked, id) }

func newHarness(opts ...assembler.AssemblerOption) (*assembler.Assembler, *assembler.Context) {
	sctx := assembler.NewContext("stream-1")
	machine := toolcall.NewMachine(nil)
	return assembler.New(sctx, machine, opts...), sctx
}

func feed(a *assembler.Assembler, chunks ...string) {
	for _, chunk := range chunks {
		a.Apply(context.Background(), events.Event{Type: events.TypeContent, Text: chunk})
	}
	a.Apply(context.Background(), events.Event{Type: events.TypeStreamEnd})
}

func textContents(blocks []assembler.Block) []string {
	var out []string
	for _, b := range blocks {
		if b.Type == assembler.BlockText {
			out = append(out, b.Content)
		}
	}
	return out
}

func thinkingContents(blocks []assembler.Block) []string {
	var out []string
	for _, b := range blocks {
		if b.Type == assembler.BlockThinking {
			out = append(out, b.Content)
		}
	}
	return out
}

var _ = Describe("Tokenizer", func() {
	Describe("thinking tags", func() {
		const input = "Hello <thinking>deep</thinking> world"

		It("separates thinking content from visible text", func() {
			a, sctx := newHarness()
			feed(a, input)

			Expect(sctx.AccumulatedContent()).To(Equal("Hello  world"))
			Expect(thinkingContents(sctx.Blocks())).To(Equal([]string{"deep"}))
			Expect(textContents(sctx.Blocks())).To(Equal([]string{"Hello ", " world"}))
		})

		It("produces identical output for every chunk split offset", func() {
			for i := 0; i <= len(input); i++ {
				a, sctx := newHarness()
				feed(a, input[:i], input[i:])

				Expect(sctx.AccumulatedContent()).To(Equal("Hello  world"),
					fmt.Sprintf("split at offset %d", i))
				Expect(thinkingContents(sctx.Blocks())).To(Equal([]string{"deep"}),
					fmt.Sprintf("split at offset %d", i))
			}
		})

		It("closes an unterminated thinking block at stream end", func() {
			a, sctx := newHarness()
			feed(a, "x<thinking>still going")

			Expect(sctx.AccumulatedContent()).To(Equal("x"))
			blocks := sctx.Blocks()
			Expect(thinkingContents(blocks)).To(Equal([]string{"still going"}))
			for _, b := range blocks {
				Expect(b.Streaming).To(BeFalse())
			}
		})
	})

	Describe("design workflow tags", func() {
		It("captures the document without rendering it", func() {
			a, sctx := newHarness()
			feed(a, "before <design_workflow>PLAN</design_workflow> after")

			Expect(sctx.DesignDoc()).To(Equal("PLAN"))
			Expect(sctx.AccumulatedContent()).To(Equal("before  after"))
		})

		It("survives a closing tag split across chunks", func() {
			a, sctx := newHarness()
			feed(a, "<design_workflow>step one</design", "_workflow>done")

			Expect(sctx.DesignDoc()).To(Equal("step one"))
			Expect(sctx.AccumulatedContent()).To(Equal("done"))
		})

		It("flushes an unterminated document at stream end", func() {
			a, sctx := newHarness()
			feed(a, "<design_workflow>half a plan")

			Expect(sctx.DesignDoc()).To(Equal("half a plan"))
			Expect(sctx.AccumulatedContent()).To(BeEmpty())
		})
	})

	Describe("todo markers", func() {
		It("fires the sink exactly once for a marker split across three chunks", func() {
			rec := &todoRecorder{}
			a, sctx := newHarness(assembler.WithTodoSink(rec))
			feed(a, "Step done.\n\n<markt", "odo>T1</mark", "todo>\n\nNext.")

			Expect(rec.marked).To(Equal([]string{"T1"}))
			Expect(sctx.AccumulatedContent()).To(Equal("Step done.\nNext."))
		})

		It("collapses surrounding blank lines to a single newline", func() {
			rec := &todoRecorder{}
			a, sctx := newHarness(assembler.WithTodoSink(rec))
			feed(a, "a\n<checkofftodo> T2 </checkofftodo>b")

			Expect(rec.checked).To(Equal([]string{"T2"}))
			Expect(sctx.AccumulatedContent()).To(Equal("a\nb"))
		})

		It("holds an opener until its closing delimiter arrives", func() {
			rec := &todoRecorder{}
			a, sctx := newHarness(assembler.WithTodoSink(rec))

			a.Apply(context.Background(), events.Event{Type: events.TypeContent, Text: "x<marktodo>T3"})
			Expect(sctx.AccumulatedContent()).To(Equal("x"))
			Expect(rec.marked).To(BeEmpty())

			a.Apply(context.Background(), events.Event{Type: events.TypeContent, Text: "</marktodo>y"})
			a.Apply(context.Background(), events.Event{Type: events.TypeStreamEnd})

			Expect(rec.marked).To(Equal([]string{"T3"}))
			Expect(sctx.AccumulatedContent()).To(Equal("xy"))
		})

		It("emits an unclosed marker literally at stream end", func() {
			rec := &todoRecorder{}
			a, sctx := newHarness(assembler.WithTodoSink(rec))
			feed(a, "x<marktodo>T9")

			Expect(rec.marked).To(BeEmpty())
			Expect(sctx.AccumulatedContent()).To(Equal("x<marktodo>T9"))
		})
	})

	Describe("plain angle brackets", func() {
		It("passes text that only resembles a tag straight through", func() {
			a, sctx := newHarness()
			feed(a, "1 < 2 and <b>bold</b>")

			Expect(sctx.AccumulatedContent()).To(Equal("1 < 2 and <b>bold</b>"))
		})

		It("flushes a held partial opener at stream end", func() {
			a, sctx := newHarness()
			feed(a, "ends with <think")

			Expect(sctx.AccumulatedContent()).To(Equal("ends with <think"))
		})
	})
})
