package assembler_test

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowforge/copilot/pkg/assembler"
)

var _ = Describe("Flusher", func() {
	var (
		flushes atomic.Int32
		f       *assembler.Flusher
	)

	BeforeEach(func() {
		flushes.Store(0)
	})

	It("coalesces notifications onto the timer boundary", func() {
		f = assembler.NewFlusher(5*time.Millisecond, 100, func() { flushes.Add(1) })
		defer f.Close()

		f.Notify()
		f.Notify()
		f.Notify()

		Eventually(flushes.Load).Should(Equal(int32(1)))
		Consistently(flushes.Load, 30*time.Millisecond).Should(Equal(int32(1)))
	})

	It("forces a flush once the pending count hits the bound", func() {
		f = assembler.NewFlusher(time.Hour, 3, func() { flushes.Add(1) })
		defer f.Close()

		f.Notify()
		f.Notify()
		Expect(flushes.Load()).To(Equal(int32(0)))

		f.Notify()
		Eventually(flushes.Load).Should(Equal(int32(1)))
	})

	It("suppresses notifications during replay", func() {
		f = assembler.NewFlusher(time.Millisecond, 2, func() { flushes.Add(1) })
		defer f.Close()

		f.Suppress(true)
		f.Notify()
		f.Notify()
		f.Notify()

		Consistently(flushes.Load, 20*time.Millisecond).Should(Equal(int32(0)))

		f.Suppress(false)
		f.Notify()
		f.Notify()
		Eventually(flushes.Load).Should(Equal(int32(1)))
	})

	It("drains pending work on demand", func() {
		f = assembler.NewFlusher(time.Hour, 100, func() { flushes.Add(1) })
		defer f.Close()

		f.Notify()
		Expect(flushes.Load()).To(Equal(int32(0)))

		f.Drain()
		Expect(flushes.Load()).To(Equal(int32(1)))
	})

	It("ignores notifications after close", func() {
		f = assembler.NewFlusher(time.Millisecond, 2, func() { flushes.Add(1) })
		f.Close()

		f.Notify()
		f.Notify()
		f.Notify()

		Consistently(flushes.Load, 20*time.Millisecond).Should(Equal(int32(0)))
	})
})
