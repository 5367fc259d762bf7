package events

import (
	"context"
	"io"
	"strings"

	"github.com/flowforge/copilot/pkg/logger"
)

// dataPrefix marks SSE frames carrying an event payload
const dataPrefix = "data: "

// Decoder turns a raw byte stream into an ordered sequence of Events.
//
// It keeps a rolling text buffer: each read is appended, everything up to the
// last newline is split into lines, and the remainder is re-buffered so a
// line straddling a read boundary is never emitted partially. A line that
// fails to parse is logged and dropped; the stream keeps going. A Decoder is
// not restartable; open a new stream for a new Decoder.
type Decoder struct {
	r       io.Reader
	chunk   []byte
	pending string
	queue   []Event
	eof     bool
	log     *logger.Logger
}

// NewDecoder wraps a byte stream reader
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:     r,
		chunk: make([]byte, 4096),
		log:   logger.WithComponent("event_decoder"),
	}
}

// Next returns the next decoded event. It returns io.EOF once the underlying
// reader is exhausted and all buffered events have been drained. Cancellation
// is checked between reads via ctx.
func (d *Decoder) Next(ctx context.Context) (Event, error) {
	for {
		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue = d.queue[1:]
			return ev, nil
		}
		if d.eof {
			return Event{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.feed(string(d.chunk[:n]))
		}
		if err == io.EOF {
			d.eof = true
			// a final unterminated line is still a complete frame at EOF
			if d.pending != "" {
				d.decodeLine(d.pending)
				d.pending = ""
			}
			continue
		}
		if err != nil {
			return Event{}, err
		}
	}
}

// feed appends a decoded chunk and splits everything up to the last newline
func (d *Decoder) feed(chunk string) {
	d.pending += chunk
	idx := strings.LastIndexByte(d.pending, '\n')
	if idx < 0 {
		return
	}
	complete := d.pending[:idx]
	d.pending = d.pending[idx+1:]

	for _, line := range strings.Split(complete, "\n") {
		d.decodeLine(line)
	}
}

func (d *Decoder) decodeLine(line string) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		// blank separators and SSE comment lines are expected noise
		return
	}
	payload := line[len(dataPrefix):]
	ev, err := Parse([]byte(payload))
	if err != nil {
		d.log.Warn("dropping malformed event line", "error", err, "line_length", len(line))
		return
	}
	d.queue = append(d.queue, ev)
}
