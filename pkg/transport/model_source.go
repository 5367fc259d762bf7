package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/flowforge/copilot/pkg/events"
	"github.com/flowforge/copilot/pkg/logger"
)

// ModelSource adapts a streaming langchaingo model into an Opener so the
// replay/debug harness can drive the full engine against a local model
// without the production backend. Chunks from the model's streaming callback
// are re-framed as SSE content events; a done frame follows completion.
type ModelSource struct {
	model llms.Model
	log   *logger.Logger
}

// NewModelSource wraps a langchaingo model
func NewModelSource(model llms.Model) *ModelSource {
	return &ModelSource{
		model: model,
		log:   logger.WithComponent("model_source"),
	}
}

// Open implements Opener
func (s *ModelSource) Open(ctx context.Context, req OpenRequest) (*OpenResult, error) {
	pr, pw := io.Pipe()
	streamID := uuid.NewString()
	var eventID atomic.Int64

	writeFrame := func(typ events.Type, data any) error {
		frame := map[string]any{
			"type":    typ,
			"eventId": eventID.Add(1),
		}
		if data != nil {
			frame["data"] = data
		}
		payload, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(pw, "data: %s\n\n", payload)
		return err
	}

	go func() {
		messages := []llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeHuman, req.Message),
		}
		_, err := s.model.GenerateContent(ctx, messages,
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				return writeFrame(events.TypeContent, string(chunk))
			}))
		if err != nil {
			s.log.Error("model generation failed", "error", err)
			_ = writeFrame(events.TypeError, err.Error())
			_ = pw.CloseWithError(err)
			return
		}
		_ = writeFrame(events.TypeDone, nil)
		_ = pw.Close()
	}()

	return &OpenResult{
		Stream:   pr,
		StreamID: streamID,
		Status:   http.StatusOK,
	}, nil
}

var _ Opener = (*ModelSource)(nil)
