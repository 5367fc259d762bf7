package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowforge/copilot/pkg/orchestrator"
	"github.com/flowforge/copilot/pkg/transport"
)

// fixtureOpener serves a captured SSE byte stream from a local file
type fixtureOpener struct {
	path string
}

// Open implements transport.Opener
func (f *fixtureOpener) Open(ctx context.Context, req transport.OpenRequest) (*transport.OpenResult, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	return &transport.OpenResult{
		Stream:   file,
		StreamID: "fixture",
		Status:   http.StatusOK,
	}, nil
}

var replayCmd = &cobra.Command{
	Use:    "replay <fixture.sse>",
	Short:  "Feed a captured SSE fixture through the full engine",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sink := newConsoleSink()
		engine := newEngine(&fixtureOpener{path: args[0]}, sink)
		return engine.SendMessage(cmd.Context(), orchestrator.SendRequest{
			Message: "fixture replay",
		})
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
