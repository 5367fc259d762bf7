package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/flowforge/copilot/pkg/checkpoint"
	"github.com/flowforge/copilot/pkg/config"
	"github.com/flowforge/copilot/pkg/orchestrator"
	"github.com/flowforge/copilot/pkg/transport"
)

// newEngine assembles the full streaming engine from configuration
func newEngine(opener transport.Opener, sink orchestrator.Sink) *orchestrator.Orchestrator {
	settings := config.Get()

	var store checkpoint.Store
	if settings.Checkpoint.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: settings.Checkpoint.RedisAddr})
		store = checkpoint.NewRedisStore(client, settings.Checkpoint.RedisKey, 0)
	} else {
		store = checkpoint.NewFileStore(settings.Checkpoint.Path)
	}

	return orchestrator.New("local", opener, checkpoint.NewManager(store), sink,
		orchestrator.WithModel(settings.Model.Name),
		orchestrator.WithAutoAllowed(settings.Tools.AutoAllowed),
		orchestrator.WithFlushing(settings.Stream.FlushInterval, settings.Stream.MaxPendingFlushes),
		orchestrator.WithMaxResumeAttempts(settings.Stream.MaxResumeAttempts),
		orchestrator.WithTagLookback(settings.Stream.TagLookback),
	)
}

// runPrompt streams a single prompt against the configured local model
func runPrompt(ctx context.Context, prompt string) error {
	settings := config.Get()
	model, err := ollama.New(ollama.WithModel(settings.Model.Name))
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	sink := newConsoleSink()
	engine := newEngine(transport.NewModelSource(model), sink)

	if viper.GetBool("resume") {
		resumed, err := engine.Resume(ctx)
		if err != nil {
			return fmt.Errorf("resume failed: %w", err)
		}
		if resumed {
			return nil
		}
	}

	return engine.SendMessage(ctx, orchestrator.SendRequest{Message: prompt})
}
