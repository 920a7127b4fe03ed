package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/generation"
	"github.com/phrazzld/scribe-api/internal/platform/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("openai", func(t *testing.T) {
		gen, err := newGenerator(ctx, config.LLMConfig{
			Provider:       "openai",
			OpenAIAPIKey:   "test-key",
			ModelName:      "gpt-4o-mini",
			RequestTimeout: time.Minute,
		}, quietLogger())
		require.NoError(t, err)
		assert.IsType(t, &openai.Generator{}, gen)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := newGenerator(ctx, config.LLMConfig{Provider: "openai", ModelName: "gpt-4o-mini"}, quietLogger())
		assert.ErrorIs(t, err, generation.ErrInvalidConfig)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := newGenerator(ctx, config.LLMConfig{Provider: "quill"}, quietLogger())
		assert.ErrorIs(t, err, generation.ErrInvalidConfig)
	})
}

func TestNewPublisherMemoryBackend(t *testing.T) {
	p, err := newPublisher(config.EventsConfig{Backend: "memory"}, quietLogger(), nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNewPublisherRejectsBadRedisURL(t *testing.T) {
	_, err := newPublisher(config.EventsConfig{Backend: "redis", RedisURL: "not a url"}, quietLogger(), nil)
	assert.Error(t, err)
}

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 15*time.Second, shutdownTimeout(config.ServerConfig{}))
	assert.Equal(t, 3*time.Second, shutdownTimeout(config.ServerConfig{ShutdownTimeout: 3 * time.Second}))
}
