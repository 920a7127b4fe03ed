package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openaigo "github.com/sashabaranov/go-openai"

	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/generation"
)

const systemPrompt = "You are a novelist's assistant. Follow the requested output format exactly."

// chatClient is the part of *openaigo.Client the generator uses.
type chatClient interface {
	CreateChatCompletion(
		ctx context.Context,
		req openaigo.ChatCompletionRequest,
	) (openaigo.ChatCompletionResponse, error)
}

// Generator implements generation.Generator with chat completions.
type Generator struct {
	logger  *slog.Logger
	client  chatClient
	prompts *generation.Prompts
	model   string

	temperature float32
	maxTokens   int
	timeout     time.Duration
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a generator for the configured endpoint.
func NewGenerator(logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	prompts, err := generation.LoadPrompts(cfg.OutlinePromptTemplatePath, cfg.ScenePromptTemplatePath)
	if err != nil {
		return nil, err
	}

	clientCfg := openaigo.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}

	return newGenerator(logger, openaigo.NewClientWithConfig(clientCfg), prompts, cfg), nil
}

func newGenerator(
	logger *slog.Logger,
	client chatClient,
	prompts *generation.Prompts,
	cfg config.LLMConfig,
) *Generator {
	return &Generator{
		logger:      logger.With(slog.String("component", "openai_generator")),
		client:      client,
		prompts:     prompts,
		model:       cfg.ModelName,
		temperature: cfg.Temperature,
		maxTokens:   int(cfg.MaxOutputTokens),
		timeout:     cfg.RequestTimeout,
	}
}

// GenerateOutline implements generation.Generator.
func (g *Generator) GenerateOutline(ctx context.Context, req generation.OutlineRequest) ([]domain.SceneStub, error) {
	prompt, err := g.prompts.Outline(req)
	if err != nil {
		return nil, err
	}

	text, err := g.complete(ctx, prompt, true)
	if err != nil {
		return nil, err
	}
	return generation.ParseOutline(text)
}

// GenerateScene implements generation.Generator.
func (g *Generator) GenerateScene(ctx context.Context, req generation.SceneRequest) (string, error) {
	prompt, err := g.prompts.Scene(req)
	if err != nil {
		return "", err
	}

	text, err := g.complete(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	return generation.CleanProse(text)
}

func (g *Generator) complete(ctx context.Context, prompt string, jsonOutput bool) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := openaigo.ChatCompletionRequest{
		Model: g.model,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openaigo.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	if jsonOutput {
		req.ResponseFormat = &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		mapped := mapError(err)
		g.logger.ErrorContext(ctx, "chat completion failed",
			slog.String("model", g.model),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", mapped.Error()))
		return "", mapped
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", generation.ErrInvalidResponse)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openaigo.FinishReasonContentFilter {
		return "", fmt.Errorf("%w: content filter", generation.ErrContentBlocked)
	}

	g.logger.DebugContext(ctx, "chat completion succeeded",
		slog.String("model", g.model),
		slog.Duration("duration", time.Since(start)),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens))
	return choice.Message.Content, nil
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	code := 0
	var apiErr *openaigo.APIError
	var reqErr *openaigo.RequestError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		code = reqErr.HTTPStatusCode
	}

	if code == http.StatusBadRequest {
		return fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
