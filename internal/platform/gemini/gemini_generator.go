package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/generation"
	"google.golang.org/genai"
)

// contentGenerator is the part of *genai.Models the generator uses.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator implements generation.Generator with the Gemini API.
type GeminiGenerator struct {
	logger  *slog.Logger
	models  contentGenerator
	prompts *generation.Prompts
	model   string

	temperature     float32
	maxOutputTokens int32
	timeout         time.Duration
}

var _ generation.Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a generator backed by a genai client.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	prompts, err := generation.LoadPrompts(cfg.OutlinePromptTemplatePath, cfg.ScenePromptTemplatePath)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newGenerator(logger, client.Models, prompts, cfg), nil
}

func newGenerator(
	logger *slog.Logger,
	models contentGenerator,
	prompts *generation.Prompts,
	cfg config.LLMConfig,
) *GeminiGenerator {
	return &GeminiGenerator{
		logger:          logger.With(slog.String("component", "gemini_generator")),
		models:          models,
		prompts:         prompts,
		model:           cfg.ModelName,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		timeout:         cfg.RequestTimeout,
	}
}

// GenerateOutline implements generation.Generator.
func (g *GeminiGenerator) GenerateOutline(
	ctx context.Context,
	req generation.OutlineRequest,
) ([]domain.SceneStub, error) {
	prompt, err := g.prompts.Outline(req)
	if err != nil {
		return nil, err
	}

	text, err := g.call(ctx, prompt, "application/json")
	if err != nil {
		return nil, err
	}

	stubs, err := generation.ParseOutline(text)
	if err != nil {
		g.logger.WarnContext(ctx, "gemini returned an unusable outline",
			slog.String("chapter_title", req.ChapterTitle),
			slog.Int("response_length", len(text)),
			slog.String("error", err.Error()))
		return nil, err
	}
	return stubs, nil
}

// GenerateScene implements generation.Generator.
func (g *GeminiGenerator) GenerateScene(ctx context.Context, req generation.SceneRequest) (string, error) {
	prompt, err := g.prompts.Scene(req)
	if err != nil {
		return "", err
	}

	text, err := g.call(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	return generation.CleanProse(text)
}

func (g *GeminiGenerator) call(ctx context.Context, prompt, mimeType string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		MaxOutputTokens:  g.maxOutputTokens,
		ResponseMIMEType: mimeType,
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		mapped := mapError(err)
		g.logger.ErrorContext(ctx, "gemini call failed",
			slog.String("model", g.model),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", mapped.Error()))
		return "", mapped
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	g.logger.DebugContext(ctx, "gemini call succeeded",
		slog.String("model", g.model),
		slog.Duration("duration", time.Since(start)),
		slog.Int("response_length", len(text)))
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" &&
		fb.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("%w: prompt blocked: %s", generation.ErrContentBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", generation.ErrInvalidResponse)
	}

	c := resp.Candidates[0]
	switch c.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return "", fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, c.FinishReason)
	}
	if c.Content == nil {
		return "", fmt.Errorf("%w: empty content", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range c.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%w: empty text (finish reason %s)", generation.ErrInvalidResponse, c.FinishReason)
	}
	return b.String(), nil
}
