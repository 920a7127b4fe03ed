package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeModels records requests and returns a scripted response.
type fakeModels struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
	prompt string
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func newTestGenerator(models contentGenerator) *GeminiGenerator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newGenerator(logger, models, generation.DefaultPrompts(), config.LLMConfig{
		ModelName:       "gemini-test",
		Temperature:     0.7,
		MaxOutputTokens: 2048,
		RequestTimeout:  time.Second,
	})
}

var outlineReq = generation.OutlineRequest{
	ProjectTitle:  "The Salt Road",
	Premise:       "A courier crosses a desert empire.",
	ChapterTitle:  "The Gate",
	ChapterNumber: 1,
}

var sceneReq = generation.SceneRequest{
	ProjectTitle:  "The Salt Road",
	ChapterTitle:  "The Gate",
	ChapterNumber: 1,
	Scene:         domain.SceneStub{SceneNumber: 1, Title: "Arrival"},
}

func TestGenerateOutline(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: textResponse(`{"scenes":[{"title":"Arrival"},{"title":"The Offer"}]}`)}
	g := newTestGenerator(models)

	stubs, err := g.GenerateOutline(context.Background(), outlineReq)
	require.NoError(t, err)
	require.Len(t, stubs, 2)
	assert.Equal(t, "The Offer", stubs[1].Title)
	assert.Equal(t, 2, stubs[1].SceneNumber)

	assert.Equal(t, "gemini-test", models.model)
	assert.Equal(t, "application/json", models.config.ResponseMIMEType)
	assert.Equal(t, int32(2048), models.config.MaxOutputTokens)
	require.NotNil(t, models.config.Temperature)
	assert.InDelta(t, 0.7, *models.config.Temperature, 0.001)
	assert.Contains(t, models.prompt, "The Gate")
}

func TestGenerateScene(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: textResponse("  The gate opened at dawn.\n")}
	g := newTestGenerator(models)

	text, err := g.GenerateScene(context.Background(), sceneReq)
	require.NoError(t, err)
	assert.Equal(t, "The gate opened at dawn.", text)
	assert.Empty(t, models.config.ResponseMIMEType)
}

func TestGeneratorErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		models *fakeModels
		want   error
	}{
		{
			name:   "safety finish reason",
			models: &fakeModels{resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}},
			want:   generation.ErrContentBlocked,
		},
		{
			name: "blocked prompt",
			models: &fakeModels{resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			}},
			want: generation.ErrContentBlocked,
		},
		{
			name:   "no candidates",
			models: &fakeModels{resp: &genai.GenerateContentResponse{}},
			want:   generation.ErrInvalidResponse,
		},
		{
			name:   "empty text",
			models: &fakeModels{resp: textResponse("   ")},
			want:   generation.ErrInvalidResponse,
		},
		{
			name:   "rate limited",
			models: &fakeModels{err: genai.APIError{Code: 429, Message: "quota exceeded"}},
			want:   generation.ErrTransientFailure,
		},
		{
			name:   "server error",
			models: &fakeModels{err: genai.APIError{Code: 503, Message: "unavailable"}},
			want:   generation.ErrTransientFailure,
		},
		{
			name:   "bad request",
			models: &fakeModels{err: genai.APIError{Code: 400, Message: "bad"}},
			want:   generation.ErrInvalidResponse,
		},
		{
			name:   "network",
			models: &fakeModels{err: errors.New("connection reset by peer")},
			want:   generation.ErrTransientFailure,
		},
		{
			name:   "timeout",
			models: &fakeModels{err: context.DeadlineExceeded},
			want:   generation.ErrTransientFailure,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := newTestGenerator(tc.models)
			_, err := g.GenerateScene(context.Background(), sceneReq)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGenerateOutlineMalformed(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(&fakeModels{resp: textResponse("Scene 1: Arrival")})
	_, err := g.GenerateOutline(context.Background(), outlineReq)
	require.Error(t, err)
	assert.True(t, generation.IsContentFailure(err))
}

func TestNewGeminiGeneratorValidation(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewGeminiGenerator(context.Background(), nil, config.LLMConfig{})
	assert.Error(t, err)

	_, err = NewGeminiGenerator(context.Background(), logger, config.LLMConfig{ModelName: "m"})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewGeminiGenerator(context.Background(), logger, config.LLMConfig{GeminiAPIKey: "k"})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}
