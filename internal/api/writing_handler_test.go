package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/api/middleware"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/mocks"
	"github.com/phrazzld/scribe-api/internal/platform/memory"
	"github.com/phrazzld/scribe-api/internal/service"
	"github.com/phrazzld/scribe-api/internal/service/auth"
	"github.com/phrazzld/scribe-api/internal/writing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	router  http.Handler
	mem     *memory.Store
	project *domain.Project
	tokens  map[string]uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := memory.NewStore()
	ctx := context.Background()

	cfg := writing.DefaultConfig()
	cfg.SceneDelay = 0
	gen := &mocks.MockGenerator{Scenes: []domain.SceneStub{{Title: "opening"}}, Prose: "It began."}
	driver, err := writing.NewDriver(mem, gen, nil, nil, nil, cfg, logger)
	require.NoError(t, err)
	svc, err := service.NewWritingService(mem, driver, nil, nil, logger)
	require.NoError(t, err)

	p, err := domain.NewProject(uuid.New(), "Paper Moons", "", 0)
	require.NoError(t, err)
	require.NoError(t, mem.Projects().Create(ctx, p))
	ch, err := domain.NewChapter(p.ID, "One", "", 1)
	require.NoError(t, err)
	require.NoError(t, mem.Chapters().Create(ctx, ch))

	f := &apiFixture{
		mem:     mem,
		project: p,
		tokens:  map[string]uuid.UUID{"owner": p.UserID, "stranger": uuid.New()},
	}
	jwt := &mocks.MockJWTService{
		ValidateTokenFn: func(_ context.Context, token string) (*auth.Claims, error) {
			id, ok := f.tokens[token]
			if !ok {
				return nil, auth.ErrInvalidToken
			}
			return &auth.Claims{UserID: id}, nil
		},
	}
	f.router = NewRouter(RouterDeps{
		Writing: NewWritingHandler(svc, logger),
		Auth:    middleware.NewAuthMiddleware(jwt),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics") }),
		Logger:  logger,
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) path(suffix string) string {
	return "/api/projects/" + f.project.ID.String() + "/writing/" + suffix
}

func TestWritingEndpoints(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, f.path("start"), "owner")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var progress writing.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, domain.ProjectStatusGeneratingOutlines, progress.Status)
	assert.Equal(t, 1, progress.Jobs.Outlines)

	rec = f.do(t, http.MethodPost, f.path("start"), "owner")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, f.path("scenes/next"), "owner")
	require.Equal(t, http.StatusOK, rec.Code)
	var step StepResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &step))
	assert.False(t, step.Executed)
	assert.Nil(t, step.JobID)
	assert.True(t, step.Continue)

	rec = f.do(t, http.MethodPost, f.path("outlines/next"), "owner")
	require.Equal(t, http.StatusOK, rec.Code)
	step = StepResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &step))
	assert.True(t, step.Executed)
	require.NotNil(t, step.JobID)
	assert.Equal(t, domain.JobTypeGenerateOutline, step.JobType)
	assert.Equal(t, writing.OutcomeDone, step.Outcome)

	rec = f.do(t, http.MethodPost, f.path("tick"), "owner")
	require.Equal(t, http.StatusOK, rec.Code)
	step = StepResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &step))
	assert.Equal(t, domain.JobTypeWriteScene, step.JobType)
	assert.False(t, step.Continue)
	assert.Equal(t, domain.ProjectStatusCompleted, step.Status)
	assert.Zero(t, step.DelayMS)

	rec = f.do(t, http.MethodGet, f.path("progress"), "owner")
	require.Equal(t, http.StatusOK, rec.Code)
	progress = writing.Progress{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, 1, progress.CompletedScenes)
	assert.Equal(t, 1, progress.TotalScenes)
}

func TestWritingEndpointErrors(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"no token", http.MethodPost, f.path("start"), "", http.StatusUnauthorized},
		{"bad token", http.MethodPost, f.path("start"), "forged", http.StatusUnauthorized},
		{"not owner", http.MethodPost, f.path("start"), "stranger", http.StatusForbidden},
		{"not owner step", http.MethodPost, f.path("tick"), "stranger", http.StatusForbidden},
		{"unknown project", http.MethodGet, "/api/projects/" + uuid.NewString() + "/writing/progress", "owner", http.StatusNotFound},
		{"malformed id", http.MethodGet, "/api/projects/not-a-uuid/writing/progress", "owner", http.StatusBadRequest},
		{"pause idle run", http.MethodPost, f.path("pause"), "owner", http.StatusConflict},
		{"resume idle run", http.MethodPost, f.path("resume"), "owner", http.StatusConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, tc.token)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestCancelEndpoint(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, f.path("start"), "owner").Code)
	rec := f.do(t, http.MethodPost, f.path("cancel"), "owner")
	require.Equal(t, http.StatusOK, rec.Code)

	var progress writing.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, domain.ProjectStatusIdle, progress.Status)
	require.NotNil(t, progress.Error)
	assert.Equal(t, domain.StoppedByUserMessage, *progress.Error)
}

func TestPublicEndpoints(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}
