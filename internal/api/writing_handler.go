package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/api/shared"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/service"
	"github.com/phrazzld/scribe-api/internal/writing"
)

const projectIDParam = "projectID"

// WritingHandler serves the writing run endpoints of a project.
type WritingHandler struct {
	svc    service.WritingService
	logger *slog.Logger
}

// NewWritingHandler creates a new WritingHandler.
func NewWritingHandler(svc service.WritingService, logger *slog.Logger) *WritingHandler {
	return &WritingHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "writing_handler")),
	}
}

type controlFunc func(ctx context.Context, userID, projectID uuid.UUID) (*writing.Progress, error)

// Start handles POST /api/projects/{projectID}/writing/start.
func (h *WritingHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "start", h.svc.Start)
}

// Pause handles POST /api/projects/{projectID}/writing/pause.
func (h *WritingHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "pause", h.svc.Pause)
}

// Resume handles POST /api/projects/{projectID}/writing/resume.
func (h *WritingHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "resume", h.svc.Resume)
}

// Cancel handles POST /api/projects/{projectID}/writing/cancel.
func (h *WritingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "cancel", h.svc.Cancel)
}

// GetProgress handles GET /api/projects/{projectID}/writing/progress.
func (h *WritingHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "get_progress", h.svc.GetProgress)
}

// Tick handles POST /api/projects/{projectID}/writing/tick.
func (h *WritingHandler) Tick(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, "")
}

// NextOutline handles POST /api/projects/{projectID}/writing/outlines/next.
func (h *WritingHandler) NextOutline(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, domain.JobTypeGenerateOutline)
}

// NextScene handles POST /api/projects/{projectID}/writing/scenes/next.
func (h *WritingHandler) NextScene(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, domain.JobTypeWriteScene)
}

func (h *WritingHandler) control(w http.ResponseWriter, r *http.Request, op string, fn controlFunc) {
	req, ok := parseProjectRequest(w, r, h.logger)
	if !ok {
		return
	}

	progress, err := fn(r.Context(), req.UserID, req.ProjectID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to "+humanize(op))
		return
	}

	req.Log.Debug("writing request served",
		slog.String("operation", op),
		slog.String("status", string(progress.Status)))
	shared.RespondWithJSON(w, r, http.StatusOK, progress)
}

func (h *WritingHandler) step(w http.ResponseWriter, r *http.Request, jobType domain.JobType) {
	req, ok := parseProjectRequest(w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.svc.Step(r.Context(), req.UserID, req.ProjectID, jobType)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to run writing step")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stepResponse(res))
}

func humanize(op string) string {
	switch op {
	case "get_progress":
		return "load progress"
	default:
		return op + " writing run"
	}
}
