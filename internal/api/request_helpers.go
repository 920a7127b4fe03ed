package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/api/shared"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
)

// projectRequest is the caller and target of a project-scoped route.
type projectRequest struct {
	UserID    uuid.UUID
	ProjectID uuid.UUID
	Log       *slog.Logger
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", ErrInvalidPathParam, name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s has invalid format", ErrInvalidPathParam, name)
	}
	return id, nil
}

// parseProjectRequest reads the authenticated user and the {projectID}
// parameter. On failure the error response is already written.
func parseProjectRequest(w http.ResponseWriter, r *http.Request, fallback *slog.Logger) (projectRequest, bool) {
	log := logger.FromContextOrDefault(r.Context(), fallback)

	userID, ok := shared.UserID(r.Context())
	if !ok {
		log.Warn("request reached a project route without a user")
		HandleAPIError(w, r, ErrUnauthenticated, "")
		return projectRequest{}, false
	}

	projectID, err := pathUUID(r, projectIDParam)
	if err != nil {
		log.Warn("bad project id", slog.String("value", chi.URLParam(r, projectIDParam)))
		HandleAPIError(w, r, err, "")
		return projectRequest{}, false
	}

	return projectRequest{
		UserID:    userID,
		ProjectID: projectID,
		Log:       log.With(slog.String("project_id", projectID.String())),
	}, true
}
