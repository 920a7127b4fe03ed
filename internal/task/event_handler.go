package task

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/events"
)

// Submitter schedules a project loop.
type Submitter interface {
	Submit(ctx context.Context, projectID uuid.UUID) error
}

// KickEventHandler implements events.EventHandler. It submits a project as
// soon as its run is started or resumed instead of waiting for discovery.
type KickEventHandler struct {
	runner Submitter
	logger *slog.Logger
}

// NewKickEventHandler creates a handler that submits to runner.
func NewKickEventHandler(runner Submitter, logger *slog.Logger) *KickEventHandler {
	return &KickEventHandler{
		runner: runner,
		logger: logger.With("component", "kick_event_handler"),
	}
}

// HandleEvent submits the project of started and resumed events.
func (h *KickEventHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	switch event.Type {
	case events.TypeStarted, events.TypeResumed:
	default:
		return nil
	}

	if err := h.runner.Submit(ctx, event.ProjectID); err != nil {
		h.logger.Error("failed to submit project",
			"error", err,
			"project_id", event.ProjectID,
			"event_type", event.Type)
		return err
	}
	h.logger.Debug("project submitted", "project_id", event.ProjectID, "event_type", event.Type)
	return nil
}

var _ events.EventHandler = (*KickEventHandler)(nil)
