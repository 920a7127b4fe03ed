package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/events"
	"github.com/phrazzld/scribe-api/internal/platform/metrics"
	"github.com/phrazzld/scribe-api/internal/store"
	"github.com/phrazzld/scribe-api/internal/writing"
)

// Stepper runs one step of a project's writing run.
// *writing.Driver is the production implementation.
type Stepper interface {
	ProcessNext(ctx context.Context, projectID uuid.UUID, jobType domain.JobType) (writing.Result, error)
	Config() writing.Config
}

// WritingService provides the user-facing actions on a writing run.
type WritingService interface {
	// Start builds the job batch and puts the project into its first phase.
	Start(ctx context.Context, userID, projectID uuid.UUID) (*writing.Progress, error)

	// Pause stops the run from advancing. The job being written finishes.
	Pause(ctx context.Context, userID, projectID uuid.UUID) (*writing.Progress, error)

	// Resume continues a paused or failed run.
	Resume(ctx context.Context, userID, projectID uuid.UUID) (*writing.Progress, error)

	// Cancel deletes the run's jobs and returns the project to idle.
	Cancel(ctx context.Context, userID, projectID uuid.UUID) (*writing.Progress, error)

	// GetProgress returns the progress read model.
	GetProgress(ctx context.Context, userID, projectID uuid.UUID) (*writing.Progress, error)

	// Step runs one driver step, restricted to jobType when it is not empty.
	Step(ctx context.Context, userID, projectID uuid.UUID, jobType domain.JobType) (writing.Result, error)

	// ForceResume re-arms a stalled run regardless of owner. It is used by
	// the watchdog.
	ForceResume(ctx context.Context, projectID uuid.UUID) error
}

// action is a state machine transition run under the project row lock.
type action func(ctx context.Context, tx store.Stores, project *domain.Project, now time.Time) (int, error)

type writingServiceImpl struct {
	tx      store.Transactor
	stepper Stepper
	emitter events.EventEmitter
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

var (
	_ WritingService  = (*writingServiceImpl)(nil)
	_ writing.Resumer = (*writingServiceImpl)(nil)
)

// NewWritingService creates a new WritingService.
// It returns an error if any of the required dependencies are nil.
// emitter and m may be nil.
func NewWritingService(
	tx store.Transactor,
	stepper Stepper,
	emitter events.EventEmitter,
	m *metrics.Metrics,
	logger *slog.Logger,
) (WritingService, error) {
	if tx == nil {
		return nil, &WritingServiceError{Operation: "create_service", Message: "transactor cannot be nil"}
	}
	if stepper == nil {
		return nil, &WritingServiceError{Operation: "create_service", Message: "stepper cannot be nil"}
	}
	if logger == nil {
		return nil, &WritingServiceError{Operation: "create_service", Message: "logger cannot be nil"}
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &writingServiceImpl{
		tx:      tx,
		stepper: stepper,
		emitter: emitter,
		metrics: m,
		logger:  logger.With(slog.String("component", "writing_service")),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start implements WritingService.
func (s *writingServiceImpl) Start(ctx context.Context, userID, projectID uuid.UUID) (*writing.Progress, error) {
	return s.control(ctx, "start", userID, projectID, writing.StartRun, events.TypeStarted)
}

// Pause implements WritingService.
func (s *writingServiceImpl) Pause(ctx context.Context, userID, projectID uuid.UUID) (*writing.Progress, error) {
	return s.control(ctx, "pause", userID, projectID, writing.PauseRun, events.TypePaused)
}

// Resume implements WritingService.
func (s *writingServiceImpl) Resume(ctx context.Context, userID, projectID uuid.UUID) (*writing.Progress, error) {
	return s.control(ctx, "resume", userID, projectID, writing.ResumeRun, events.TypeResumed)
}

// Cancel implements WritingService.
func (s *writingServiceImpl) Cancel(ctx context.Context, userID, projectID uuid.UUID) (*writing.Progress, error) {
	return s.control(ctx, "cancel", userID, projectID, writing.CancelRun, events.TypeCancelled)
}

// ForceResume implements WritingService and writing.Resumer.
func (s *writingServiceImpl) ForceResume(ctx context.Context, projectID uuid.UUID) error {
	_, err := s.control(ctx, "force_resume", uuid.Nil, projectID, writing.RearmRun, events.TypeResumed)
	return err
}

// GetProgress implements WritingService.
func (s *writingServiceImpl) GetProgress(
	ctx context.Context,
	userID, projectID uuid.UUID,
) (*writing.Progress, error) {
	var progress *writing.Progress
	err := s.tx.InTx(ctx, func(ctx context.Context, tx store.Stores) error {
		project, err := tx.Projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project.UserID != userID {
			return ErrNotOwned
		}
		progress, err = writing.LoadProgress(ctx, tx, project, s.now(),
			s.stepper.Config().PlaceholderScenesPerChapter)
		return err
	})
	if err != nil {
		return nil, NewWritingServiceError("get_progress", "failed to load progress", err)
	}
	return progress, nil
}

// Step implements WritingService.
func (s *writingServiceImpl) Step(
	ctx context.Context,
	userID, projectID uuid.UUID,
	jobType domain.JobType,
) (writing.Result, error) {
	if err := s.checkOwner(ctx, userID, projectID); err != nil {
		return writing.Result{}, NewWritingServiceError("step", "failed to load project", err)
	}
	res, err := s.stepper.ProcessNext(ctx, projectID, jobType)
	if err != nil {
		return res, NewWritingServiceError("step", "failed to run job", err)
	}
	return res, nil
}

func (s *writingServiceImpl) checkOwner(ctx context.Context, userID, projectID uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context, tx store.Stores) error {
		project, err := tx.Projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project.UserID != userID {
			return ErrNotOwned
		}
		return nil
	})
}

// control runs fn under the project row lock and publishes t once the
// transaction commits. A nil userID skips the ownership check.
func (s *writingServiceImpl) control(
	ctx context.Context,
	op string,
	userID, projectID uuid.UUID,
	fn action,
	t events.Type,
) (*writing.Progress, error) {
	log := s.logger.With(slog.String("operation", op), slog.String("project_id", projectID.String()))

	var (
		project  *domain.Project
		progress *writing.Progress
		before   domain.ProjectStatus
		affected int
	)
	now := s.now()
	err := s.tx.InTx(ctx, func(ctx context.Context, tx store.Stores) error {
		p, err := tx.Projects.GetForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		if userID != uuid.Nil && p.UserID != userID {
			return ErrNotOwned
		}
		before = p.WritingStatus
		affected, err = fn(ctx, tx, p, now)
		if err != nil {
			return err
		}
		project = p
		progress, err = writing.LoadProgress(ctx, tx, p, now, s.stepper.Config().PlaceholderScenesPerChapter)
		return err
	})
	if err != nil {
		if !isExpected(err) {
			log.Error("writing control action failed", slog.String("error", err.Error()))
		}
		return nil, NewWritingServiceError(op, "failed to "+op+" run", err)
	}

	if before != project.WritingStatus {
		s.metrics.StatusChanged(string(project.WritingStatus))
	}
	log.Info("writing control action applied",
		slog.String("from", string(before)),
		slog.String("to", string(project.WritingStatus)),
		slog.Int("jobs", affected))
	writing.Emit(ctx, s.emitter, s.logger, t, project, progress)
	return progress, nil
}

// isExpected reports errors caused by the request rather than the system.
func isExpected(err error) bool {
	return errors.Is(err, ErrNotOwned) ||
		errors.Is(err, store.ErrProjectNotFound) ||
		errors.Is(err, ErrRunInProgress) ||
		errors.Is(err, ErrNothingToWrite) ||
		errors.Is(err, domain.ErrInvalidTransition)
}
