package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/writing"
)

// Stepper advances a project by one job.
// *writing.Driver is the production implementation.
type Stepper interface {
	Tick(ctx context.Context, projectID uuid.UUID) (writing.Result, error)
}

// ProjectLister finds projects whose run should be advanced.
type ProjectLister interface {
	ListByStatus(ctx context.Context, statuses ...domain.ProjectStatus) ([]*domain.Project, error)
}

// LeaseReaper returns jobs with expired leases to the queue.
type LeaseReaper interface {
	RequeueExpiredLeases(ctx context.Context, now time.Time) (int, error)
}

// ProjectQueueReader provides read-only access to queued project ids
// allowing workers to consume them without the ability to enqueue.
type ProjectQueueReader interface {
	// GetChannel returns a read-only channel of project ids.
	GetChannel() <-chan uuid.UUID

	// Done reports that the loop for id has ended. It returns true when
	// id was submitted again while its loop ran, in which case the caller
	// keeps ownership of id and should run another loop.
	Done(id uuid.UUID) bool
}

// ProjectQueueWriter provides write access to the project queue.
type ProjectQueueWriter interface {
	// Enqueue submits a project. Submitting a project that is already
	// queued or running is not an error.
	Enqueue(id uuid.UUID) error

	// Close closes the queue, preventing further submissions.
	Close()
}
