package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
)

// ProjectStore defines persistence for projects and their run state.
type ProjectStore interface {
	// GetByID retrieves a project by its unique ID.
	// Returns ErrProjectNotFound if the project does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)

	// GetForUpdate retrieves a project and, inside a transaction, locks its row.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Project, error)

	// Update saves run state, counters and timestamps.
	// Returns ErrProjectNotFound if the project does not exist.
	Update(ctx context.Context, project *domain.Project) error

	// ListByStatus returns projects in any of the given statuses.
	ListByStatus(ctx context.Context, statuses ...domain.ProjectStatus) ([]*domain.Project, error)
}

// ChapterStore defines persistence for chapters, their outlines and prose.
type ChapterStore interface {
	// GetByID retrieves a chapter. Returns ErrChapterNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Chapter, error)

	// GetForUpdate retrieves a chapter and, inside a transaction, locks its row.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Chapter, error)

	// ListByProject returns a project's chapters ordered by sort_order.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Chapter, error)

	// Update saves outline, content, word count and status.
	Update(ctx context.Context, chapter *domain.Chapter) error
}

// ClaimFilter narrows ClaimNext to one job type. The zero value claims any type.
type ClaimFilter struct {
	JobType domain.JobType
}

// JobStore is the durable queue of writing jobs.
type JobStore interface {
	// Enqueue inserts jobs in one batch.
	Enqueue(ctx context.Context, jobs []*domain.WritingJob) error

	// ClaimNext leases the highest-priority, lowest sort_order pending job of
	// the project that is due at now. It returns nil, nil when nothing is
	// claimable: no due job, a live lease already held on another job of the
	// project, or only scene jobs while outline work is outstanding.
	ClaimNext(
		ctx context.Context,
		projectID, owner uuid.UUID,
		lease time.Duration,
		now time.Time,
		filter ClaimFilter,
	) (*domain.WritingJob, error)

	// LockLeased re-reads a claimed job and, inside a transaction, locks it.
	// Returns ErrJobNotFound if the row is gone and ErrLeaseLost if owner no
	// longer holds the lease.
	LockLeased(ctx context.Context, jobID, owner uuid.UUID) (*domain.WritingJob, error)

	// MarkDone removes a successfully consumed job.
	MarkDone(ctx context.Context, jobID uuid.UUID) error

	// MarkFailed records a permanent content failure on the job.
	MarkFailed(ctx context.Context, jobID uuid.UUID, reason string, now time.Time) error

	// Release writes back a job's status, counters, retry time and error and
	// clears its lease.
	Release(ctx context.Context, job *domain.WritingJob) error

	// MarkPaused moves all pending jobs of the project to paused.
	MarkPaused(ctx context.Context, projectID uuid.UUID, now time.Time) (int, error)

	// ResumePaused moves all paused jobs of the project to pending, due now.
	ResumePaused(ctx context.Context, projectID uuid.UUID, now time.Time) (int, error)

	// Rearm makes every pending job of the project due now.
	Rearm(ctx context.Context, projectID uuid.UUID, now time.Time) (int, error)

	// DeleteAll removes every job of the project.
	DeleteAll(ctx context.Context, projectID uuid.UUID) (int, error)

	// Counts summarises the project's queue at now.
	Counts(ctx context.Context, projectID uuid.UUID, now time.Time) (domain.JobCounts, error)

	// ListByProject returns all jobs of the project in claim order.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.WritingJob, error)

	// RequeueExpiredLeases returns processing jobs whose lease expired before
	// now to pending, or to paused when their project is paused.
	RequeueExpiredLeases(ctx context.Context, now time.Time) (int, error)
}

// CreditStore persists credit ledgers and the debit journal.
type CreditStore interface {
	// Get returns the user's ledger. Returns ErrLedgerNotFound if missing.
	Get(ctx context.Context, userID uuid.UUID) (*domain.CreditLedger, error)

	// GetForUpdate returns the ledger and, inside a transaction, locks its row.
	GetForUpdate(ctx context.Context, userID uuid.UUID) (*domain.CreditLedger, error)

	// Save inserts or updates the ledger.
	Save(ctx context.Context, ledger *domain.CreditLedger) error

	// RecordDebit journals a debit for jobID. It returns false without
	// error when the job was already charged.
	RecordDebit(ctx context.Context, userID, jobID uuid.UUID, amount int, now time.Time) (bool, error)
}

// Stores groups the stores that take part in one unit of work.
type Stores struct {
	Projects ProjectStore
	Chapters ChapterStore
	Jobs     JobStore
	Credits  CreditStore
}

// Transactor runs fn with stores bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
}
