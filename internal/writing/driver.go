package writing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/credit"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/events"
	"github.com/phrazzld/scribe-api/internal/generation"
	"github.com/phrazzld/scribe-api/internal/platform/metrics"
	"github.com/phrazzld/scribe-api/internal/store"
)

// Common errors
var (
	ErrNilTransactor = errors.New("transactor cannot be nil")
	ErrNilGenerator  = errors.New("generator cannot be nil")
	ErrNilLogger     = errors.New("logger cannot be nil")
)

// Result reports what one driver step did.
type Result struct {
	// Executed is true when a job was claimed and resolved.
	Executed bool
	// Skipped is true when another step for the project was in flight.
	Skipped bool
	JobID   uuid.UUID
	JobType domain.JobType
	Outcome Outcome
	// Continue tells the caller to schedule another step after Delay.
	Continue bool
	Delay    time.Duration
	Status   domain.ProjectStatus
}

// Driver claims and executes at most one job at a time per project.
// It holds no durable state; the job store is the source of truth.
type Driver struct {
	tx       store.Transactor
	outlines *OutlineWorker
	scenes   *SceneWorker
	r        *committer
	cfg      Config
	emitter  events.EventEmitter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewDriver creates a Driver. ledger, emitter and m may be nil: without a
// ledger generation is free, without an emitter no events are published.
func NewDriver(
	tx store.Transactor,
	gen generation.Generator,
	ledger *credit.Ledger,
	emitter events.EventEmitter,
	m *metrics.Metrics,
	cfg Config,
	logger *slog.Logger,
) (*Driver, error) {
	if tx == nil {
		return nil, ErrNilTransactor
	}
	if gen == nil {
		return nil, ErrNilGenerator
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if emitter == nil {
		emitter = events.Nop{}
	}

	d := &Driver{
		tx:       tx,
		cfg:      cfg,
		emitter:  emitter,
		metrics:  m,
		logger:   logger.With(slog.String("component", "writing_driver")),
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[uuid.UUID]struct{}),
	}
	d.r = &committer{
		tx:      tx,
		ledger:  ledger,
		policy:  cfg.Policy(),
		cfg:     cfg,
		metrics: m,
		logger:  d.logger,
		now:     func() time.Time { return d.now() },
	}
	d.outlines = &OutlineWorker{gen: gen, r: d.r, logger: logger.With(slog.String("component", "outline_worker"))}
	d.scenes = &SceneWorker{gen: gen, r: d.r, logger: logger.With(slog.String("component", "scene_worker"))}
	return d, nil
}

// Config returns the driver's settings.
func (d *Driver) Config() Config {
	return d.cfg
}

// Tick runs the next due job of the project, outlines first.
func (d *Driver) Tick(ctx context.Context, projectID uuid.UUID) (Result, error) {
	return d.ProcessNext(ctx, projectID, "")
}

// ProcessNext runs the next due job of jobType, or of any type when jobType
// is empty. Steps for the same project never overlap: a step that finds
// another in flight returns at once with Skipped set.
func (d *Driver) ProcessNext(ctx context.Context, projectID uuid.UUID, jobType domain.JobType) (Result, error) {
	if !d.acquire(projectID) {
		return Result{Skipped: true, Continue: true, Delay: d.cfg.SceneDelay}, nil
	}
	defer d.release(projectID)

	c, res, before, err := d.claim(ctx, projectID, jobType)
	if err != nil {
		return res, err
	}

	if c != nil {
		d.metrics.JobClaimed(string(c.job.JobType))
		var outcome Outcome
		switch c.job.JobType {
		case domain.JobTypeGenerateOutline:
			outcome, err = d.outlines.Process(ctx, c)
		default:
			outcome, err = d.scenes.Process(ctx, c)
		}
		if err != nil {
			d.logger.Error("failed to resolve job",
				slog.String("project_id", projectID.String()),
				slog.String("job_id", c.job.ID.String()),
				slog.String("error", err.Error()))
			return res, fmt.Errorf("failed to resolve job %s: %w", c.job.ID, err)
		}
		res.Outcome = outcome
		res.Delay = d.cfg.phaseDelay(c.job.JobType)
		d.metrics.JobResolved(string(c.job.JobType), string(outcome), d.now().Sub(c.claimedAt))
	} else if res.Outcome == OutcomeSkipped {
		d.metrics.JobResolved(string(res.JobType), string(OutcomeSkipped), 0)
	}

	if err := d.finish(ctx, projectID, before, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (d *Driver) acquire(projectID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[projectID]; busy {
		return false
	}
	d.inflight[projectID] = struct{}{}
	return true
}

func (d *Driver) release(projectID uuid.UUID) {
	d.mu.Lock()
	delete(d.inflight, projectID)
	d.mu.Unlock()
}

// claim leases the next job in one transaction holding the project row
// lock. It promotes a queued run, begins the claimed scene stub and drops
// stale jobs. When nothing is claimable and nothing is outstanding, it
// settles the run so missing scene jobs are enqueued or the run completes.
func (d *Driver) claim(
	ctx context.Context,
	projectID uuid.UUID,
	jobType domain.JobType,
) (*claim, Result, domain.ProjectStatus, error) {
	var (
		c      *claim
		res    Result
		before domain.ProjectStatus
	)
	owner := uuid.New()
	now := d.now()

	err := d.tx.InTx(ctx, func(ctx context.Context, tx store.Stores) error {
		c, res = nil, Result{}
		project, err := tx.Projects.GetForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		before = project.WritingStatus
		res.Status = project.WritingStatus
		if !project.WritingStatus.IsActive() {
			return nil
		}

		counts, err := tx.Jobs.Counts(ctx, projectID, now)
		if err != nil {
			return fmt.Errorf("failed to count jobs: %w", err)
		}
		if project.WritingStatus == domain.ProjectStatusQueued {
			if err := promote(project, counts, now); err != nil {
				return err
			}
		}
		res.Continue = true
		res.Delay = d.cfg.SceneDelay
		if counts.Outlines > 0 {
			res.Delay = d.cfg.OutlineDelay
		}

		job, err := tx.Jobs.ClaimNext(ctx, projectID, owner, d.cfg.LeaseDuration, now,
			store.ClaimFilter{JobType: jobType})
		if err != nil {
			return fmt.Errorf("failed to claim job: %w", err)
		}
		if job == nil {
			if jobType == "" && counts.Outstanding() == 0 {
				return d.r.settleAndSave(ctx, tx, project, now)
			}
			if project.WritingStatus != before {
				return tx.Projects.Update(ctx, project)
			}
			return nil
		}

		res.JobID = job.ID
		res.JobType = job.JobType
		chapters, err := tx.Chapters.ListByProject(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to list chapters: %w", err)
		}
		index := -1
		for i, ch := range chapters {
			if ch.ID == job.ChapterID {
				index = i
				break
			}
		}

		stale := index < 0
		if !stale {
			switch job.JobType {
			case domain.JobTypeGenerateOutline:
				stale = chapters[index].OutlineResolved()
			case domain.JobTypeWriteScene:
				stale = sceneStale(chapters[index], job)
			}
		}
		if stale {
			res.Executed = true
			res.Outcome = OutcomeSkipped
			res.Delay = 0
			return d.r.dropStale(ctx, tx, project, job, now)
		}

		chapter := chapters[index]
		project.CurrentChapterIndex = index
		project.CurrentSceneIndex = 0
		if job.JobType == domain.JobTypeWriteScene {
			if err := chapter.BeginScene(*job.SceneIndex, now); err != nil {
				return err
			}
			if err := tx.Chapters.Update(ctx, chapter); err != nil {
				return fmt.Errorf("failed to begin scene: %w", err)
			}
			project.CurrentSceneIndex = *job.SceneIndex
		}
		project.UpdatedAt = now
		if err := tx.Projects.Update(ctx, project); err != nil {
			return fmt.Errorf("failed to save project: %w", err)
		}

		res.Executed = true
		c = &claim{
			job:          job,
			owner:        owner,
			project:      project,
			chapter:      chapter,
			chapters:     chapters,
			chapterIndex: index,
			claimedAt:    now,
		}
		return nil
	})
	if err != nil {
		return nil, Result{}, before, err
	}
	return c, res, before, nil
}

// promote moves a queued run into its first active phase.
func promote(project *domain.Project, counts domain.JobCounts, now time.Time) error {
	next := domain.ProjectStatusWriting
	if counts.Outlines > 0 {
		next = domain.ProjectStatusGeneratingOutlines
	}
	if err := project.TransitionTo(next, now); err != nil {
		return err
	}
	if project.WritingStartedAt == nil {
		project.WritingStartedAt = &now
	}
	return nil
}

// finish re-reads the project, fills in the result and publishes events.
func (d *Driver) finish(ctx context.Context, projectID uuid.UUID, before domain.ProjectStatus, res *Result) error {
	project, progress, err := d.Progress(ctx, projectID)
	if errors.Is(err, store.ErrProjectNotFound) {
		res.Continue = false
		return nil
	}
	if err != nil {
		return err
	}

	res.Status = project.WritingStatus
	res.Continue = project.WritingStatus.IsActive()
	if !res.Continue {
		res.Delay = 0
	}

	changed := before != "" && before != project.WritingStatus
	if changed {
		d.metrics.StatusChanged(string(project.WritingStatus))
	}
	if res.Executed {
		Emit(ctx, d.emitter, d.logger, events.TypeJobResolved, project, progress)
	}
	if changed {
		switch project.WritingStatus {
		case domain.ProjectStatusCompleted:
			Emit(ctx, d.emitter, d.logger, events.TypeCompleted, project, progress)
		case domain.ProjectStatusFailed:
			Emit(ctx, d.emitter, d.logger, events.TypeFailed, project, progress)
		}
	}
	return nil
}

// Progress reads the project and its progress.
func (d *Driver) Progress(ctx context.Context, projectID uuid.UUID) (*domain.Project, *Progress, error) {
	var (
		project  *domain.Project
		progress *Progress
	)
	now := d.now()
	err := d.tx.InTx(ctx, func(ctx context.Context, tx store.Stores) error {
		p, err := tx.Projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		project = p
		progress, err = LoadProgress(ctx, tx, p, now, d.cfg.PlaceholderScenesPerChapter)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return project, progress, nil
}

// Emit publishes a progress event for project. Publishing failures are
// logged, never returned: a missed notification must not undo a commit.
func Emit(
	ctx context.Context,
	emitter events.EventEmitter,
	logger *slog.Logger,
	t events.Type,
	project *domain.Project,
	progress *Progress,
) {
	ev, err := events.New(t, project.ID, project.UserID, string(project.WritingStatus), progress)
	if err != nil {
		logger.Error("failed to build event", slog.String("type", string(t)), slog.String("error", err.Error()))
		return
	}
	if err := emitter.EmitEvent(ctx, ev); err != nil {
		logger.Warn("failed to publish event",
			slog.String("type", string(t)),
			slog.String("project_id", project.ID.String()),
			slog.String("error", err.Error()))
	}
}
