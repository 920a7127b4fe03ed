package writing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/credit"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/generation"
	"github.com/phrazzld/scribe-api/internal/platform/metrics"
	"github.com/phrazzld/scribe-api/internal/redact"
	"github.com/phrazzld/scribe-api/internal/store"
)

// Outcome is how one claimed job was resolved.
type Outcome string

// Possible outcomes
const (
	// OutcomeDone means the result was committed and the job removed.
	OutcomeDone Outcome = "done"
	// OutcomeFailed means a content failure marked the scene or chapter failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the job no longer matched its chapter and was dropped.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeRetry and OutcomeRecovering come from the retry policy.
	OutcomeRetry      Outcome = "retry"
	OutcomeRecovering Outcome = "recovering"
	// OutcomeStalled means the job was retried but the run was failed for
	// making no progress.
	OutcomeStalled Outcome = "stalled"
	// OutcomeBlocked means the user could not afford the job.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeInterrupted means the caller's context ended mid-attempt. The
	// job is released without counting the attempt.
	OutcomeInterrupted Outcome = "interrupted"
	// OutcomeDiscarded means the job row vanished or its lease was taken
	// over while the attempt ran. Nothing is written.
	OutcomeDiscarded Outcome = "discarded"
)

// errDiscarded aborts a resolution whose job is no longer held.
var errDiscarded = errors.New("job no longer held")

// claim is a leased job with the data read when it was claimed.
type claim struct {
	job          *domain.WritingJob
	owner        uuid.UUID
	project      *domain.Project
	chapter      *domain.Chapter
	chapters     []*domain.Chapter
	chapterIndex int
	claimedAt    time.Time
}

func (c *claim) sceneIndex() int {
	if c.job.SceneIndex == nil {
		return -1
	}
	return *c.job.SceneIndex
}

// committer writes job resolutions. Each method runs one transaction that
// locks the project row, re-checks the lease and then applies the change.
type committer struct {
	tx      store.Transactor
	ledger  *credit.Ledger
	policy  Policy
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// lock takes the project row lock and confirms c still holds its job.
func (r *committer) lock(
	ctx context.Context,
	tx store.Stores,
	c *claim,
) (*domain.Project, *domain.WritingJob, error) {
	project, err := tx.Projects.GetForUpdate(ctx, c.job.ProjectID)
	if errors.Is(err, store.ErrProjectNotFound) {
		return nil, nil, fmt.Errorf("%w: %v", errDiscarded, err)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock project: %w", err)
	}
	job, err := tx.Jobs.LockLeased(ctx, c.job.ID, c.owner)
	if errors.Is(err, store.ErrJobNotFound) || errors.Is(err, store.ErrLeaseLost) {
		return nil, nil, fmt.Errorf("%w: %v", errDiscarded, err)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock job: %w", err)
	}
	return project, job, nil
}

// run executes fn in a transaction and turns a lost job into OutcomeDiscarded.
func (r *committer) run(
	ctx context.Context,
	c *claim,
	fn func(ctx context.Context, tx store.Stores) (Outcome, error),
) (Outcome, error) {
	var outcome Outcome
	err := r.tx.InTx(ctx, func(ctx context.Context, tx store.Stores) error {
		o, err := fn(ctx, tx)
		outcome = o
		return err
	})
	if errors.Is(err, errDiscarded) {
		r.logger.Info("job vanished during attempt, result discarded",
			slog.String("job_id", c.job.ID.String()),
			slog.String("project_id", c.job.ProjectID.String()),
			slog.String("reason", err.Error()))
		return OutcomeDiscarded, nil
	}
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// checkCredits returns an error wrapping domain.ErrInsufficientCredits when
// the project owner cannot pay amount.
func (r *committer) checkCredits(ctx context.Context, c *claim, amount int) error {
	if r.ledger == nil || amount <= 0 {
		return nil
	}
	now := r.now()
	return r.tx.InTx(ctx, func(ctx context.Context, tx store.Stores) error {
		return r.ledger.Check(ctx, tx.Credits, c.project.UserID, amount, now)
	})
}

// debit charges amount for the job inside the resolving transaction.
func (r *committer) debit(
	ctx context.Context,
	tx store.Stores,
	project *domain.Project,
	job *domain.WritingJob,
	amount int,
	now time.Time,
) error {
	if r.ledger == nil {
		return nil
	}
	charged, err := r.ledger.Debit(ctx, tx.Credits, project.UserID, job.ID, amount, now)
	if err != nil {
		return err
	}
	if charged {
		r.metrics.CreditsDebited(amount)
	}
	return nil
}

// commitOutline stores stubs as the chapter's outline and removes the job.
func (r *committer) commitOutline(ctx context.Context, c *claim, stubs []domain.SceneStub) (Outcome, error) {
	outcome, err := r.run(ctx, c, func(ctx context.Context, tx store.Stores) (Outcome, error) {
		now := r.now()
		project, job, err := r.lock(ctx, tx, c)
		if err != nil {
			return "", err
		}
		chapter, err := tx.Chapters.GetForUpdate(ctx, job.ChapterID)
		if errors.Is(err, store.ErrChapterNotFound) {
			return OutcomeSkipped, r.dropStale(ctx, tx, project, job, now)
		}
		if err != nil {
			return "", fmt.Errorf("failed to lock chapter: %w", err)
		}
		if chapter.OutlineResolved() {
			return OutcomeSkipped, r.dropStale(ctx, tx, project, job, now)
		}

		chapter.SetOutline(stubs, now)
		if err := tx.Chapters.Update(ctx, chapter); err != nil {
			return "", fmt.Errorf("failed to save outline: %w", err)
		}
		if err := project.AddScenes(len(stubs)); err != nil {
			return "", err
		}
		project.Touch(now)

		if err := r.debit(ctx, tx, project, job, r.cfg.OutlineCreditCost, now); err != nil {
			return "", err
		}
		if err := tx.Jobs.MarkDone(ctx, job.ID); err != nil {
			return "", fmt.Errorf("failed to remove outline job: %w", err)
		}
		if err := r.settleAndSave(ctx, tx, project, now); err != nil {
			return "", err
		}
		return OutcomeDone, nil
	})
	if errors.Is(err, domain.ErrInsufficientCredits) {
		return r.release(ctx, c, err)
	}
	return outcome, err
}

// commitScene appends text to the chapter, marks the stub done and removes
// the job.
func (r *committer) commitScene(ctx context.Context, c *claim, text string) (Outcome, error) {
	outcome, err := r.run(ctx, c, func(ctx context.Context, tx store.Stores) (Outcome, error) {
		now := r.now()
		project, job, err := r.lock(ctx, tx, c)
		if err != nil {
			return "", err
		}
		chapter, err := tx.Chapters.GetForUpdate(ctx, job.ChapterID)
		if errors.Is(err, store.ErrChapterNotFound) {
			return OutcomeSkipped, r.dropStale(ctx, tx, project, job, now)
		}
		if err != nil {
			return "", fmt.Errorf("failed to lock chapter: %w", err)
		}
		if sceneStale(chapter, job) {
			return OutcomeSkipped, r.dropStale(ctx, tx, project, job, now)
		}

		if err := chapter.AppendScene(*job.SceneIndex, text, now); err != nil {
			return "", err
		}
		if err := tx.Chapters.Update(ctx, chapter); err != nil {
			return "", fmt.Errorf("failed to save scene: %w", err)
		}
		if err := project.RecordSceneDone(now); err != nil {
			return "", err
		}
		if err := r.refreshWordCount(ctx, tx, project); err != nil {
			return "", err
		}

		if err := r.debit(ctx, tx, project, job, r.cfg.SceneCreditCost, now); err != nil {
			return "", err
		}
		if err := tx.Jobs.MarkDone(ctx, job.ID); err != nil {
			return "", fmt.Errorf("failed to remove scene job: %w", err)
		}
		if err := r.settleAndSave(ctx, tx, project, now); err != nil {
			return "", err
		}
		return OutcomeDone, nil
	})
	if errors.Is(err, domain.ErrInsufficientCredits) {
		return r.release(ctx, c, err)
	}
	return outcome, err
}

// fail routes a generation error to the matching resolution.
func (r *committer) fail(ctx context.Context, c *claim, cause error) (Outcome, error) {
	if ctx.Err() != nil {
		return r.release(context.WithoutCancel(ctx), c, nil)
	}
	if generation.IsContentFailure(cause) {
		return r.contentFailure(ctx, c, cause)
	}
	return r.retry(ctx, c, cause)
}

// contentFailure resolves the job without retrying it. A scene stub is
// marked failed; a chapter whose outline failed counts as outlined with no
// scenes. The job row is kept with status failed.
func (r *committer) contentFailure(ctx context.Context, c *claim, cause error) (Outcome, error) {
	reason := redact.Reason(cause)
	return r.run(ctx, c, func(ctx context.Context, tx store.Stores) (Outcome, error) {
		now := r.now()
		project, job, err := r.lock(ctx, tx, c)
		if err != nil {
			return "", err
		}
		chapter, err := tx.Chapters.GetForUpdate(ctx, job.ChapterID)
		if errors.Is(err, store.ErrChapterNotFound) {
			return OutcomeSkipped, r.dropStale(ctx, tx, project, job, now)
		}
		if err != nil {
			return "", fmt.Errorf("failed to lock chapter: %w", err)
		}

		switch job.JobType {
		case domain.JobTypeWriteScene:
			if sceneStale(chapter, job) {
				return OutcomeSkipped, r.dropStale(ctx, tx, project, job, now)
			}
			if err := chapter.SetSceneStatus(*job.SceneIndex, domain.SceneStatusFailed, now); err != nil {
				return "", err
			}
			if err := project.RecordSceneFailed(now); err != nil {
				return "", err
			}
		case domain.JobTypeGenerateOutline:
			if chapter.OutlineResolved() {
				return OutcomeSkipped, r.dropStale(ctx, tx, project, job, now)
			}
			chapter.FailOutline(now)
			project.Touch(now)
		}
		if err := tx.Chapters.Update(ctx, chapter); err != nil {
			return "", fmt.Errorf("failed to save chapter: %w", err)
		}
		if err := tx.Jobs.MarkFailed(ctx, job.ID, reason, now); err != nil {
			return "", fmt.Errorf("failed to mark job failed: %w", err)
		}
		if err := r.settleAndSave(ctx, tx, project, now); err != nil {
			return "", err
		}
		return OutcomeFailed, nil
	})
}

// retry applies the retry policy. When the project has gone without
// progress for the stall timeout the run is failed; the job stays queued
// for a manual resume.
func (r *committer) retry(ctx context.Context, c *claim, cause error) (Outcome, error) {
	return r.run(ctx, c, func(ctx context.Context, tx store.Stores) (Outcome, error) {
		now := r.now()
		project, job, err := r.lock(ctx, tx, c)
		if err != nil {
			return "", err
		}
		decision := r.policy.Apply(job, cause, now)
		if project.WritingStatus == domain.ProjectStatusPaused {
			job.Status = domain.JobStatusPaused
		}
		if err := tx.Jobs.Release(ctx, job); err != nil {
			return "", fmt.Errorf("failed to release job: %w", err)
		}
		if err := r.returnScene(ctx, tx, job, now); err != nil {
			return "", err
		}

		outcome := OutcomeRetry
		if decision == Recover {
			outcome = OutcomeRecovering
		}
		if project.WritingStatus.IsActive() && project.StalledSince(now, r.cfg.StallTimeout) {
			msg := fmt.Sprintf("writing stalled: no progress for %s, last error: %s",
				r.cfg.StallTimeout, redact.Error(cause))
			if err := project.Fail(msg, now); err != nil {
				return "", err
			}
			if err := tx.Projects.Update(ctx, project); err != nil {
				return "", fmt.Errorf("failed to save project: %w", err)
			}
			outcome = OutcomeStalled
		}
		return outcome, nil
	})
}

// release hands the job back untouched. A non-nil cause means the user ran
// out of credits, which fails an active run with an actionable message.
func (r *committer) release(ctx context.Context, c *claim, cause error) (Outcome, error) {
	return r.run(ctx, c, func(ctx context.Context, tx store.Stores) (Outcome, error) {
		now := r.now()
		project, job, err := r.lock(ctx, tx, c)
		if err != nil {
			return "", err
		}
		job.Status = domain.JobStatusPending
		if project.WritingStatus == domain.ProjectStatusPaused {
			job.Status = domain.JobStatusPaused
		}
		job.UpdatedAt = now
		if err := tx.Jobs.Release(ctx, job); err != nil {
			return "", fmt.Errorf("failed to release job: %w", err)
		}
		if err := r.returnScene(ctx, tx, job, now); err != nil {
			return "", err
		}
		if cause == nil {
			return OutcomeInterrupted, nil
		}
		if project.WritingStatus.IsActive() {
			if err := project.Fail(redact.Reason(cause), now); err != nil {
				return "", err
			}
			if err := tx.Projects.Update(ctx, project); err != nil {
				return "", fmt.Errorf("failed to save project: %w", err)
			}
		}
		return OutcomeBlocked, nil
	})
}

// returnScene puts a scene stub that was being written back to pending.
func (r *committer) returnScene(ctx context.Context, tx store.Stores, job *domain.WritingJob, now time.Time) error {
	if job.JobType != domain.JobTypeWriteScene || job.SceneIndex == nil {
		return nil
	}
	chapter, err := tx.Chapters.GetForUpdate(ctx, job.ChapterID)
	if errors.Is(err, store.ErrChapterNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to lock chapter: %w", err)
	}
	chapter.ReturnScene(*job.SceneIndex, now)
	if err := tx.Chapters.Update(ctx, chapter); err != nil {
		return fmt.Errorf("failed to save chapter: %w", err)
	}
	return nil
}

// dropStale deletes a job that no longer matches its chapter. Stubs still
// waiting for work get a fresh job from settle.
func (r *committer) dropStale(
	ctx context.Context,
	tx store.Stores,
	project *domain.Project,
	job *domain.WritingJob,
	now time.Time,
) error {
	if err := tx.Jobs.MarkDone(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to remove stale job: %w", err)
	}
	r.logger.Warn("stale job dropped",
		slog.String("job_id", job.ID.String()),
		slog.String("project_id", job.ProjectID.String()),
		slog.String("job_type", string(job.JobType)))
	return r.settleAndSave(ctx, tx, project, now)
}

// settleAndSave runs settle and saves the project.
func (r *committer) settleAndSave(ctx context.Context, tx store.Stores, project *domain.Project, now time.Time) error {
	if _, err := r.settle(ctx, tx, project, now); err != nil {
		return err
	}
	if err := tx.Projects.Update(ctx, project); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

// settle moves the run forward after a job resolved. Once no outline work
// is outstanding, every non-terminal stub without a job gets one and an
// outlining run moves to writing. A writing run with no outstanding jobs
// and no open stubs is completed. It returns the number of jobs enqueued.
func (r *committer) settle(ctx context.Context, tx store.Stores, project *domain.Project, now time.Time) (int, error) {
	counts, err := tx.Jobs.Counts(ctx, project.ID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	if counts.Outlines > 0 {
		return 0, nil
	}

	enqueued, err := enqueueMissingScenes(ctx, tx, project.ID, now)
	if err != nil {
		return 0, err
	}
	if enqueued > 0 && project.WritingStatus == domain.ProjectStatusPaused {
		if _, err := tx.Jobs.MarkPaused(ctx, project.ID, now); err != nil {
			return 0, fmt.Errorf("failed to pause new jobs: %w", err)
		}
	}
	if !project.WritingStatus.IsActive() {
		return enqueued, nil
	}

	if project.WritingStatus != domain.ProjectStatusWriting {
		if err := project.TransitionTo(domain.ProjectStatusWriting, now); err != nil {
			return 0, err
		}
		r.logger.Info("outlines resolved, writing scenes",
			slog.String("project_id", project.ID.String()),
			slog.Int("scene_jobs", counts.Scenes+enqueued))
	}

	if enqueued > 0 || counts.Outstanding() > 0 {
		return enqueued, nil
	}
	if err := project.TransitionTo(domain.ProjectStatusCompleted, now); err != nil {
		return 0, err
	}
	r.logger.Info("writing run completed",
		slog.String("project_id", project.ID.String()),
		slog.Int("completed_scenes", project.CompletedScenes),
		slog.Int("failed_scenes", project.FailedScenes))
	return 0, nil
}

// enqueueMissingScenes adds one scene job per non-terminal stub that has no
// outstanding job, in a single batch.
func enqueueMissingScenes(ctx context.Context, tx store.Stores, projectID uuid.UUID, now time.Time) (int, error) {
	chapters, err := tx.Chapters.ListByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to list chapters: %w", err)
	}
	jobs, err := tx.Jobs.ListByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	queued := make(map[domain.JobKey]bool, len(jobs))
	for _, j := range jobs {
		if j.Status.IsOutstanding() {
			queued[j.Key()] = true
		}
	}

	var batch []*domain.WritingJob
	for _, ch := range chapters {
		for i, stub := range ch.SceneOutline {
			if stub.Status.IsTerminal() {
				continue
			}
			key := domain.JobKey{ChapterID: ch.ID, JobType: domain.JobTypeWriteScene, SceneIndex: i}
			if queued[key] {
				continue
			}
			job, err := domain.NewSceneJob(ch, i, now)
			if err != nil {
				return 0, err
			}
			batch = append(batch, job)
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := tx.Jobs.Enqueue(ctx, batch); err != nil {
		return 0, fmt.Errorf("failed to enqueue scene jobs: %w", err)
	}
	return len(batch), nil
}

func (r *committer) refreshWordCount(ctx context.Context, tx store.Stores, project *domain.Project) error {
	chapters, err := tx.Chapters.ListByProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("failed to list chapters: %w", err)
	}
	total := 0
	for _, ch := range chapters {
		total += ch.WordCount
	}
	project.WordCount = total
	return nil
}

// sceneStale reports whether job no longer addresses an open stub of chapter.
func sceneStale(chapter *domain.Chapter, job *domain.WritingJob) bool {
	if job.SceneIndex == nil || job.SceneSnapshot == nil {
		return true
	}
	stub, err := chapter.Scene(*job.SceneIndex)
	if err != nil {
		return true
	}
	return stub.SceneNumber != job.SceneSnapshot.SceneNumber || stub.Status.IsTerminal()
}
