package writing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
)

// Errors returned by the run control actions.
var (
	// ErrRunInProgress is returned by StartRun while jobs are pending or processing.
	ErrRunInProgress = errors.New("a writing run is already in progress")

	// ErrNothingToWrite is returned by StartRun when every chapter is outlined
	// and every scene is written.
	ErrNothingToWrite = errors.New("nothing left to write")
)

// The functions below are the control actions of the project state
// machine. Each expects tx to be bound to a transaction in which project
// was read with GetForUpdate, and saves the project itself.

// StartRun builds the initial job batch: one outline job per chapter
// without an outline and one scene job per stub not yet done. Counters are
// reset from the stubs and the run enters its first phase. It returns the
// number of jobs created.
func StartRun(ctx context.Context, tx store.Stores, project *domain.Project, now time.Time) (int, error) {
	counts, err := tx.Jobs.Counts(ctx, project.ID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	if counts.Active() > 0 {
		return 0, ErrRunInProgress
	}
	if !project.WritingStatus.CanStart() {
		return 0, fmt.Errorf("%w: cannot start a run from %s", domain.ErrInvalidTransition, project.WritingStatus)
	}

	// Paused and failed rows from an earlier run are never reused.
	if _, err := tx.Jobs.DeleteAll(ctx, project.ID); err != nil {
		return 0, fmt.Errorf("failed to clear old jobs: %w", err)
	}

	chapters, err := tx.Chapters.ListByProject(ctx, project.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list chapters: %w", err)
	}

	var (
		batch    []*domain.WritingJob
		total    int
		done     int
		outlines int
	)
	for _, ch := range chapters {
		ch.ResetScenes(true, now)
		if err := tx.Chapters.Update(ctx, ch); err != nil {
			return 0, fmt.Errorf("failed to reset chapter: %w", err)
		}
		if !ch.HasOutline() {
			batch = append(batch, domain.NewOutlineJob(ch, now))
			outlines++
			continue
		}
		for i, stub := range ch.SceneOutline {
			total++
			if stub.Status == domain.SceneStatusDone {
				done++
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
		return 0, ErrNothingToWrite
	}
	if err := tx.Jobs.Enqueue(ctx, batch); err != nil {
		return 0, fmt.Errorf("failed to enqueue jobs: %w", err)
	}

	next := domain.ProjectStatusWriting
	if outlines > 0 {
		next = domain.ProjectStatusGeneratingOutlines
	}
	if err := project.TransitionTo(next, now); err != nil {
		return 0, err
	}
	project.TotalScenes = total
	project.CompletedScenes = done
	project.FailedScenes = 0
	project.CurrentChapterIndex = 0
	project.CurrentSceneIndex = 0
	project.SetError("")
	project.WritingStartedAt = &now
	project.LastProgressAt = nil
	if err := project.Validate(); err != nil {
		return 0, err
	}
	if err := tx.Projects.Update(ctx, project); err != nil {
		return 0, fmt.Errorf("failed to save project: %w", err)
	}
	return len(batch), nil
}

// PauseRun pauses an active run. Pending jobs become paused; a job already
// running finishes normally. It returns the number of jobs paused.
func PauseRun(ctx context.Context, tx store.Stores, project *domain.Project, now time.Time) (int, error) {
	if !project.WritingStatus.IsActive() {
		return 0, fmt.Errorf("%w: cannot pause a run that is %s", domain.ErrInvalidTransition, project.WritingStatus)
	}
	if err := project.TransitionTo(domain.ProjectStatusPaused, now); err != nil {
		return 0, err
	}
	n, err := tx.Jobs.MarkPaused(ctx, project.ID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to pause jobs: %w", err)
	}
	if err := tx.Projects.Update(ctx, project); err != nil {
		return 0, fmt.Errorf("failed to save project: %w", err)
	}
	return n, nil
}

// ResumeRun continues a paused or failed run in the phase its queue is in.
// Paused jobs become pending and every pending job is due now. The stall
// clock restarts. It returns the number of jobs resumed.
func ResumeRun(ctx context.Context, tx store.Stores, project *domain.Project, now time.Time) (int, error) {
	if project.WritingStatus != domain.ProjectStatusPaused && project.WritingStatus != domain.ProjectStatusFailed {
		return 0, fmt.Errorf("%w: cannot resume a run that is %s", domain.ErrInvalidTransition, project.WritingStatus)
	}
	counts, err := tx.Jobs.Counts(ctx, project.ID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	next := domain.ProjectStatusWriting
	if counts.Outlines > 0 {
		next = domain.ProjectStatusGeneratingOutlines
	}
	if err := project.TransitionTo(next, now); err != nil {
		return 0, err
	}
	n, err := rearm(ctx, tx, project, now)
	if err != nil {
		return 0, err
	}
	project.SetError("")
	project.LastProgressAt = &now
	if err := tx.Projects.Update(ctx, project); err != nil {
		return 0, fmt.Errorf("failed to save project: %w", err)
	}
	return n, nil
}

// RearmRun makes every queued job of an active run due now without a
// status change. A paused or failed run is resumed instead.
func RearmRun(ctx context.Context, tx store.Stores, project *domain.Project, now time.Time) (int, error) {
	if !project.WritingStatus.IsActive() {
		return ResumeRun(ctx, tx, project, now)
	}
	n, err := rearm(ctx, tx, project, now)
	if err != nil {
		return 0, err
	}
	project.UpdatedAt = now
	if err := tx.Projects.Update(ctx, project); err != nil {
		return 0, fmt.Errorf("failed to save project: %w", err)
	}
	return n, nil
}

func rearm(ctx context.Context, tx store.Stores, project *domain.Project, now time.Time) (int, error) {
	rearmed, err := tx.Jobs.Rearm(ctx, project.ID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to rearm jobs: %w", err)
	}
	resumed, err := tx.Jobs.ResumePaused(ctx, project.ID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to resume jobs: %w", err)
	}
	return rearmed + resumed, nil
}

// CancelRun stops the run: all jobs are deleted, every stub goes back to
// pending, counters are cleared and the project returns to idle with the
// stop message as its error. Chapter prose already written is kept. It
// returns the number of jobs deleted.
func CancelRun(ctx context.Context, tx store.Stores, project *domain.Project, now time.Time) (int, error) {
	n, err := tx.Jobs.DeleteAll(ctx, project.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs: %w", err)
	}
	chapters, err := tx.Chapters.ListByProject(ctx, project.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list chapters: %w", err)
	}
	for _, ch := range chapters {
		ch.ResetScenes(false, now)
		if err := tx.Chapters.Update(ctx, ch); err != nil {
			return 0, fmt.Errorf("failed to reset chapter: %w", err)
		}
	}

	if err := project.TransitionTo(domain.ProjectStatusIdle, now); err != nil {
		return 0, err
	}
	project.TotalScenes = 0
	project.CompletedScenes = 0
	project.FailedScenes = 0
	project.CurrentChapterIndex = 0
	project.CurrentSceneIndex = 0
	project.WritingCompletedAt = nil
	project.SetError(domain.StoppedByUserMessage)
	if err := tx.Projects.Update(ctx, project); err != nil {
		return 0, fmt.Errorf("failed to save project: %w", err)
	}
	return n, nil
}
