package writing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/generation"
)

// OutlineWorker turns a generate_outline job into the chapter's scene stubs.
type OutlineWorker struct {
	gen    generation.Generator
	r      *committer
	logger *slog.Logger
}

// Process runs one claimed outline job to a resolution. Only
// infrastructure errors are returned.
func (w *OutlineWorker) Process(ctx context.Context, c *claim) (Outcome, error) {
	log := w.logger.With(
		slog.String("project_id", c.job.ProjectID.String()),
		slog.String("job_id", c.job.ID.String()),
		slog.String("job_type", string(c.job.JobType)),
		slog.Int("attempt", c.job.AttemptCount+1),
		slog.String("chapter", c.chapter.Title))

	if err := w.r.checkCredits(ctx, c, w.r.cfg.OutlineCreditCost); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			log.Warn("cannot afford outline, blocking run", slog.String("error", err.Error()))
			return w.r.release(ctx, c, err)
		}
		return "", err
	}

	stubs, err := w.gen.GenerateOutline(ctx, outlineRequest(c))
	w.r.metrics.GenerationCall("outline", generationResult(err))
	if err != nil {
		log.Warn("outline generation failed", slog.String("error", err.Error()))
		return w.r.fail(ctx, c, err)
	}
	if len(stubs) == 0 {
		return w.r.fail(ctx, c, generation.ErrInvalidResponse)
	}

	log.Info("outline generated", slog.Int("scenes", len(stubs)))
	return w.r.commitOutline(ctx, c, stubs)
}

func outlineRequest(c *claim) generation.OutlineRequest {
	previous := make([]string, 0, c.chapterIndex)
	for _, ch := range c.chapters[:c.chapterIndex] {
		previous = append(previous, ch.Title)
	}
	return generation.OutlineRequest{
		ProjectTitle:     c.project.Title,
		Premise:          c.project.Premise,
		Genre:            c.project.Genre,
		ChapterTitle:     c.chapter.Title,
		ChapterSummary:   c.chapter.Summary,
		ChapterNumber:    c.chapterIndex + 1,
		ChapterCount:     len(c.chapters),
		TargetWordCount:  chapterTarget(c.project, len(c.chapters)),
		PreviousChapters: previous,
	}
}

// chapterTarget splits the project's word target evenly across chapters.
func chapterTarget(project *domain.Project, chapters int) int {
	if chapters == 0 || project.TargetWordCount <= 0 {
		return 0
	}
	return project.TargetWordCount / chapters
}

// generationResult labels a generation call for metrics.
func generationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case generation.IsContentFailure(err):
		return "content_failure"
	default:
		return "transient"
	}
}
