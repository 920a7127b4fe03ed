package writing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/generation"
)

// SceneWorker turns a write_scene job into prose appended to its chapter.
type SceneWorker struct {
	gen    generation.Generator
	r      *committer
	logger *slog.Logger
}

// Process runs one claimed scene job to a resolution. Only infrastructure
// errors are returned.
func (w *SceneWorker) Process(ctx context.Context, c *claim) (Outcome, error) {
	log := w.logger.With(
		slog.String("project_id", c.job.ProjectID.String()),
		slog.String("job_id", c.job.ID.String()),
		slog.String("job_type", string(c.job.JobType)),
		slog.Int("attempt", c.job.AttemptCount+1),
		slog.Int("scene_index", c.sceneIndex()))

	if err := w.r.checkCredits(ctx, c, w.r.cfg.SceneCreditCost); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			log.Warn("cannot afford scene, blocking run", slog.String("error", err.Error()))
			return w.r.release(ctx, c, err)
		}
		return "", err
	}

	req, err := sceneRequest(c, w.r.cfg.PrecedingContextChars)
	if err != nil {
		return w.r.fail(ctx, c, err)
	}
	text, err := w.gen.GenerateScene(ctx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = generation.ErrInvalidResponse
	}
	w.r.metrics.GenerationCall("scene", generationResult(err))
	if err != nil {
		log.Warn("scene generation failed", slog.String("error", err.Error()))
		return w.r.fail(ctx, c, err)
	}

	log.Info("scene written", slog.Int("words", domain.CountWords(text)))
	return w.r.commitScene(ctx, c, text)
}

func sceneRequest(c *claim, contextChars int) (generation.SceneRequest, error) {
	stub, err := c.chapter.Scene(c.sceneIndex())
	if err != nil {
		return generation.SceneRequest{}, err
	}
	return generation.SceneRequest{
		ProjectTitle:   c.project.Title,
		Premise:        c.project.Premise,
		Genre:          c.project.Genre,
		ChapterTitle:   c.chapter.Title,
		ChapterSummary: c.chapter.Summary,
		ChapterNumber:  c.chapterIndex + 1,
		Scene:          stub,
		SceneCount:     len(c.chapter.SceneOutline),
		PrecedingText:  tail(c.chapter.Text(), contextChars),
	}, nil
}

// tail returns at most n bytes from the end of s without splitting a rune.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
