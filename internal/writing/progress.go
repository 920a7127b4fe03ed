package writing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
)

// Progress is the read model of a project's writing run. It is recomputed
// from chapters and the job queue on every read.
type Progress struct {
	ProjectID uuid.UUID            `json:"project_id"`
	Status    domain.ProjectStatus `json:"status"`
	Error     *string              `json:"error,omitempty"`

	// Counters stored on the project.
	TotalScenes     int `json:"total_scenes"`
	CompletedScenes int `json:"completed_scenes"`
	FailedScenes    int `json:"failed_scenes"`

	// Counts derived from the scene stubs.
	Scenes SceneTally `json:"scenes"`

	// EstimatedTotal counts real stubs plus a placeholder for each chapter
	// still waiting for its outline.
	EstimatedTotal   int `json:"estimated_total"`
	ChapterCount     int `json:"chapter_count"`
	ChaptersOutlined int `json:"chapters_outlined"`

	CurrentChapterIndex int    `json:"current_chapter_index"`
	CurrentSceneIndex   int    `json:"current_scene_index"`
	CurrentChapterTitle string `json:"current_chapter_title,omitempty"`
	CurrentSceneTitle   string `json:"current_scene_title,omitempty"`

	WordCount       int `json:"word_count"`
	TargetWordCount int `json:"target_word_count"`

	Jobs domain.JobCounts `json:"jobs"`

	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	LastProgressAt *time.Time `json:"last_progress_at,omitempty"`
}

// SceneTally counts stubs by status.
type SceneTally struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Writing   int `json:"writing"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Aggregate builds the progress of project from its ordered chapters and
// queue counts.
func Aggregate(
	project *domain.Project,
	chapters []*domain.Chapter,
	counts domain.JobCounts,
	placeholderPerChapter int,
) *Progress {
	p := &Progress{
		ProjectID:           project.ID,
		Status:              project.WritingStatus,
		Error:               project.WritingError,
		TotalScenes:         project.TotalScenes,
		CompletedScenes:     project.CompletedScenes,
		FailedScenes:        project.FailedScenes,
		ChapterCount:        len(chapters),
		CurrentChapterIndex: project.CurrentChapterIndex,
		CurrentSceneIndex:   project.CurrentSceneIndex,
		WordCount:           project.WordCount,
		TargetWordCount:     project.TargetWordCount,
		Jobs:                counts,
		StartedAt:           project.WritingStartedAt,
		CompletedAt:         project.WritingCompletedAt,
		LastProgressAt:      project.LastProgressAt,
	}

	// The scene being written wins over the first pending one.
	writing, pending := [2]int{-1, -1}, [2]int{-1, -1}
	for ci, ch := range chapters {
		if ch.OutlineResolved() {
			p.ChaptersOutlined++
		} else {
			p.EstimatedTotal += placeholderPerChapter
		}
		for si, s := range ch.SceneOutline {
			p.Scenes.Total++
			switch s.Status {
			case domain.SceneStatusPending:
				p.Scenes.Pending++
				if pending[0] < 0 {
					pending = [2]int{ci, si}
				}
			case domain.SceneStatusWriting:
				p.Scenes.Writing++
				if writing[0] < 0 {
					writing = [2]int{ci, si}
				}
			case domain.SceneStatusDone:
				p.Scenes.Completed++
			case domain.SceneStatusFailed:
				p.Scenes.Failed++
			case domain.SceneStatusSkipped:
				p.Scenes.Skipped++
			}
		}
	}
	p.EstimatedTotal += p.Scenes.Total

	curChapter, curScene := project.CurrentChapterIndex, project.CurrentSceneIndex
	switch {
	case writing[0] >= 0:
		curChapter, curScene = writing[0], writing[1]
	case pending[0] >= 0:
		curChapter, curScene = pending[0], pending[1]
	}
	if curChapter >= 0 && curChapter < len(chapters) {
		ch := chapters[curChapter]
		p.CurrentChapterIndex = curChapter
		p.CurrentChapterTitle = ch.Title
		if curScene >= 0 && curScene < len(ch.SceneOutline) {
			p.CurrentSceneIndex = curScene
			p.CurrentSceneTitle = ch.SceneOutline[curScene].Title
		}
	}
	return p
}

// LoadProgress reads what Aggregate needs from s.
func LoadProgress(
	ctx context.Context,
	s store.Stores,
	project *domain.Project,
	now time.Time,
	placeholderPerChapter int,
) (*Progress, error) {
	chapters, err := s.Chapters.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	counts, err := s.Jobs.Counts(ctx, project.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	return Aggregate(project, chapters, counts, placeholderPerChapter), nil
}
