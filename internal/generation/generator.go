package generation

import (
	"context"

	"github.com/phrazzld/scribe-api/internal/domain"
)

// Generator is the AI capability used by the outline and scene workers.
// Implementations classify failures with the errors in this package; any
// error that is not a content failure is treated as transient.
type Generator interface {
	// GenerateOutline expands one chapter into an ordered list of scene stubs.
	GenerateOutline(ctx context.Context, req OutlineRequest) ([]domain.SceneStub, error)

	// GenerateScene writes the prose for one scene.
	GenerateScene(ctx context.Context, req SceneRequest) (string, error)
}

// OutlineRequest carries the context for outlining a chapter.
type OutlineRequest struct {
	ProjectTitle    string
	Premise         string
	Genre           string
	ChapterTitle    string
	ChapterSummary  string
	ChapterNumber   int
	ChapterCount    int
	TargetWordCount int
	// PreviousChapters lists the titles of the chapters before this one.
	PreviousChapters []string
}

// SceneRequest carries the context for writing a scene.
type SceneRequest struct {
	ProjectTitle   string
	Premise        string
	Genre          string
	ChapterTitle   string
	ChapterSummary string
	ChapterNumber  int
	Scene          domain.SceneStub
	SceneCount     int
	// PrecedingText is the tail of the chapter written so far.
	PrecedingText string
}
