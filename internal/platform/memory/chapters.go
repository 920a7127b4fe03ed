package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
)

// ChapterStore implements store.ChapterStore.
type ChapterStore struct{ s *Store }

var _ store.ChapterStore = (*ChapterStore)(nil)

// Create inserts a chapter.
func (c *ChapterStore) Create(ctx context.Context, chapter *domain.Chapter) error {
	if err := chapter.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.data.projects[chapter.ProjectID]; !ok {
		return store.ErrProjectNotFound
	}
	c.s.data.chapters[chapter.ID] = cloneChapter(chapter)
	return nil
}

// Delete removes a chapter.
func (c *ChapterStore) Delete(ctx context.Context, id uuid.UUID) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.data.chapters[id]; !ok {
		return store.ErrChapterNotFound
	}
	delete(c.s.data.chapters, id)
	return nil
}

// GetByID implements store.ChapterStore.
func (c *ChapterStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Chapter, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	chapter, ok := c.s.data.chapters[id]
	if !ok {
		return nil, store.ErrChapterNotFound
	}
	return cloneChapter(chapter), nil
}

// GetForUpdate implements store.ChapterStore.
func (c *ChapterStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Chapter, error) {
	return c.GetByID(ctx, id)
}

// ListByProject implements store.ChapterStore.
func (c *ChapterStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Chapter, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var out []*domain.Chapter
	for _, chapter := range c.s.data.chapters {
		if chapter.ProjectID == projectID {
			out = append(out, cloneChapter(chapter))
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].SortOrder < out[k].SortOrder })
	return out, nil
}

// Update implements store.ChapterStore.
func (c *ChapterStore) Update(ctx context.Context, chapter *domain.Chapter) error {
	if err := chapter.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.data.chapters[chapter.ID]; !ok {
		return store.ErrChapterNotFound
	}
	c.s.data.chapters[chapter.ID] = cloneChapter(chapter)
	return nil
}
