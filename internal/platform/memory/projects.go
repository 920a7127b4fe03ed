package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
)

// ProjectStore implements store.ProjectStore.
type ProjectStore struct{ s *Store }

var _ store.ProjectStore = (*ProjectStore)(nil)

// Create inserts a project.
func (p *ProjectStore) Create(ctx context.Context, project *domain.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.data.projects[project.ID]; ok {
		return store.ErrDuplicate
	}
	p.s.data.projects[project.ID] = cloneProject(project)
	return nil
}

// GetByID implements store.ProjectStore.
func (p *ProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	project, ok := p.s.data.projects[id]
	if !ok {
		return nil, store.ErrProjectNotFound
	}
	return cloneProject(project), nil
}

// GetForUpdate implements store.ProjectStore.
func (p *ProjectStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return p.GetByID(ctx, id)
}

// Update implements store.ProjectStore.
func (p *ProjectStore) Update(ctx context.Context, project *domain.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.data.projects[project.ID]; !ok {
		return store.ErrProjectNotFound
	}
	p.s.data.projects[project.ID] = cloneProject(project)
	return nil
}

// ListByStatus implements store.ProjectStore.
func (p *ProjectStore) ListByStatus(
	ctx context.Context,
	statuses ...domain.ProjectStatus,
) ([]*domain.Project, error) {
	want := make(map[domain.ProjectStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var out []*domain.Project
	for _, project := range p.s.data.projects {
		if want[project.WritingStatus] {
			out = append(out, cloneProject(project))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}
