package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/generation"
)

// MockGenerator implements generation.Generator for testing
type MockGenerator struct {
	// GenerateOutlineFn allows test cases to mock the GenerateOutline behavior
	GenerateOutlineFn func(ctx context.Context, req generation.OutlineRequest) ([]domain.SceneStub, error)

	// GenerateSceneFn allows test cases to mock the GenerateScene behavior
	GenerateSceneFn func(ctx context.Context, req generation.SceneRequest) (string, error)

	// Default response values
	Scenes []domain.SceneStub
	Prose  string
	Err    error

	mu           sync.Mutex
	outlineCalls []generation.OutlineRequest
	sceneCalls   []generation.SceneRequest
}

var _ generation.Generator = (*MockGenerator)(nil)

// GenerateOutline implements the generation.Generator interface
func (m *MockGenerator) GenerateOutline(
	ctx context.Context,
	req generation.OutlineRequest,
) ([]domain.SceneStub, error) {
	m.mu.Lock()
	m.outlineCalls = append(m.outlineCalls, req)
	m.mu.Unlock()

	if m.GenerateOutlineFn != nil {
		return m.GenerateOutlineFn(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]domain.SceneStub, len(m.Scenes))
	copy(out, m.Scenes)
	return out, nil
}

// GenerateScene implements the generation.Generator interface
func (m *MockGenerator) GenerateScene(ctx context.Context, req generation.SceneRequest) (string, error) {
	m.mu.Lock()
	m.sceneCalls = append(m.sceneCalls, req)
	m.mu.Unlock()

	if m.GenerateSceneFn != nil {
		return m.GenerateSceneFn(ctx, req)
	}
	return m.Prose, m.Err
}

// OutlineCalls returns the outline requests received so far.
func (m *MockGenerator) OutlineCalls() []generation.OutlineRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generation.OutlineRequest(nil), m.outlineCalls...)
}

// SceneCalls returns the scene requests received so far.
func (m *MockGenerator) SceneCalls() []generation.SceneRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generation.SceneRequest(nil), m.sceneCalls...)
}

// Reset resets the call tracking state
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outlineCalls = nil
	m.sceneCalls = nil
}

// NewMockGeneratorWithScenes creates a MockGenerator whose outlines contain
// the given scene titles and whose scenes return prose.
func NewMockGeneratorWithScenes(prose string, titles ...string) *MockGenerator {
	scenes := make([]domain.SceneStub, len(titles))
	for i, title := range titles {
		scenes[i] = domain.SceneStub{
			SceneNumber: i + 1,
			Title:       title,
			Status:      domain.SceneStatusPending,
		}
	}
	return &MockGenerator{Scenes: scenes, Prose: prose}
}

// NewMockGeneratorWithError creates a MockGenerator that returns the specified error
func NewMockGeneratorWithError(err error) *MockGenerator {
	return &MockGenerator{Err: err}
}

// MockGeneratorWithTransientFailure creates a MockGenerator that simulates a transient failure
func MockGeneratorWithTransientFailure() *MockGenerator {
	return &MockGenerator{Err: generation.ErrTransientFailure}
}

// MockGeneratorWithContentBlocked creates a MockGenerator that simulates content being blocked
func MockGeneratorWithContentBlocked() *MockGenerator {
	return &MockGenerator{Err: generation.ErrContentBlocked}
}
