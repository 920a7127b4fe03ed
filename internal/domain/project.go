package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProjectStatus is the externally visible state of a project's writing run.
type ProjectStatus string

// Possible project status values
const (
	ProjectStatusIdle               ProjectStatus = "idle"
	ProjectStatusQueued             ProjectStatus = "queued"
	ProjectStatusGeneratingOutlines ProjectStatus = "generating_outlines"
	ProjectStatusWriting            ProjectStatus = "writing"
	ProjectStatusPaused             ProjectStatus = "paused"
	ProjectStatusCompleted          ProjectStatus = "completed"
	ProjectStatusFailed             ProjectStatus = "failed"
)

// StoppedByUserMessage is recorded as the writing error when a run is cancelled.
const StoppedByUserMessage = "stopped by user"

// Common validation errors for Project
var (
	ErrEmptyProjectID       = errors.New("project ID cannot be empty")
	ErrEmptyProjectUserID   = errors.New("project user ID cannot be empty")
	ErrInvalidProjectStatus = errors.New("invalid project status")
	ErrSceneCountsExceeded  = errors.New("completed and failed scenes exceed total scenes")
	ErrNegativeSceneCount   = errors.New("scene counters cannot be negative")
)

// projectTransitions is the closed transition table for ProjectStatus.
// Cancel (any state to idle) is handled here as well.
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectStatusIdle: {
		ProjectStatusQueued, ProjectStatusGeneratingOutlines, ProjectStatusWriting, ProjectStatusIdle,
	},
	ProjectStatusQueued: {
		ProjectStatusGeneratingOutlines, ProjectStatusWriting, ProjectStatusPaused,
		ProjectStatusFailed, ProjectStatusIdle,
	},
	ProjectStatusGeneratingOutlines: {
		ProjectStatusWriting, ProjectStatusPaused, ProjectStatusCompleted,
		ProjectStatusFailed, ProjectStatusIdle,
	},
	ProjectStatusWriting: {
		ProjectStatusCompleted, ProjectStatusPaused, ProjectStatusFailed, ProjectStatusIdle,
	},
	ProjectStatusPaused: {
		ProjectStatusGeneratingOutlines, ProjectStatusWriting, ProjectStatusIdle,
	},
	ProjectStatusCompleted: {
		ProjectStatusGeneratingOutlines, ProjectStatusWriting, ProjectStatusIdle,
	},
	ProjectStatusFailed: {
		ProjectStatusGeneratingOutlines, ProjectStatusWriting, ProjectStatusIdle,
	},
}

// Valid reports whether s is one of the known statuses.
func (s ProjectStatus) Valid() bool {
	_, ok := projectTransitions[s]
	return ok
}

// IsActive reports whether a run in this status should be advanced by the driver.
func (s ProjectStatus) IsActive() bool {
	switch s {
	case ProjectStatusQueued, ProjectStatusGeneratingOutlines, ProjectStatusWriting:
		return true
	default:
		return false
	}
}

// CanStart reports whether a new run may be started from this status.
func (s ProjectStatus) CanStart() bool {
	switch s {
	case ProjectStatusIdle, ProjectStatusCompleted, ProjectStatusFailed, ProjectStatusPaused:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is reachable from s.
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	for _, allowed := range projectTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ActiveStatuses lists the statuses the driver advances.
func ActiveStatuses() []ProjectStatus {
	return []ProjectStatus{
		ProjectStatusQueued,
		ProjectStatusGeneratingOutlines,
		ProjectStatusWriting,
	}
}

// Project is one book and the state of its writing run.
type Project struct {
	ID                  uuid.UUID     `json:"id"`
	UserID              uuid.UUID     `json:"user_id"`
	Title               string        `json:"title"`
	Premise             string        `json:"premise"`
	Genre               string        `json:"genre"`
	WritingStatus       ProjectStatus `json:"writing_status"`
	TotalScenes         int           `json:"total_scenes"`
	CompletedScenes     int           `json:"completed_scenes"`
	FailedScenes        int           `json:"failed_scenes"`
	CurrentChapterIndex int           `json:"current_chapter_index"`
	CurrentSceneIndex   int           `json:"current_scene_index"`
	WordCount           int           `json:"word_count"`
	TargetWordCount     int           `json:"target_word_count"`
	WritingError        *string       `json:"writing_error,omitempty"`
	WritingStartedAt    *time.Time    `json:"writing_started_at,omitempty"`
	WritingCompletedAt  *time.Time    `json:"writing_completed_at,omitempty"`
	LastProgressAt      *time.Time    `json:"last_progress_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// NewProject creates an idle project owned by userID.
func NewProject(userID uuid.UUID, title, premise string, targetWordCount int) (*Project, error) {
	now := time.Now().UTC()
	p := &Project{
		ID:              uuid.New(),
		UserID:          userID,
		Title:           title,
		Premise:         premise,
		WritingStatus:   ProjectStatusIdle,
		TargetWordCount: targetWordCount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// Validate checks identity, status and the scene counter invariant.
func (p *Project) Validate() error {
	if p.ID == uuid.Nil {
		return ErrEmptyProjectID
	}

	if p.UserID == uuid.Nil {
		return ErrEmptyProjectUserID
	}

	if !p.WritingStatus.Valid() {
		return ErrInvalidProjectStatus
	}

	if p.TotalScenes < 0 || p.CompletedScenes < 0 || p.FailedScenes < 0 {
		return ErrNegativeSceneCount
	}

	if p.CompletedScenes+p.FailedScenes > p.TotalScenes {
		return ErrSceneCountsExceeded
	}

	return nil
}

// TransitionTo moves the project to next, stamping run timestamps.
// Returns ErrInvalidTransition if the table does not allow the move.
func (p *Project) TransitionTo(next ProjectStatus, now time.Time) error {
	if !p.WritingStatus.CanTransitionTo(next) {
		return fmt.Errorf("%w: project %s -> %s", ErrInvalidTransition, p.WritingStatus, next)
	}

	switch next {
	case ProjectStatusCompleted:
		p.WritingCompletedAt = &now
	case ProjectStatusGeneratingOutlines, ProjectStatusWriting:
		if !p.WritingStatus.IsActive() {
			p.WritingCompletedAt = nil
		}
	}

	p.WritingStatus = next
	p.UpdatedAt = now
	return nil
}

// Fail moves the project to failed with msg as the writing error.
func (p *Project) Fail(msg string, now time.Time) error {
	if err := p.TransitionTo(ProjectStatusFailed, now); err != nil {
		return err
	}
	p.WritingError = &msg
	return nil
}

// SetError records msg as the writing error; an empty msg clears it.
func (p *Project) SetError(msg string) {
	if msg == "" {
		p.WritingError = nil
		return
	}
	p.WritingError = &msg
}

// AddScenes grows total_scenes by n. n must not be negative.
func (p *Project) AddScenes(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: cannot remove %d scenes during a run", ErrNegativeSceneCount, -n)
	}
	p.TotalScenes += n
	return nil
}

// RecordSceneDone counts one written scene.
func (p *Project) RecordSceneDone(now time.Time) error {
	p.CompletedScenes++
	p.LastProgressAt = &now
	return p.Validate()
}

// RecordSceneFailed counts one scene that failed for a content reason.
func (p *Project) RecordSceneFailed(now time.Time) error {
	p.FailedScenes++
	p.LastProgressAt = &now
	return p.Validate()
}

// Touch marks that the run made progress.
func (p *Project) Touch(now time.Time) {
	p.LastProgressAt = &now
	p.UpdatedAt = now
}

// StalledSince reports whether no progress has been recorded within timeout.
func (p *Project) StalledSince(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	last := p.LastProgressAt
	if last == nil {
		last = p.WritingStartedAt
	}
	if last == nil {
		return false
	}
	return now.Sub(*last) >= timeout
}
