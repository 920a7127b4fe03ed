package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType identifies the worker that handles a WritingJob.
type JobType string

// Possible job types
const (
	JobTypeGenerateOutline JobType = "generate_outline"
	JobTypeWriteScene      JobType = "write_scene"
)

// JobStatus is the queue state of a WritingJob.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusPaused     JobStatus = "paused"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// Queue priorities. Every outline job outranks every scene job.
const (
	PriorityOutline = 10
	PriorityScene   = 5
)

// sceneSortStride leaves room for the scenes of one chapter between two chapter sort orders.
const sceneSortStride = 1000

// Common validation errors for WritingJob
var (
	ErrEmptyJobID          = errors.New("job ID cannot be empty")
	ErrEmptyJobProjectID   = errors.New("job project ID cannot be empty")
	ErrEmptyJobChapterID   = errors.New("job chapter ID cannot be empty")
	ErrInvalidJobType      = errors.New("invalid job type")
	ErrInvalidJobStatus    = errors.New("invalid job status")
	ErrMissingSceneIndex   = errors.New("scene job requires a scene index and snapshot")
	ErrUnexpectedSceneData = errors.New("outline job cannot carry scene data")
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusPaused},
	JobStatusProcessing: {JobStatusPending, JobStatusPaused, JobStatusDone, JobStatusFailed},
	JobStatusPaused:     {JobStatusPending},
	JobStatusDone:       nil,
	JobStatusFailed:     nil,
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

// CanTransitionTo reports whether next is reachable from s.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsOutstanding reports whether a job in this status still represents work to do.
func (s JobStatus) IsOutstanding() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusPaused
}

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	return t == JobTypeGenerateOutline || t == JobTypeWriteScene
}

// WritingJob is one unit of queued work for a project.
type WritingJob struct {
	ID             uuid.UUID  `json:"id"`
	ProjectID      uuid.UUID  `json:"project_id"`
	ChapterID      uuid.UUID  `json:"chapter_id"`
	JobType        JobType    `json:"job_type"`
	Status         JobStatus  `json:"status"`
	SceneIndex     *int       `json:"scene_index,omitempty"`
	SceneSnapshot  *SceneStub `json:"scene_snapshot,omitempty"`
	Priority       int        `json:"priority"`
	SortOrder      int        `json:"sort_order"`
	AttemptCount   int        `json:"attempt_count"`
	RecoveryCount  int        `json:"recovery_count"`
	NextRetryAt    time.Time  `json:"next_retry_at"`
	LeaseOwner     *uuid.UUID `json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewOutlineJob creates a pending outline job for chapter.
func NewOutlineJob(chapter *Chapter, now time.Time) *WritingJob {
	return &WritingJob{
		ID:          uuid.New(),
		ProjectID:   chapter.ProjectID,
		ChapterID:   chapter.ID,
		JobType:     JobTypeGenerateOutline,
		Status:      JobStatusPending,
		Priority:    PriorityOutline,
		SortOrder:   chapter.SortOrder,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewSceneJob creates a pending scene job for the stub at index, snapshotting it.
func NewSceneJob(chapter *Chapter, index int, now time.Time) (*WritingJob, error) {
	stub, err := chapter.Scene(index)
	if err != nil {
		return nil, err
	}
	idx := index
	return &WritingJob{
		ID:            uuid.New(),
		ProjectID:     chapter.ProjectID,
		ChapterID:     chapter.ID,
		JobType:       JobTypeWriteScene,
		Status:        JobStatusPending,
		SceneIndex:    &idx,
		SceneSnapshot: &stub,
		Priority:      PriorityScene,
		SortOrder:     SceneSortOrder(chapter.SortOrder, index),
		NextRetryAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SceneSortOrder orders scenes chapter first, then by index within the chapter.
func SceneSortOrder(chapterSortOrder, sceneIndex int) int {
	return chapterSortOrder*sceneSortStride + sceneIndex
}

// Validate checks identity, enums and the shape required by the job type.
func (j *WritingJob) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}
	if j.ProjectID == uuid.Nil {
		return ErrEmptyJobProjectID
	}
	if j.ChapterID == uuid.Nil {
		return ErrEmptyJobChapterID
	}
	if !j.JobType.Valid() {
		return ErrInvalidJobType
	}
	if !j.Status.Valid() {
		return ErrInvalidJobStatus
	}

	switch j.JobType {
	case JobTypeWriteScene:
		if j.SceneIndex == nil || j.SceneSnapshot == nil {
			return ErrMissingSceneIndex
		}
	case JobTypeGenerateOutline:
		if j.SceneIndex != nil || j.SceneSnapshot != nil {
			return ErrUnexpectedSceneData
		}
	}
	return nil
}

// TransitionTo moves the job to next.
func (j *WritingJob) TransitionTo(next JobStatus, now time.Time) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: job %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	j.UpdatedAt = now
	if next != JobStatusProcessing {
		j.LeaseOwner = nil
		j.LeaseExpiresAt = nil
	}
	return nil
}

// Key identifies the piece of work a job covers, independent of the job id.
func (j *WritingJob) Key() JobKey {
	k := JobKey{ChapterID: j.ChapterID, JobType: j.JobType, SceneIndex: -1}
	if j.SceneIndex != nil {
		k.SceneIndex = *j.SceneIndex
	}
	return k
}

// JobKey is a chapter plus an optional scene index.
type JobKey struct {
	ChapterID  uuid.UUID
	JobType    JobType
	SceneIndex int
}

// JobCounts summarises a project's queue by status. Outlines and Scenes count
// outstanding jobs of each type; Delayed counts pending jobs not yet due.
type JobCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Paused     int `json:"paused"`
	Failed     int `json:"failed"`
	Outlines   int `json:"outlines"`
	Scenes     int `json:"scenes"`
	Delayed    int `json:"delayed"`
}

// Active is the number of pending and processing jobs.
func (c JobCounts) Active() int {
	return c.Pending + c.Processing
}

// Outstanding is the number of jobs that still represent work.
func (c JobCounts) Outstanding() int {
	return c.Pending + c.Processing + c.Paused
}
