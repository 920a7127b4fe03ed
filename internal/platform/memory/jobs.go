package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
)

// JobStore implements store.JobStore.
type JobStore struct{ s *Store }

var _ store.JobStore = (*JobStore)(nil)

// Enqueue implements store.JobStore.
func (j *JobStore) Enqueue(ctx context.Context, jobs []*domain.WritingJob) error {
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	for _, job := range jobs {
		if _, ok := j.s.data.jobs[job.ID]; ok {
			return store.ErrDuplicate
		}
	}
	for _, job := range jobs {
		j.s.data.jobs[job.ID] = cloneJob(job)
	}
	return nil
}

// ClaimNext implements store.JobStore.
func (j *JobStore) ClaimNext(
	ctx context.Context,
	projectID, owner uuid.UUID,
	lease time.Duration,
	now time.Time,
	filter store.ClaimFilter,
) (*domain.WritingJob, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	outlinesOutstanding := false
	var candidates []*domain.WritingJob
	for _, job := range j.s.data.jobs {
		if job.ProjectID != projectID {
			continue
		}
		if leaseLive(job, now) {
			return nil, nil
		}
		if job.JobType == domain.JobTypeGenerateOutline && job.Status.IsOutstanding() {
			outlinesOutstanding = true
		}
		if filter.JobType != "" && job.JobType != filter.JobType {
			continue
		}
		if claimable(job, now) {
			candidates = append(candidates, job)
		}
	}

	sortJobs(candidates)
	for _, job := range candidates {
		if job.JobType == domain.JobTypeWriteScene && outlinesOutstanding {
			continue
		}
		expires := now.Add(lease)
		o := owner
		job.Status = domain.JobStatusProcessing
		job.LeaseOwner = &o
		job.LeaseExpiresAt = &expires
		job.UpdatedAt = now
		return cloneJob(job), nil
	}
	return nil, nil
}

func leaseLive(job *domain.WritingJob, now time.Time) bool {
	return job.Status == domain.JobStatusProcessing &&
		job.LeaseExpiresAt != nil && job.LeaseExpiresAt.After(now)
}

func claimable(job *domain.WritingJob, now time.Time) bool {
	switch job.Status {
	case domain.JobStatusPending:
		return !job.NextRetryAt.After(now)
	case domain.JobStatusProcessing:
		return !leaseLive(job, now)
	default:
		return false
	}
}

// LockLeased implements store.JobStore.
func (j *JobStore) LockLeased(ctx context.Context, jobID, owner uuid.UUID) (*domain.WritingJob, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	job, ok := j.s.data.jobs[jobID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing || job.LeaseOwner == nil || *job.LeaseOwner != owner {
		return nil, store.ErrLeaseLost
	}
	return cloneJob(job), nil
}

// MarkDone implements store.JobStore.
func (j *JobStore) MarkDone(ctx context.Context, jobID uuid.UUID) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	if _, ok := j.s.data.jobs[jobID]; !ok {
		return store.ErrJobNotFound
	}
	delete(j.s.data.jobs, jobID)
	return nil
}

// MarkFailed implements store.JobStore.
func (j *JobStore) MarkFailed(ctx context.Context, jobID uuid.UUID, reason string, now time.Time) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	job, ok := j.s.data.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if err := job.TransitionTo(domain.JobStatusFailed, now); err != nil {
		return err
	}
	job.LastError = &reason
	return nil
}

// Release implements store.JobStore.
func (j *JobStore) Release(ctx context.Context, job *domain.WritingJob) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	current, ok := j.s.data.jobs[job.ID]
	if !ok {
		return store.ErrJobNotFound
	}
	current.Status = job.Status
	current.AttemptCount = job.AttemptCount
	current.RecoveryCount = job.RecoveryCount
	current.NextRetryAt = job.NextRetryAt
	current.LastError = clonePtr(job.LastError)
	current.LeaseOwner = nil
	current.LeaseExpiresAt = nil
	current.UpdatedAt = job.UpdatedAt
	return nil
}

func (j *JobStore) setStatus(projectID uuid.UUID, from, to domain.JobStatus, now time.Time) int {
	n := 0
	for _, job := range j.s.data.jobs {
		if job.ProjectID == projectID && job.Status == from {
			job.Status = to
			if to == domain.JobStatusPending {
				job.NextRetryAt = now
			}
			job.UpdatedAt = now
			n++
		}
	}
	return n
}

// MarkPaused implements store.JobStore.
func (j *JobStore) MarkPaused(ctx context.Context, projectID uuid.UUID, now time.Time) (int, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	return j.setStatus(projectID, domain.JobStatusPending, domain.JobStatusPaused, now), nil
}

// ResumePaused implements store.JobStore.
func (j *JobStore) ResumePaused(ctx context.Context, projectID uuid.UUID, now time.Time) (int, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	return j.setStatus(projectID, domain.JobStatusPaused, domain.JobStatusPending, now), nil
}

// Rearm implements store.JobStore.
func (j *JobStore) Rearm(ctx context.Context, projectID uuid.UUID, now time.Time) (int, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	return j.setStatus(projectID, domain.JobStatusPending, domain.JobStatusPending, now), nil
}

// DeleteAll implements store.JobStore.
func (j *JobStore) DeleteAll(ctx context.Context, projectID uuid.UUID) (int, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	n := 0
	for id, job := range j.s.data.jobs {
		if job.ProjectID == projectID {
			delete(j.s.data.jobs, id)
			n++
		}
	}
	return n, nil
}

// Counts implements store.JobStore.
func (j *JobStore) Counts(ctx context.Context, projectID uuid.UUID, now time.Time) (domain.JobCounts, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	var c domain.JobCounts
	for _, job := range j.s.data.jobs {
		if job.ProjectID != projectID {
			continue
		}
		switch job.Status {
		case domain.JobStatusPending:
			c.Pending++
			if job.NextRetryAt.After(now) {
				c.Delayed++
			}
		case domain.JobStatusProcessing:
			c.Processing++
		case domain.JobStatusPaused:
			c.Paused++
		case domain.JobStatusFailed:
			c.Failed++
		}
		if job.Status.IsOutstanding() {
			if job.JobType == domain.JobTypeGenerateOutline {
				c.Outlines++
			} else {
				c.Scenes++
			}
		}
	}
	return c, nil
}

// ListByProject implements store.JobStore.
func (j *JobStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.WritingJob, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	var out []*domain.WritingJob
	for _, job := range j.s.data.jobs {
		if job.ProjectID == projectID {
			out = append(out, cloneJob(job))
		}
	}
	sortJobs(out)
	return out, nil
}

// RequeueExpiredLeases implements store.JobStore.
func (j *JobStore) RequeueExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	n := 0
	for _, job := range j.s.data.jobs {
		if job.Status != domain.JobStatusProcessing || leaseLive(job, now) {
			continue
		}
		next := domain.JobStatusPending
		if p, ok := j.s.data.projects[job.ProjectID]; ok && p.WritingStatus == domain.ProjectStatusPaused {
			next = domain.JobStatusPaused
		}
		job.Status = next
		job.NextRetryAt = now
		job.LeaseOwner = nil
		job.LeaseExpiresAt = nil
		job.UpdatedAt = now
		n++
	}
	return n, nil
}
