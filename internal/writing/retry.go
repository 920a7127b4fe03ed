package writing

import (
	"time"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/redact"
)

// Decision is what the retry policy did with a failed job.
type Decision int

const (
	// Retry returns the job to pending, due immediately.
	Retry Decision = iota
	// Recover parks the job until the recovery delay has passed and starts
	// a fresh round of attempts.
	Recover
)

func (d Decision) String() string {
	if d == Recover {
		return "recovering"
	}
	return "retry"
}

// Policy turns transient failures into scheduled re-attempts. A job is
// never marked failed for a transient cause.
type Policy struct {
	MaxRetries    int
	RecoveryDelay time.Duration
}

// Apply records cause on job and reschedules it. The job is left pending
// with its lease cleared; callers persist it with JobStore.Release.
func (p Policy) Apply(job *domain.WritingJob, cause error, now time.Time) Decision {
	msg := redact.Reason(cause)
	job.LastError = &msg
	job.Status = domain.JobStatusPending
	job.LeaseOwner = nil
	job.LeaseExpiresAt = nil
	job.UpdatedAt = now
	job.AttemptCount++

	if p.MaxRetries > 0 && job.AttemptCount >= p.MaxRetries {
		job.AttemptCount = 0
		job.RecoveryCount++
		job.NextRetryAt = now.Add(p.RecoveryDelay)
		return Recover
	}
	job.NextRetryAt = now
	return Retry
}
