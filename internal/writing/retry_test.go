package writing

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyApply(t *testing.T) {
	t.Parallel()

	policy := Policy{MaxRetries: 3, RecoveryDelay: 30 * time.Second}
	now := epoch
	owner := uuid.New()
	expires := now.Add(time.Minute)

	tests := []struct {
		name         string
		attempts     int
		recoveries   int
		wantDecision Decision
		wantAttempts int
		wantRecovery int
		wantNext     time.Time
	}{
		{"first failure retries now", 0, 0, Retry, 1, 0, now},
		{"below limit retries now", 1, 0, Retry, 2, 0, now},
		{"limit parks the job", 2, 0, Recover, 0, 1, now.Add(30 * time.Second)},
		{"later recovery round", 2, 4, Recover, 0, 5, now.Add(30 * time.Second)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			job := &domain.WritingJob{
				Status:         domain.JobStatusProcessing,
				AttemptCount:   tc.attempts,
				RecoveryCount:  tc.recoveries,
				LeaseOwner:     &owner,
				LeaseExpiresAt: &expires,
			}

			got := policy.Apply(job, errors.New("rate limited"), now)

			assert.Equal(t, tc.wantDecision, got)
			assert.Equal(t, domain.JobStatusPending, job.Status)
			assert.Equal(t, tc.wantAttempts, job.AttemptCount)
			assert.Equal(t, tc.wantRecovery, job.RecoveryCount)
			assert.Equal(t, tc.wantNext, job.NextRetryAt)
			assert.Nil(t, job.LeaseOwner)
			assert.Nil(t, job.LeaseExpiresAt)
			require.NotNil(t, job.LastError)
			assert.Equal(t, "rate limited", *job.LastError)
		})
	}
}

func TestPolicyNeverGivesUp(t *testing.T) {
	t.Parallel()

	policy := Policy{MaxRetries: 10, RecoveryDelay: 30 * time.Second}
	job := &domain.WritingJob{Status: domain.JobStatusProcessing}
	now := epoch
	for i := 0; i < 55; i++ {
		policy.Apply(job, errors.New("timeout"), now)
		assert.Equal(t, domain.JobStatusPending, job.Status)
	}
	assert.Equal(t, 5, job.RecoveryCount)
	assert.Equal(t, 5, job.AttemptCount)
}

func TestDecisionString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "retry", Retry.String())
	assert.Equal(t, "recovering", Recover.String())
}
