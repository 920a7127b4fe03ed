package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/store"
)

const jobColumns = `
	id, project_id, chapter_id, job_type, status, scene_index, scene_snapshot,
	priority, sort_order, attempt_count, recovery_count, next_retry_at,
	lease_owner, lease_expires_at, last_error, created_at, updated_at`

// claimQuery leases one due job. Rows with a live lease block the claim so a
// project has a single writer; expired leases are reclaimable in place.
// Scene jobs wait while any outline job of the project is outstanding.
// Callers serialise claims per project by locking the project row first.
const claimQuery = `
	WITH next AS (
		SELECT j.id
		FROM writing_jobs j
		WHERE j.project_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM writing_jobs l
			WHERE l.project_id = $1
			  AND l.status = 'processing'
			  AND l.lease_expires_at > $4)
		  AND (
			(j.status = 'pending' AND j.next_retry_at <= $4)
			OR (j.status = 'processing' AND (j.lease_expires_at IS NULL OR j.lease_expires_at <= $4)))
		  AND ($5::text = '' OR j.job_type = $5::text)
		  AND (j.job_type = 'generate_outline' OR NOT EXISTS (
			SELECT 1 FROM writing_jobs o
			WHERE o.project_id = $1
			  AND o.job_type = 'generate_outline'
			  AND o.status IN ('pending', 'processing', 'paused')))
		ORDER BY j.priority DESC, j.sort_order, j.created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE writing_jobs w
	SET status = 'processing', lease_owner = $2, lease_expires_at = $3, updated_at = $4
	FROM next
	WHERE w.id = next.id
	RETURNING ` + jobColumnsQualified

const jobColumnsQualified = `
	w.id, w.project_id, w.chapter_id, w.job_type, w.status, w.scene_index, w.scene_snapshot,
	w.priority, w.sort_order, w.attempt_count, w.recovery_count, w.next_retry_at,
	w.lease_owner, w.lease_expires_at, w.last_error, w.created_at, w.updated_at`

// PostgresJobStore implements store.JobStore over the writing_jobs table.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a job store over db.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

var _ store.JobStore = (*PostgresJobStore)(nil)

// WithTx returns a store bound to tx.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) *PostgresJobStore {
	return &PostgresJobStore{db: tx, logger: s.logger}
}

func scanJob(row rowScanner) (*domain.WritingJob, error) {
	var j domain.WritingJob
	var jobType, status string
	var snapshot []byte
	err := row.Scan(
		&j.ID, &j.ProjectID, &j.ChapterID, &jobType, &status, &j.SceneIndex, &snapshot,
		&j.Priority, &j.SortOrder, &j.AttemptCount, &j.RecoveryCount, &j.NextRetryAt,
		&j.LeaseOwner, &j.LeaseExpiresAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.JobType = domain.JobType(jobType)
	j.Status = domain.JobStatus(status)
	if len(snapshot) > 0 {
		var stub domain.SceneStub
		if err := json.Unmarshal(snapshot, &stub); err != nil {
			return nil, fmt.Errorf("failed to decode scene snapshot: %w", err)
		}
		j.SceneSnapshot = &stub
	}
	return &j, nil
}

func queryJobs(ctx context.Context, db store.DBTX, query string, args ...any) ([]*domain.WritingJob, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.WritingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, MapError(err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return jobs, nil
}

// Enqueue implements store.JobStore.
func (s *PostgresJobStore) Enqueue(ctx context.Context, jobs []*domain.WritingJob) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if len(jobs) == 0 {
		return nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO writing_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`)
	if err != nil {
		return MapError(err)
	}
	defer func() { _ = stmt.Close() }()

	for _, j := range jobs {
		if err := j.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		var snapshot any
		if j.SceneSnapshot != nil {
			b, err := json.Marshal(j.SceneSnapshot)
			if err != nil {
				return fmt.Errorf("failed to encode scene snapshot: %w", err)
			}
			snapshot = b
		}
		_, err := stmt.ExecContext(ctx,
			j.ID, j.ProjectID, j.ChapterID, j.JobType, j.Status, j.SceneIndex, snapshot,
			j.Priority, j.SortOrder, j.AttemptCount, j.RecoveryCount, j.NextRetryAt,
			j.LeaseOwner, j.LeaseExpiresAt, j.LastError, j.CreatedAt, j.UpdatedAt,
		)
		if err != nil {
			log.Error("failed to enqueue writing job",
				slog.String("job_id", j.ID.String()),
				slog.String("project_id", j.ProjectID.String()),
				slog.String("error", err.Error()))
			return MapError(err)
		}
	}

	log.Debug("enqueued writing jobs", slog.Int("count", len(jobs)))
	return nil
}

// ClaimNext implements store.JobStore.
func (s *PostgresJobStore) ClaimNext(
	ctx context.Context,
	projectID, owner uuid.UUID,
	lease time.Duration,
	now time.Time,
	filter store.ClaimFilter,
) (*domain.WritingJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	row := s.db.QueryRowContext(ctx, claimQuery,
		projectID, owner, now.Add(lease), now, string(filter.JobType))
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error("failed to claim writing job",
			slog.String("project_id", projectID.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return j, nil
}

// LockLeased implements store.JobStore.
func (s *PostgresJobStore) LockLeased(ctx context.Context, jobID, owner uuid.UUID) (*domain.WritingJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM writing_jobs WHERE id = $1 FOR UPDATE`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(err)
	}
	if j.Status != domain.JobStatusProcessing || j.LeaseOwner == nil || *j.LeaseOwner != owner {
		return nil, store.ErrLeaseLost
	}
	return j, nil
}

// MarkDone implements store.JobStore.
func (s *PostgresJobStore) MarkDone(ctx context.Context, jobID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM writing_jobs WHERE id = $1`, jobID)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrJobNotFound)
}

// MarkFailed implements store.JobStore.
func (s *PostgresJobStore) MarkFailed(ctx context.Context, jobID uuid.UUID, reason string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE writing_jobs
		SET status = 'failed', last_error = $2, lease_owner = NULL, lease_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND status = 'processing'`,
		jobID, reason, now)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrJobNotFound)
}

// Release implements store.JobStore.
func (s *PostgresJobStore) Release(ctx context.Context, j *domain.WritingJob) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE writing_jobs
		SET status = $2, attempt_count = $3, recovery_count = $4, next_retry_at = $5,
			last_error = $6, lease_owner = NULL, lease_expires_at = NULL, updated_at = $7
		WHERE id = $1`,
		j.ID, j.Status, j.AttemptCount, j.RecoveryCount, j.NextRetryAt, j.LastError, j.UpdatedAt)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrJobNotFound)
}

func (s *PostgresJobStore) exec(ctx context.Context, query string, args ...any) (int, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, MapError(err)
	}
	return rowsAffected(result)
}

// MarkPaused implements store.JobStore.
func (s *PostgresJobStore) MarkPaused(ctx context.Context, projectID uuid.UUID, now time.Time) (int, error) {
	return s.exec(ctx, `
		UPDATE writing_jobs SET status = 'paused', updated_at = $2
		WHERE project_id = $1 AND status = 'pending'`, projectID, now)
}

// ResumePaused implements store.JobStore.
func (s *PostgresJobStore) ResumePaused(ctx context.Context, projectID uuid.UUID, now time.Time) (int, error) {
	return s.exec(ctx, `
		UPDATE writing_jobs SET status = 'pending', next_retry_at = $2, updated_at = $2
		WHERE project_id = $1 AND status = 'paused'`, projectID, now)
}

// Rearm implements store.JobStore.
func (s *PostgresJobStore) Rearm(ctx context.Context, projectID uuid.UUID, now time.Time) (int, error) {
	return s.exec(ctx, `
		UPDATE writing_jobs SET next_retry_at = $2, updated_at = $2
		WHERE project_id = $1 AND status = 'pending'`, projectID, now)
}

// DeleteAll implements store.JobStore.
func (s *PostgresJobStore) DeleteAll(ctx context.Context, projectID uuid.UUID) (int, error) {
	return s.exec(ctx, `DELETE FROM writing_jobs WHERE project_id = $1`, projectID)
}

// Counts implements store.JobStore.
func (s *PostgresJobStore) Counts(ctx context.Context, projectID uuid.UUID, now time.Time) (domain.JobCounts, error) {
	var c domain.JobCounts
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, job_type, COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending' AND next_retry_at > $2)
		FROM writing_jobs
		WHERE project_id = $1
		GROUP BY status, job_type`, projectID, now)
	if err != nil {
		return c, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status, jobType string
		var n, delayed int
		if err := rows.Scan(&status, &jobType, &n, &delayed); err != nil {
			return c, MapError(err)
		}
		st := domain.JobStatus(status)
		switch st {
		case domain.JobStatusPending:
			c.Pending += n
		case domain.JobStatusProcessing:
			c.Processing += n
		case domain.JobStatusPaused:
			c.Paused += n
		case domain.JobStatusFailed:
			c.Failed += n
		}
		c.Delayed += delayed
		if st.IsOutstanding() {
			if domain.JobType(jobType) == domain.JobTypeGenerateOutline {
				c.Outlines += n
			} else {
				c.Scenes += n
			}
		}
	}
	return c, MapError(rows.Err())
}

// ListByProject implements store.JobStore.
func (s *PostgresJobStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.WritingJob, error) {
	return queryJobs(ctx, s.db, `
		SELECT `+jobColumns+`
		FROM writing_jobs
		WHERE project_id = $1
		ORDER BY priority DESC, sort_order, created_at`, projectID)
}

// RequeueExpiredLeases implements store.JobStore.
func (s *PostgresJobStore) RequeueExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	n, err := s.exec(ctx, `
		UPDATE writing_jobs j
		SET status = CASE WHEN p.writing_status = 'paused' THEN 'paused' ELSE 'pending' END,
			next_retry_at = $1, lease_owner = NULL, lease_expires_at = NULL, updated_at = $1
		FROM projects p
		WHERE p.id = j.project_id
		  AND j.status = 'processing'
		  AND (j.lease_expires_at IS NULL OR j.lease_expires_at <= $1)`, now)
	if err != nil {
		log.Error("failed to requeue expired leases", slog.String("error", err.Error()))
		return 0, err
	}
	if n > 0 {
		log.Info("requeued jobs with expired leases", slog.Int("count", n))
	}
	return n, nil
}
