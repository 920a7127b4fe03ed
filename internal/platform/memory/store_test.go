package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *Store
	project  *domain.Project
	outlined *domain.Chapter
	bare     *domain.Chapter
	now      time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := NewStore()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	p, err := domain.NewProject(uuid.New(), "Tidewater", "premise", 0)
	require.NoError(t, err)
	require.NoError(t, s.Projects().Create(ctx, p))

	a, err := domain.NewChapter(p.ID, "A", "", 1)
	require.NoError(t, err)
	a.SetOutline([]domain.SceneStub{{Title: "a1"}, {Title: "a2"}}, now)
	require.NoError(t, s.Chapters().Create(ctx, a))

	b, err := domain.NewChapter(p.ID, "B", "", 2)
	require.NoError(t, err)
	require.NoError(t, s.Chapters().Create(ctx, b))

	return fixture{store: s, project: p, outlined: a, bare: b, now: now}
}

func (f fixture) enqueueAll(t *testing.T) []*domain.WritingJob {
	t.Helper()
	s0, err := domain.NewSceneJob(f.outlined, 0, f.now)
	require.NoError(t, err)
	s1, err := domain.NewSceneJob(f.outlined, 1, f.now)
	require.NoError(t, err)
	o := domain.NewOutlineJob(f.bare, f.now)
	jobs := []*domain.WritingJob{s1, s0, o}
	require.NoError(t, f.store.Jobs().Enqueue(context.Background(), jobs))
	return jobs
}

func TestClaimNextOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jobs := f.enqueueAll(t)
	jobStore := f.store.Jobs()
	owner := uuid.New()

	first, err := jobStore.ClaimNext(ctx, f.project.ID, owner, time.Minute, f.now, store.ClaimFilter{})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, jobs[2].ID, first.ID, "outline job outranks scene jobs")
	assert.Equal(t, domain.JobStatusProcessing, first.Status)
	require.NotNil(t, first.LeaseOwner)
	assert.Equal(t, owner, *first.LeaseOwner)

	again, err := jobStore.ClaimNext(ctx, f.project.ID, uuid.New(), time.Minute, f.now, store.ClaimFilter{})
	require.NoError(t, err)
	assert.Nil(t, again, "live lease blocks a second claim for the project")

	require.NoError(t, jobStore.MarkDone(ctx, first.ID))

	next, err := jobStore.ClaimNext(ctx, f.project.ID, owner, time.Minute, f.now, store.ClaimFilter{})
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, jobs[1].ID, next.ID, "lowest sort order first")
}

func TestClaimNextHoldsScenesWhileOutlinesOutstanding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jobs := f.enqueueAll(t)
	jobStore := f.store.Jobs()

	// outline job delayed by recovery
	outline := jobs[2]
	outline.NextRetryAt = f.now.Add(30 * time.Second)
	require.NoError(t, jobStore.Release(ctx, outline))

	got, err := jobStore.ClaimNext(ctx, f.project.ID, uuid.New(), time.Minute, f.now, store.ClaimFilter{})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = jobStore.ClaimNext(ctx, f.project.ID, uuid.New(), time.Minute, f.now.Add(31*time.Second), store.ClaimFilter{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, outline.ID, got.ID)
}

func TestClaimNextFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enqueueAll(t)

	got, err := f.store.Jobs().ClaimNext(ctx, f.project.ID, uuid.New(), time.Minute, f.now,
		store.ClaimFilter{JobType: domain.JobTypeWriteScene})
	require.NoError(t, err)
	assert.Nil(t, got, "scene claims wait for outlines")

	got, err = f.store.Jobs().ClaimNext(ctx, f.project.ID, uuid.New(), time.Minute, f.now,
		store.ClaimFilter{JobType: domain.JobTypeGenerateOutline})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.JobTypeGenerateOutline, got.JobType)
}

func TestLeaseExpiryAndRequeue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enqueueAll(t)
	jobStore := f.store.Jobs()
	owner := uuid.New()

	claimed, err := jobStore.ClaimNext(ctx, f.project.ID, owner, time.Minute, f.now, store.ClaimFilter{})
	require.NoError(t, err)

	_, err = jobStore.LockLeased(ctx, claimed.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrLeaseLost)

	later := f.now.Add(2 * time.Minute)
	n, err := jobStore.RequeueExpiredLeases(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = jobStore.LockLeased(ctx, claimed.ID, owner)
	assert.ErrorIs(t, err, store.ErrLeaseLost)

	reclaimed, err := jobStore.ClaimNext(ctx, f.project.ID, uuid.New(), time.Minute, later, store.ClaimFilter{})
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, claimed.ID, reclaimed.ID)
}

func TestPauseResumeAndCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enqueueAll(t)
	jobStore := f.store.Jobs()

	n, err := jobStore.MarkPaused(ctx, f.project.ID, f.now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	counts, err := jobStore.Counts(ctx, f.project.ID, f.now)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Paused)
	assert.Equal(t, 0, counts.Active())
	assert.Equal(t, 1, counts.Outlines)
	assert.Equal(t, 2, counts.Scenes)

	resumeAt := f.now.Add(time.Hour)
	n, err = jobStore.ResumePaused(ctx, f.project.ID, resumeAt)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	jobs, err := jobStore.ListByProject(ctx, f.project.ID)
	require.NoError(t, err)
	for _, j := range jobs {
		assert.Equal(t, domain.JobStatusPending, j.Status)
		assert.Equal(t, resumeAt, j.NextRetryAt)
	}

	n, err = jobStore.DeleteAll(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enqueueAll(t)

	boom := errors.New("boom")
	err := f.store.InTx(ctx, func(ctx context.Context, tx store.Stores) error {
		if _, err := tx.Jobs.DeleteAll(ctx, f.project.ID); err != nil {
			return err
		}
		p, err := tx.Projects.GetForUpdate(ctx, f.project.ID)
		if err != nil {
			return err
		}
		p.Title = "changed"
		if err := tx.Projects.Update(ctx, p); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	jobs, err := f.store.Jobs().ListByProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
	p, err := f.store.Projects().GetByID(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tidewater", p.Title)
}

func TestRecordDebitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	userID, jobID := uuid.New(), uuid.New()

	ok, err := s.Credits().RecordDebit(ctx, userID, jobID, 2, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Credits().RecordDebit(ctx, userID, jobID, 2, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Credits().DebitCount())
}

func TestReturnedEntitiesAreCopies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ch, err := f.store.Chapters().GetByID(ctx, f.outlined.ID)
	require.NoError(t, err)
	ch.SceneOutline[0].Status = domain.SceneStatusDone

	again, err := f.store.Chapters().GetByID(ctx, f.outlined.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SceneStatusPending, again.SceneOutline[0].Status)
}
