//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/postgres"
	"github.com/phrazzld/scribe-api/internal/store"
	"github.com/phrazzld/scribe-api/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLifecycleAgainstPostgres(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Microsecond)

		projects := postgres.NewPostgresProjectStore(tx, nil)
		chapters := postgres.NewPostgresChapterStore(tx, nil)
		jobs := postgres.NewPostgresJobStore(tx, nil)

		p, err := domain.NewProject(uuid.New(), "Tidewater", "A lighthouse keeper hears a bell.", 40000)
		require.NoError(t, err)
		require.NoError(t, projects.Create(ctx, p))

		first, err := domain.NewChapter(p.ID, "Arrival", "The keeper arrives.", 1)
		require.NoError(t, err)
		first.SetOutline([]domain.SceneStub{{Title: "The ferry"}, {Title: "The lamp room"}}, now)
		require.NoError(t, chapters.Create(ctx, first))

		second, err := domain.NewChapter(p.ID, "The Bell", "Something rings below.", 2)
		require.NoError(t, err)
		require.NoError(t, chapters.Create(ctx, second))

		scene, err := domain.NewSceneJob(first, 0, now)
		require.NoError(t, err)
		outline := domain.NewOutlineJob(second, now)
		require.NoError(t, jobs.Enqueue(ctx, []*domain.WritingJob{scene, outline}))

		owner := uuid.New()
		claimed, err := jobs.ClaimNext(ctx, p.ID, owner, time.Minute, now, store.ClaimFilter{})
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, outline.ID, claimed.ID, "outlines are claimed before scenes")

		again, err := jobs.ClaimNext(ctx, p.ID, uuid.New(), time.Minute, now, store.ClaimFilter{})
		require.NoError(t, err)
		assert.Nil(t, again, "a live lease blocks further claims")

		_, err = jobs.LockLeased(ctx, claimed.ID, uuid.New())
		assert.ErrorIs(t, err, store.ErrLeaseLost)
		_, err = jobs.LockLeased(ctx, claimed.ID, owner)
		require.NoError(t, err)
		require.NoError(t, jobs.MarkDone(ctx, claimed.ID))

		next, err := jobs.ClaimNext(ctx, p.ID, owner, time.Minute, now, store.ClaimFilter{})
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, scene.ID, next.ID)
		require.NotNil(t, next.SceneSnapshot)
		assert.Equal(t, "The ferry", next.SceneSnapshot.Title)

		n, err := jobs.RequeueExpiredLeases(ctx, now.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		counts, err := jobs.Counts(ctx, p.ID, now.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, counts.Pending)
		assert.Equal(t, 1, counts.Scenes)
	})
}

func TestProjectRoundTripAgainstPostgres(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Microsecond)
		projects := postgres.NewPostgresProjectStore(tx, nil)

		p, err := domain.NewProject(uuid.New(), "Salt", "A caravan crosses a dead sea.", 50000)
		require.NoError(t, err)
		require.NoError(t, projects.Create(ctx, p))

		require.NoError(t, p.TransitionTo(domain.ProjectStatusQueued, now))
		p.TotalScenes = 4
		require.NoError(t, projects.Update(ctx, p))

		got, err := projects.GetForUpdate(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ProjectStatusQueued, got.WritingStatus)
		assert.Equal(t, 4, got.TotalScenes)

		active, err := projects.ListByStatus(ctx, domain.ActiveStatuses()...)
		require.NoError(t, err)
		ids := make([]uuid.UUID, 0, len(active))
		for _, a := range active {
			ids = append(ids, a.ID)
		}
		assert.Contains(t, ids, p.ID)

		_, err = projects.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrProjectNotFound)
	})
}
