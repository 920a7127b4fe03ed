package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/scribe-api/internal/store"
)

// Transactor implements store.Transactor over a *sql.DB, binding every
// store to the same transaction.
type Transactor struct {
	db       *sql.DB
	projects *PostgresProjectStore
	chapters *PostgresChapterStore
	jobs     *PostgresJobStore
	credits  *PostgresCreditStore
}

var _ store.Transactor = (*Transactor)(nil)

// NewTransactor creates the store set for db.
func NewTransactor(db *sql.DB, logger *slog.Logger) *Transactor {
	return &Transactor{
		db:       db,
		projects: NewPostgresProjectStore(db, logger),
		chapters: NewPostgresChapterStore(db, logger),
		jobs:     NewPostgresJobStore(db, logger),
		credits:  NewPostgresCreditStore(db, logger),
	}
}

// Stores returns the non-transactional store set.
func (t *Transactor) Stores() store.Stores {
	return store.Stores{
		Projects: t.projects,
		Chapters: t.chapters,
		Jobs:     t.jobs,
		Credits:  t.credits,
	}
}

// InTx implements store.Transactor.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Stores) error) error {
	return store.RunInTransaction(ctx, t.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, store.Stores{
			Projects: t.projects.WithTx(tx),
			Chapters: t.chapters.WithTx(tx),
			Jobs:     t.jobs.WithTx(tx),
			Credits:  t.credits.WithTx(tx),
		})
	})
}
