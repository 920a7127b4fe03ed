package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/store"
)

const projectColumns = `
	id, user_id, title, premise, genre, writing_status,
	total_scenes, completed_scenes, failed_scenes,
	current_chapter_index, current_scene_index,
	word_count, target_word_count, writing_error,
	writing_started_at, writing_completed_at, last_progress_at,
	created_at, updated_at`

// PostgresProjectStore implements store.ProjectStore.
type PostgresProjectStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresProjectStore creates a project store over db.
// If logger is nil, a default logger will be used.
func NewPostgresProjectStore(db store.DBTX, logger *slog.Logger) *PostgresProjectStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProjectStore{
		db:     db,
		logger: logger.With(slog.String("component", "project_store")),
	}
}

var _ store.ProjectStore = (*PostgresProjectStore)(nil)

// WithTx returns a store bound to tx.
func (s *PostgresProjectStore) WithTx(tx *sql.Tx) *PostgresProjectStore {
	return &PostgresProjectStore{db: tx, logger: s.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var p domain.Project
	var status string
	err := row.Scan(
		&p.ID, &p.UserID, &p.Title, &p.Premise, &p.Genre, &status,
		&p.TotalScenes, &p.CompletedScenes, &p.FailedScenes,
		&p.CurrentChapterIndex, &p.CurrentSceneIndex,
		&p.WordCount, &p.TargetWordCount, &p.WritingError,
		&p.WritingStartedAt, &p.WritingCompletedAt, &p.LastProgressAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.WritingStatus = domain.ProjectStatus(status)
	return &p, nil
}

// Create inserts a project. Projects are normally created by project setup;
// this exists for seeding and tests.
func (s *PostgresProjectStore) Create(ctx context.Context, p *domain.Project) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		p.ID, p.UserID, p.Title, p.Premise, p.Genre, p.WritingStatus,
		p.TotalScenes, p.CompletedScenes, p.FailedScenes,
		p.CurrentChapterIndex, p.CurrentSceneIndex,
		p.WordCount, p.TargetWordCount, p.WritingError,
		p.WritingStartedAt, p.WritingCompletedAt, p.LastProgressAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create project",
			slog.String("project_id", p.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// GetByID implements store.ProjectStore.
func (s *PostgresProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return s.get(ctx, id, "")
}

// GetForUpdate implements store.ProjectStore.
func (s *PostgresProjectStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return s.get(ctx, id, " FOR UPDATE")
}

func (s *PostgresProjectStore) get(ctx context.Context, id uuid.UUID, lock string) (*domain.Project, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`+lock, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProjectNotFound
		}
		log.Error("failed to get project",
			slog.String("project_id", id.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return p, nil
}

// Update implements store.ProjectStore.
func (s *PostgresProjectStore) Update(ctx context.Context, p *domain.Project) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET
			writing_status = $2,
			total_scenes = $3, completed_scenes = $4, failed_scenes = $5,
			current_chapter_index = $6, current_scene_index = $7,
			word_count = $8, writing_error = $9,
			writing_started_at = $10, writing_completed_at = $11, last_progress_at = $12,
			updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.WritingStatus,
		p.TotalScenes, p.CompletedScenes, p.FailedScenes,
		p.CurrentChapterIndex, p.CurrentSceneIndex,
		p.WordCount, p.WritingError,
		p.WritingStartedAt, p.WritingCompletedAt, p.LastProgressAt,
	)
	if err != nil {
		log.Error("failed to update project",
			slog.String("project_id", p.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrProjectNotFound)
}

// ListByStatus implements store.ProjectStore.
func (s *PostgresProjectStore) ListByStatus(
	ctx context.Context,
	statuses ...domain.ProjectStatus,
) ([]*domain.Project, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE writing_status = ANY($1)
		ORDER BY created_at`, names)
	if err != nil {
		log.Error("failed to list projects by status", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, MapError(err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return projects, nil
}
