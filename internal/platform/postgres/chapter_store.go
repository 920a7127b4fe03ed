package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/store"
)

const chapterColumns = `
	id, project_id, title, summary, sort_order,
	scene_outline, content, word_count, writing_status,
	created_at, updated_at`

// PostgresChapterStore implements store.ChapterStore. Scene stubs and
// content blocks are stored as JSONB arrays on the chapter row.
type PostgresChapterStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresChapterStore creates a chapter store over db.
func NewPostgresChapterStore(db store.DBTX, logger *slog.Logger) *PostgresChapterStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresChapterStore{
		db:     db,
		logger: logger.With(slog.String("component", "chapter_store")),
	}
}

var _ store.ChapterStore = (*PostgresChapterStore)(nil)

// WithTx returns a store bound to tx.
func (s *PostgresChapterStore) WithTx(tx *sql.Tx) *PostgresChapterStore {
	return &PostgresChapterStore{db: tx, logger: s.logger}
}

func scanChapter(row rowScanner) (*domain.Chapter, error) {
	var c domain.Chapter
	var outline, content []byte
	var status string
	err := row.Scan(
		&c.ID, &c.ProjectID, &c.Title, &c.Summary, &c.SortOrder,
		&outline, &content, &c.WordCount, &status,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.WritingStatus = domain.ChapterStatus(status)
	if err := json.Unmarshal(outline, &c.SceneOutline); err != nil {
		return nil, fmt.Errorf("failed to decode scene outline: %w", err)
	}
	if err := json.Unmarshal(content, &c.Content); err != nil {
		return nil, fmt.Errorf("failed to decode chapter content: %w", err)
	}
	return &c, nil
}

func encodeChapter(c *domain.Chapter) (outline, content []byte, err error) {
	stubs := c.SceneOutline
	if stubs == nil {
		stubs = []domain.SceneStub{}
	}
	blocks := c.Content
	if blocks == nil {
		blocks = []domain.ContentBlock{}
	}
	if outline, err = json.Marshal(stubs); err != nil {
		return nil, nil, fmt.Errorf("failed to encode scene outline: %w", err)
	}
	if content, err = json.Marshal(blocks); err != nil {
		return nil, nil, fmt.Errorf("failed to encode chapter content: %w", err)
	}
	return outline, content, nil
}

// Create inserts a chapter. Chapters are normally created by project setup;
// this exists for seeding and tests.
func (s *PostgresChapterStore) Create(ctx context.Context, c *domain.Chapter) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	outline, content, err := encodeChapter(c)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chapters (`+chapterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.ProjectID, c.Title, c.Summary, c.SortOrder,
		outline, content, c.WordCount, c.WritingStatus,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create chapter",
			slog.String("chapter_id", c.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// GetByID implements store.ChapterStore.
func (s *PostgresChapterStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Chapter, error) {
	return s.get(ctx, id, "")
}

// GetForUpdate implements store.ChapterStore.
func (s *PostgresChapterStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Chapter, error) {
	return s.get(ctx, id, " FOR UPDATE")
}

func (s *PostgresChapterStore) get(ctx context.Context, id uuid.UUID, lock string) (*domain.Chapter, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	row := s.db.QueryRowContext(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE id = $1`+lock, id)
	c, err := scanChapter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrChapterNotFound
		}
		log.Error("failed to get chapter",
			slog.String("chapter_id", id.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return c, nil
}

// ListByProject implements store.ChapterStore.
func (s *PostgresChapterStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Chapter, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chapterColumns+`
		FROM chapters
		WHERE project_id = $1
		ORDER BY sort_order, created_at`, projectID)
	if err != nil {
		log.Error("failed to list chapters",
			slog.String("project_id", projectID.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var chapters []*domain.Chapter
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, MapError(err)
		}
		chapters = append(chapters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return chapters, nil
}

// Update implements store.ChapterStore.
func (s *PostgresChapterStore) Update(ctx context.Context, c *domain.Chapter) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	outline, content, err := encodeChapter(c)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE chapters SET
			scene_outline = $2, content = $3, word_count = $4, writing_status = $5,
			updated_at = NOW()
		WHERE id = $1`,
		c.ID, outline, content, c.WordCount, c.WritingStatus,
	)
	if err != nil {
		log.Error("failed to update chapter",
			slog.String("chapter_id", c.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrChapterNotFound)
}
