package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/store"
)

// PostgresCreditStore implements store.CreditStore.
type PostgresCreditStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCreditStore creates a credit store over db.
func NewPostgresCreditStore(db store.DBTX, logger *slog.Logger) *PostgresCreditStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCreditStore{
		db:     db,
		logger: logger.With(slog.String("component", "credit_store")),
	}
}

var _ store.CreditStore = (*PostgresCreditStore)(nil)

// WithTx returns a store bound to tx.
func (s *PostgresCreditStore) WithTx(tx *sql.Tx) *PostgresCreditStore {
	return &PostgresCreditStore{db: tx, logger: s.logger}
}

// Get implements store.CreditStore.
func (s *PostgresCreditStore) Get(ctx context.Context, userID uuid.UUID) (*domain.CreditLedger, error) {
	return s.get(ctx, userID, "")
}

// GetForUpdate implements store.CreditStore.
func (s *PostgresCreditStore) GetForUpdate(ctx context.Context, userID uuid.UUID) (*domain.CreditLedger, error) {
	return s.get(ctx, userID, " FOR UPDATE")
}

func (s *PostgresCreditStore) get(ctx context.Context, userID uuid.UUID, lock string) (*domain.CreditLedger, error) {
	var l domain.CreditLedger
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, monthly_quota, used_this_period, overflow_balance, period_anchor, period_start, updated_at
		FROM credit_ledgers
		WHERE user_id = $1`+lock, userID).Scan(
		&l.UserID, &l.MonthlyQuota, &l.UsedThisPeriod, &l.OverflowBalance, &l.PeriodAnchor, &l.PeriodStart, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrLedgerNotFound
		}
		return nil, MapError(err)
	}
	return &l, nil
}

// Save implements store.CreditStore.
func (s *PostgresCreditStore) Save(ctx context.Context, l *domain.CreditLedger) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := l.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_ledgers (user_id, monthly_quota, used_this_period, overflow_balance, period_anchor, period_start, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			monthly_quota = EXCLUDED.monthly_quota,
			used_this_period = EXCLUDED.used_this_period,
			overflow_balance = EXCLUDED.overflow_balance,
			period_anchor = EXCLUDED.period_anchor,
			period_start = EXCLUDED.period_start,
			updated_at = EXCLUDED.updated_at`,
		l.UserID, l.MonthlyQuota, l.UsedThisPeriod, l.OverflowBalance, l.Anchor(), l.PeriodStart, l.UpdatedAt)
	if err != nil {
		log.Error("failed to save credit ledger",
			slog.String("user_id", l.UserID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// RecordDebit implements store.CreditStore.
func (s *PostgresCreditStore) RecordDebit(
	ctx context.Context,
	userID, jobID uuid.UUID,
	amount int,
	now time.Time,
) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_debits (job_id, user_id, amount, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO NOTHING`,
		jobID, userID, amount, now)
	if err != nil {
		return false, MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
