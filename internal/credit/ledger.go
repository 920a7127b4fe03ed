// Package credit gates generation on a user's credit balance and charges
// kept results exactly once.
package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/store"
)

// Ledger applies quota and debit rules on top of a store.CreditStore.
// Methods take the store explicitly so callers can pass a transactional one.
type Ledger struct {
	defaultQuota int
	logger       *slog.Logger
}

// NewLedger creates a ledger that opens missing accounts with defaultQuota.
func NewLedger(defaultQuota int, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		defaultQuota: defaultQuota,
		logger:       logger.With(slog.String("component", "credit_ledger")),
	}
}

// Check returns an error wrapping domain.ErrInsufficientCredits when the
// user cannot afford amount at now. It does not modify the ledger.
func (l *Ledger) Check(
	ctx context.Context,
	credits store.CreditStore,
	userID uuid.UUID,
	amount int,
	now time.Time,
) error {
	if amount <= 0 {
		return nil
	}
	ledger, err := l.load(ctx, credits, userID, now, false)
	if err != nil {
		return err
	}
	ledger.RollOver(now)
	if !ledger.CanAfford(amount) {
		return fmt.Errorf("%w: need %d, have %d", domain.ErrInsufficientCredits, amount, ledger.Available())
	}
	return nil
}

// Debit charges amount for jobID. It must run inside the transaction that
// commits the job's result. A job that was already charged is not charged
// again and Debit returns false.
func (l *Ledger) Debit(
	ctx context.Context,
	credits store.CreditStore,
	userID, jobID uuid.UUID,
	amount int,
	now time.Time,
) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	log := logger.FromContextOrDefault(ctx, l.logger)

	recorded, err := credits.RecordDebit(ctx, userID, jobID, amount, now)
	if err != nil {
		return false, fmt.Errorf("failed to journal debit: %w", err)
	}
	if !recorded {
		log.Debug("job already charged", slog.String("job_id", jobID.String()))
		return false, nil
	}

	ledger, err := l.load(ctx, credits, userID, now, true)
	if err != nil {
		return false, err
	}
	ledger.RollOver(now)
	if err := ledger.Debit(amount, now); err != nil {
		return false, err
	}
	if err := credits.Save(ctx, ledger); err != nil {
		return false, fmt.Errorf("failed to save credit ledger: %w", err)
	}

	log.Debug("credits debited",
		slog.String("user_id", userID.String()),
		slog.String("job_id", jobID.String()),
		slog.Int("amount", amount),
		slog.Int("available", ledger.Available()))
	return true, nil
}

func (l *Ledger) load(
	ctx context.Context,
	credits store.CreditStore,
	userID uuid.UUID,
	now time.Time,
	forUpdate bool,
) (*domain.CreditLedger, error) {
	var ledger *domain.CreditLedger
	var err error
	if forUpdate {
		ledger, err = credits.GetForUpdate(ctx, userID)
	} else {
		ledger, err = credits.Get(ctx, userID)
	}
	if errors.Is(err, store.ErrLedgerNotFound) {
		return domain.NewCreditLedger(userID, l.defaultQuota, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credit ledger: %w", err)
	}
	return ledger, nil
}
