package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
)

// CreditStore implements store.CreditStore.
type CreditStore struct{ s *Store }

var _ store.CreditStore = (*CreditStore)(nil)

// Get implements store.CreditStore.
func (c *CreditStore) Get(ctx context.Context, userID uuid.UUID) (*domain.CreditLedger, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	l, ok := c.s.data.ledgers[userID]
	if !ok {
		return nil, store.ErrLedgerNotFound
	}
	cp := *l
	return &cp, nil
}

// GetForUpdate implements store.CreditStore.
func (c *CreditStore) GetForUpdate(ctx context.Context, userID uuid.UUID) (*domain.CreditLedger, error) {
	return c.Get(ctx, userID)
}

// Save implements store.CreditStore.
func (c *CreditStore) Save(ctx context.Context, ledger *domain.CreditLedger) error {
	if err := ledger.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cp := *ledger
	c.s.data.ledgers[ledger.UserID] = &cp
	return nil
}

// RecordDebit implements store.CreditStore.
func (c *CreditStore) RecordDebit(
	ctx context.Context,
	userID, jobID uuid.UUID,
	amount int,
	now time.Time,
) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.data.debits[jobID]; ok {
		return false, nil
	}
	c.s.data.debits[jobID] = debit{UserID: userID, Amount: amount, CreatedAt: now}
	return true, nil
}

// DebitCount returns how many debits were journaled.
func (c *CreditStore) DebitCount() int {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return len(c.s.data.debits)
}
