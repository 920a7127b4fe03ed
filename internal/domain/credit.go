package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for CreditLedger
var (
	ErrEmptyLedgerUserID = errors.New("ledger user ID cannot be empty")
	ErrNegativeCredits   = errors.New("credit amounts cannot be negative")
	ErrNonPositiveDebit  = errors.New("debit amount must be positive")
)

// CreditLedger tracks a user's monthly quota and overflow balance.
type CreditLedger struct {
	UserID          uuid.UUID `json:"user_id"`
	MonthlyQuota    int       `json:"monthly_quota"`
	UsedThisPeriod  int       `json:"used_this_period"`
	OverflowBalance int       `json:"overflow_balance"`
	// PeriodAnchor is the start of the first period. Later periods begin on
	// the same day of the month, clamped to the month's length.
	PeriodAnchor time.Time `json:"period_anchor"`
	PeriodStart  time.Time `json:"period_start"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewCreditLedger creates a ledger with a fresh period starting at now.
func NewCreditLedger(userID uuid.UUID, monthlyQuota int, now time.Time) (*CreditLedger, error) {
	l := &CreditLedger{
		UserID:       userID,
		MonthlyQuota: monthlyQuota,
		PeriodAnchor: now,
		PeriodStart:  now,
		UpdatedAt:    now,
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks the ledger fields.
func (l *CreditLedger) Validate() error {
	if l.UserID == uuid.Nil {
		return ErrEmptyLedgerUserID
	}
	if l.MonthlyQuota < 0 || l.UsedThisPeriod < 0 || l.OverflowBalance < 0 {
		return ErrNegativeCredits
	}
	return nil
}

// Available is the remaining quota plus the overflow balance.
func (l *CreditLedger) Available() int {
	remaining := l.MonthlyQuota - l.UsedThisPeriod
	if remaining < 0 {
		remaining = 0
	}
	return remaining + l.OverflowBalance
}

// Anchor returns PeriodAnchor, falling back to PeriodStart for ledgers
// saved without one.
func (l *CreditLedger) Anchor() time.Time {
	if l.PeriodAnchor.IsZero() {
		return l.PeriodStart
	}
	return l.PeriodAnchor
}

// addMonthsClamped moves t forward by n calendar months, keeping its day of
// the month unless the target month is shorter.
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	h, mi, s := t.Clock()
	lastDay := time.Date(y, m+time.Month(n)+1, 0, 0, 0, 0, 0, t.Location()).Day()
	return time.Date(y, m+time.Month(n), min(d, lastDay), h, mi, s, t.Nanosecond(), t.Location())
}

// RollOver moves to the period containing now and clears the usage when
// that period is newer than the current one. Returns true if it changed.
func (l *CreditLedger) RollOver(now time.Time) bool {
	anchor := l.Anchor()
	if now.Before(anchor) {
		return false
	}
	ay, am, _ := anchor.Date()
	ny, nm, _ := now.In(anchor.Location()).Date()
	k := (ny-ay)*12 + int(nm-am)
	start := addMonthsClamped(anchor, k)
	if start.After(now) {
		start = addMonthsClamped(anchor, k-1)
	}
	if !start.After(l.PeriodStart) {
		return false
	}
	l.PeriodAnchor = anchor
	l.PeriodStart = start
	l.UsedThisPeriod = 0
	l.UpdatedAt = now
	return true
}

// CanAfford reports whether amount can be debited.
func (l *CreditLedger) CanAfford(amount int) bool {
	return amount <= l.Available()
}

// Debit consumes amount from the monthly quota first, then from overflow.
func (l *CreditLedger) Debit(amount int, now time.Time) error {
	if amount <= 0 {
		return ErrNonPositiveDebit
	}
	if !l.CanAfford(amount) {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientCredits, amount, l.Available())
	}

	fromQuota := l.MonthlyQuota - l.UsedThisPeriod
	if fromQuota < 0 {
		fromQuota = 0
	}
	if fromQuota > amount {
		fromQuota = amount
	}
	l.UsedThisPeriod += fromQuota
	l.OverflowBalance -= amount - fromQuota
	l.UpdatedAt = now
	return nil
}
