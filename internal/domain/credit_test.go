package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditLedgerDebit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	t.Run("quota before overflow", func(t *testing.T) {
		l, err := NewCreditLedger(uuid.New(), 10, now)
		require.NoError(t, err)
		l.OverflowBalance = 5

		require.NoError(t, l.Debit(8, now))
		assert.Equal(t, 8, l.UsedThisPeriod)
		assert.Equal(t, 5, l.OverflowBalance)

		require.NoError(t, l.Debit(4, now))
		assert.Equal(t, 10, l.UsedThisPeriod)
		assert.Equal(t, 3, l.OverflowBalance)
		assert.Equal(t, 3, l.Available())
	})

	t.Run("insufficient", func(t *testing.T) {
		l, err := NewCreditLedger(uuid.New(), 2, now)
		require.NoError(t, err)

		err = l.Debit(3, now)
		assert.ErrorIs(t, err, ErrInsufficientCredits)
		assert.Equal(t, 0, l.UsedThisPeriod)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		l, err := NewCreditLedger(uuid.New(), 2, now)
		require.NoError(t, err)
		assert.ErrorIs(t, l.Debit(0, now), ErrNonPositiveDebit)
	})
}

func TestCreditLedgerRollOver(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	l, err := NewCreditLedger(uuid.New(), 10, start)
	require.NoError(t, err)
	l.UsedThisPeriod = 10

	assert.False(t, l.RollOver(start.AddDate(0, 0, 20)))
	assert.Equal(t, 0, l.Available())

	assert.True(t, l.RollOver(start.AddDate(0, 3, 2)))
	assert.Equal(t, 0, l.UsedThisPeriod)
	assert.Equal(t, start.AddDate(0, 3, 0), l.PeriodStart)
	assert.Equal(t, 10, l.Available())
}

func TestCreditLedgerRollOverKeepsMonthEndAnchor(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	l, err := NewCreditLedger(uuid.New(), 10, start)
	require.NoError(t, err)

	steps := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC), time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)},
		{time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC), time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)},
		{time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 30, 9, 0, 0, 0, time.UTC)},
	}
	for _, s := range steps {
		l.UsedThisPeriod = 4
		require.True(t, l.RollOver(s.now), "roll over at %s", s.now)
		assert.Equal(t, s.want, l.PeriodStart)
		assert.Equal(t, 0, l.UsedThisPeriod)
	}

	assert.False(t, l.RollOver(time.Date(2026, 5, 30, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, start, l.PeriodAnchor)
}

func TestCreditLedgerRollOverWithoutAnchor(t *testing.T) {
	t.Parallel()

	l := &CreditLedger{
		UserID:         uuid.New(),
		MonthlyQuota:   5,
		UsedThisPeriod: 5,
		PeriodStart:    time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	assert.True(t, l.RollOver(time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), l.PeriodStart)
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), l.PeriodAnchor)
}
