package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("some error"), false},
		{"ErrNotFound", ErrNotFound, true},
		{"ErrProjectNotFound", ErrProjectNotFound, true},
		{"wrapped ErrJobNotFound", fmt.Errorf("mark done: %w", ErrJobNotFound), true},
		{"ErrLedgerNotFound", ErrLedgerNotFound, true},
		{"ErrLeaseLost", ErrLeaseLost, false},
		{"ErrDuplicate", ErrDuplicate, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsNotFoundError(tc.err))
		})
	}
}

func TestEntityNotFoundMessages(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "entity not found: writing job", ErrJobNotFound.Error())
	assert.Equal(t, "entity not found: credit ledger", ErrLedgerNotFound.Error())
}
