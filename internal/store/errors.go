package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("entity not found")
	ErrDuplicate     = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed wraps begin and commit failures. Errors returned
	// by the transaction body pass through unwrapped.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrConflict means a concurrent transaction won a race on the same
	// rows (serialization failure, deadlock or lock timeout). Retrying is safe.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrLeaseLost means the caller no longer owns the job: its lease
	// expired and was reclaimed, or the job was requeued by a recovery.
	ErrLeaseLost = errors.New("job lease lost")

	ErrProjectNotFound = fmt.Errorf("%w: project", ErrNotFound)
	ErrChapterNotFound = fmt.Errorf("%w: chapter", ErrNotFound)

	// ErrJobNotFound usually means the run was cancelled while the job was
	// in flight and its row deleted.
	ErrJobNotFound    = fmt.Errorf("%w: writing job", ErrNotFound)
	ErrLedgerNotFound = fmt.Errorf("%w: credit ledger", ErrNotFound)
)

// IsNotFoundError reports whether err is any of the not-found errors.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
