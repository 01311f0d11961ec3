package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("product not found")
	ErrNoTransaction  = errors.New("no active transaction")
	ErrInvalidProduct = errors.New("invalid product")
	ErrInvalidAmount  = errors.New("decrement amount must be positive")
)

// PreconditionError reports an operation that needs a caller-owned transaction
// but was invoked on a pool-bound repository.
type PreconditionError struct {
	Op string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("inventory: %s requires an active transaction", e.Op)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrNoTransaction
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidProduct, msg)
}
