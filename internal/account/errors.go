package account

import (
	"errors"
	"fmt"
)

// ErrInvalidPoints is returned when an absolute point override is negative.
var ErrInvalidPoints = errors.New("points must be non-negative")

// ErrNoPendingRequest is returned when a resolution is attempted on an
// account whose membership status is not pending.
var ErrNoPendingRequest = errors.New("no pending membership request")

// InsufficientPointsError is returned when a debit exceeds the account's
// balance. It carries the totals the API reports back to the caller.
type InsufficientPointsError struct {
	Current  int64
	Required int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: have %d, need %d", e.Current, e.Required)
}
