package lifecycle

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Error taxonomy for state-machine operations. Controllers map these to HTTP
// statuses; the engine never writes responses itself.
var (
	// ErrValidation covers missing or malformed input, including self-bids.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound means the task, bid or service id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized means the caller is not the required party for the action.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidTransition means the action is not permitted from the task's
	// current state. Illegal transitions fail loudly, they never silently no-op.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrConflict means a duplicate bid or a lost race: the task left its
	// pre-transition state between read and commit.
	ErrConflict = errors.New("conflict")
	// ErrPaymentProcessor means intent creation or refund failed at the
	// external processor. Distinct from payments.ErrPayoutFailed.
	ErrPaymentProcessor = errors.New("payment processor error")
)

// isDuplicateKey detects a uniqueness violation across MySQL and the SQLite
// test database without depending on GORM's error translation being enabled.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
