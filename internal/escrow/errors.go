package escrow

import "errors"

// Kind classifies ledger failures so transport layers can map them to
// status codes without string matching.
type Kind string

const (
	KindUnauthorized     Kind = "unauthorized"
	KindInvalidState     Kind = "invalid_state"
	KindInvalidInput     Kind = "invalid_input"
	KindAlreadyDone      Kind = "already_done"
	KindNotEligible      Kind = "not_eligible"
	KindTimingNotElapsed Kind = "timing_not_elapsed"
)

// Error is a ledger precondition failure with a stable reason string.
// Every failed operation leaves the ledger untouched; there is no
// partial-success mode anywhere in this package.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// Domain sentinels. Operations return these directly (or wrapped with %w),
// so callers distinguish them with errors.Is.
var (
	ErrNotOwner          = &Error{KindUnauthorized, "caller is not the owner"}
	ErrNotAdmin          = &Error{KindUnauthorized, "caller is not an admin"}
	ErrEventEnded        = &Error{KindInvalidState, "event has ended"}
	ErrNotEnded          = &Error{KindInvalidState, "event has not ended"}
	ErrNothingToWithdraw = &Error{KindInvalidState, "no payout has been established"}
	ErrNameLocked        = &Error{KindInvalidState, "name cannot change once registrations exist"}
	ErrIncorrectDeposit  = &Error{KindInvalidInput, "paid amount does not match the deposit"}
	ErrLimitReached      = &Error{KindInvalidInput, "participant limit reached"}
	ErrInvalidLimit      = &Error{KindInvalidInput, "participant limit must be positive"}
	ErrZeroAddress       = &Error{KindInvalidInput, "address must not be empty"}
	ErrAlreadyRegistered = &Error{KindAlreadyDone, "address is already registered"}
	ErrAlreadyAttended   = &Error{KindAlreadyDone, "address is already marked as attended"}
	ErrAlreadyPaid       = &Error{KindAlreadyDone, "payout has already been withdrawn"}
	ErrNotRegistered     = &Error{KindNotEligible, "address is not registered"}
	ErrNotEligible       = &Error{KindNotEligible, "caller is not entitled to a payout"}
	ErrCoolingPeriod     = &Error{KindTimingNotElapsed, "cooling period has not elapsed"}
)

// KindOf returns the failure kind of err, or the empty Kind when err is not
// a ledger error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
