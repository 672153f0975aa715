// Package errs holds the error taxonomy shared by the payment and settlement services.
// Every error returned to a request handler wraps exactly one of these sentinels.
package errs

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrAmountMismatch      = errors.New("payment amount does not match reference")
	ErrAlreadyVerified     = errors.New("payment already verified")
	ErrRequestExpired      = errors.New("payment request expired")
	ErrDisputeAlreadyOpen  = errors.New("dispute already open for order")
	ErrNotOwner            = errors.New("not the owner of this resource")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrNoBankAccount       = errors.New("no linked bank account")

	// ErrLedgerDiverged means a cached balance no longer equals the sum of its
	// applied transactions. It is an invariant violation, not a user error.
	ErrLedgerDiverged = errors.New("ledger balance diverged from transaction log")

	// ErrConflict is returned when an optimistic balance update lost a race.
	ErrConflict = errors.New("concurrent balance update")
)

// ErrInsufficientFunds is the ledger-level name for ErrInsufficientBalance.
var ErrInsufficientFunds = ErrInsufficientBalance
