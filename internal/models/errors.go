package models

import "errors"

// Error taxonomy for the ledger and renewal core. Callers discriminate with
// errors.Is; infrastructure failures are wrapped with %w and fall through.
var (
	// ErrInsufficientFunds is returned by charge operations whose pre-check
	// (performed under the account row lock) fails. Recoverable by top-up.
	ErrInsufficientFunds = errors.New("insufficient credits")

	// ErrAccountNotFound is returned when the account id is unknown.
	ErrAccountNotFound = errors.New("account not found")

	// ErrResourceNotFound is returned when the resource id is unknown.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrAlreadyRenewed means another in-flight operation renewed the
	// resource for this cycle first. Benign: the caller treats it as a no-op.
	ErrAlreadyRenewed = errors.New("resource already renewed for this cycle")

	// ErrStillInsufficientFunds is returned by the admin retry path when the
	// owner still cannot fund the renewal. Nothing changes.
	ErrStillInsufficientFunds = errors.New("account still has insufficient credits")

	// ErrInvalidRetryEntry is returned when a retry targets a billing log
	// entry that is not a failed auto-renewal.
	ErrInvalidRetryEntry = errors.New("billing log entry is not a retryable failure")

	// ErrFreeCreditsRestricted is returned when a dual-pool deduction names a
	// purpose the free pool is not allowed to fund.
	ErrFreeCreditsRestricted = errors.New("free credits cannot be spent on this purpose")

	// ErrInvalidResourceState is returned on lifecycle transitions from the
	// wrong status (publishing an active page, pausing a pending one).
	ErrInvalidResourceState = errors.New("invalid resource state for this operation")
)
