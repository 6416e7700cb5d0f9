package ledger

import "errors"

// Sentinel errors for the ledger service layer.
var (
	// ErrInvalidAmount is returned for non-positive amounts, before any write.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientBalance is returned when a redeem exceeds the available
	// balance. The caller must not proceed with the redemption-dependent
	// sale adjustment.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConcurrentConflict is returned when the optimistic retry loop is
	// exhausted. Transient; the caller may retry the operation from scratch.
	ErrConcurrentConflict = errors.New("concurrent balance conflict")

	// ErrNotFound is returned when a referenced transaction does not exist.
	ErrNotFound = errors.New("ledger transaction not found")

	// ErrNotExpirable is returned when Expire targets a transaction that is
	// not an ACTIVE, due ACCUMULATE lot with value remaining.
	ErrNotExpirable = errors.New("transaction is not expirable")
)
