package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the referenced book has no ledger record.
	ErrNotFound = errors.New("book not found in inventory")

	// ErrInvalidQuantity rejects non-positive quantities before any lock is taken.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInsufficientStock is a business rejection, not a system failure.
	// Callers should match it with errors.Is; the concrete value is always an
	// *InsufficientStockError carrying the figures.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvariantViolation means a mutation would have broken
	// 0 <= reserved <= on_hand. Nothing is committed when it fires.
	ErrInvariantViolation = errors.New("stock invariant violated")

	// ErrParse marks an inbound event that can never be processed. It is
	// acknowledged and discarded instead of redelivered.
	ErrParse = errors.New("malformed event")
)

// InsufficientStockError reports available vs requested so callers can react
// (e.g. reduce the quantity) instead of blindly retrying.
type InsufficientStockError struct {
	BookID    string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %s: available=%d requested=%d",
		e.BookID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// TransientError wraps an infrastructure failure (store or transport) that is
// safe to retry via redelivery. The deduction processor aborts the current
// event without acknowledging it when it sees one.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
