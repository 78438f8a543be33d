package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity = errors.New("checkout: quantity must be at least one")
	ErrNoItems         = errors.New("checkout: at least one item is required")

	// ErrPersistenceConflict reports that the store rejected the attempt
	// because of a concurrent transaction. The whole workflow is retried
	// from the first read; stock snapshots taken so far may be stale.
	ErrPersistenceConflict = errors.New("checkout: persistence conflict")
)

// ProductNotFoundError reports an unknown product in the cart. Detected
// before any external side effect.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("checkout: product not found: %s", e.ProductID)
}

// InsufficientStockError reports a failed reservation. Available carries the
// stock snapshot read inside the same transaction.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("checkout: insufficient stock for %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// PaymentDeclinedError is a terminal business decline. Reserved stock has
// already been released when it surfaces.
type PaymentDeclinedError struct {
	Reason string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("checkout: payment declined: %s", e.Reason)
}

// GatewayUnavailableError reports that the gateway could not be reached
// within the attempt budget. Compensation has already run; the caller may
// retry the whole submission.
type GatewayUnavailableError struct {
	Err error
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("checkout: payment gateway unavailable: %v", e.Err)
}

func (e *GatewayUnavailableError) Unwrap() error { return e.Err }

// ReconciliationRequiredError reports the one state the system cannot
// self-heal: the gateway captured the charge but the local commit failed.
// The charge is journaled for manual intervention before this surfaces.
type ReconciliationRequiredError struct {
	OrderID        string
	TransactionRef string
}

func (e *ReconciliationRequiredError) Error() string {
	return fmt.Sprintf("checkout: order %s requires manual reconciliation (charge %s captured, commit failed)",
		e.OrderID, e.TransactionRef)
}

// IsTransient reports whether the caller may retry the submission as-is.
func IsTransient(err error) bool {
	var gw *GatewayUnavailableError
	return errors.As(err, &gw) || errors.Is(err, ErrPersistenceConflict)
}
