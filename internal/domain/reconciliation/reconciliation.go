package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/storefront-go/storefront/internal/domain/payment"
)

var ErrNotFound = errors.New("reconciliation: entry not found")

// Entry records a charge that was captured by the gateway while the local
// commit failed. The system cannot self-heal from this state; entries stay
// open until an operator resolves them.
type Entry struct {
	ID             string
	OrderID        string
	BuyerID        string
	Amount         int64
	Currency       string
	Method         payment.Method
	TransactionRef string
	Reason         string
	CreatedAt      time.Time
	Resolved       bool
}

// Journal is the durable record behind reconciliation-required errors.
// Append must not depend on the failed transaction.
type Journal interface {
	Append(ctx context.Context, e Entry) error
	ListOpen(ctx context.Context) ([]Entry, error)
	Resolve(ctx context.Context, id string) error
}
