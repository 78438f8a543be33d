package catalog

import (
	"context"

	"github.com/storefront-go/storefront/internal/domain/storage"
)

// ListFilter narrows and paginates catalog listings.
type ListFilter struct {
	Category string
	Page     int
	PerPage  int
}

// ReleaseKey identifies one compensating stock restore. Keyed releases let
// IncrementStock be retried safely after a commit already made the original
// decrement durable.
type ReleaseKey struct {
	OrderID   string
	ProductID string
}

// Repository persists products. Writes are issued against an explicit
// transaction handle; a nil handle reads committed state.
type Repository interface {
	Insert(ctx context.Context, tx storage.Tx, p *Product) error
	Find(ctx context.Context, tx storage.Tx, id string) (*Product, error)
	List(ctx context.Context, tx storage.Tx, f ListFilter) ([]*Product, int64, error)

	// DecrementStock atomically applies stock -= qty guarded by stock >= qty
	// and reports whether the guard held. The decrement joins the supplied
	// transaction so an abort undoes it without explicit compensation.
	DecrementStock(ctx context.Context, tx storage.Tx, id string, qty int) (bool, error)

	// IncrementStock restores stock after the original decrement became
	// durable. It is idempotent per key: replaying an applied key is a no-op.
	IncrementStock(ctx context.Context, tx storage.Tx, key ReleaseKey, qty int) error
}
