package order

import (
	"context"
	"time"

	"github.com/storefront-go/storefront/internal/domain/storage"
)

type Page struct {
	Number  int
	PerPage int
}

type ListFilter struct {
	BuyerID string
	Status  Status
	Page    Page
}

// Repository persists order aggregates. Writes are issued against an
// explicit transaction handle; a nil handle reads committed state. Reads
// inside a transaction observe that transaction's own staged writes.
type Repository interface {
	Insert(ctx context.Context, tx storage.Tx, o *Order) error
	Update(ctx context.Context, tx storage.Tx, o *Order) error
	Find(ctx context.Context, tx storage.Tx, id string) (*Order, error)
	List(ctx context.Context, tx storage.Tx, f ListFilter) ([]*Order, int64, error)

	// DeleteAbandoned removes orders still pending with an unsettled payment
	// created before the cutoff. The workflow never commits such rows; this
	// is a defensive sweep for data written by older code paths.
	DeleteAbandoned(ctx context.Context, tx storage.Tx, cutoff time.Time) (int64, error)
}
