package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storefront-go/storefront/internal/domain/catalog"
	domain "github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/outbox"
	"github.com/storefront-go/storefront/internal/domain/storage"
	"github.com/storefront-go/storefront/internal/observability"
	"github.com/storefront-go/storefront/internal/observability/logctx"
)

const (
	componentOrders = "order_service"
	publishTimeout  = 300 * time.Millisecond
)

type ListResult struct {
	Orders  []*domain.Order
	Total   int64
	Page    int
	PerPage int
}

// Service covers order reads and administrative lifecycle updates. Order
// placement itself belongs to the checkout workflow.
type Service struct {
	txm       storage.Manager
	orders    domain.Repository
	products  catalog.Repository
	publisher outbox.Publisher
	log       observability.Logger
}

func NewService(txm storage.Manager, orders domain.Repository, products catalog.Repository, publisher outbox.Publisher, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		txm:       txm,
		orders:    orders,
		products:  products,
		publisher: publisher,
		log:       logger.With(observability.F("component", componentOrders)),
	}
}

// Get loads one order. A non-empty buyerID scopes the lookup: another
// buyer's order reads as not found rather than forbidden.
func (s *Service) Get(ctx context.Context, id, buyerID string) (*domain.Order, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}
	ord, err := s.orders.Find(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if buyerID != "" && ord.BuyerID != buyerID {
		return nil, domain.ErrNotFound
	}
	return ord, nil
}

func (s *Service) List(ctx context.Context, f domain.ListFilter) (*ListResult, error) {
	orders, total, err := s.orders.List(ctx, nil, f)
	if err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	page, perPage := f.Page.Number, f.Page.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	return &ListResult{Orders: orders, Total: total, Page: page, PerPage: perPage}, nil
}

// UpdateStatus applies an administrative lifecycle transition. Cancelling a
// confirmed order owes its reserved stock back to the catalog; the restore
// runs in the same transaction as the status change, keyed per order line so
// a retried cancellation cannot restore twice.
func (s *Service) UpdateStatus(ctx context.Context, id string, to domain.Status) (_ *domain.Order, err error) {
	logger := logctx.FromOr(ctx, s.log)

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("order: begin: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := s.txm.Rollback(context.WithoutCancel(ctx), tx); rbErr != nil {
			logger.Error("rollback_failed", observability.F("error", rbErr.Error()))
		}
	}()

	ord, err := s.orders.Find(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := ord.Advance(to); err != nil {
		return nil, err
	}

	if ord.Cancelled() {
		for _, item := range ord.Items {
			key := catalog.ReleaseKey{OrderID: ord.ID, ProductID: item.ProductID}
			if err := s.products.IncrementStock(ctx, tx, key, item.Quantity); err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					// Product removed from the catalog since purchase;
					// nothing left to restore.
					logger.Warn("stock_restore_skipped",
						observability.F("order_id", ord.ID),
						observability.F("product_id", item.ProductID),
					)
					continue
				}
				return nil, fmt.Errorf("order: restore stock: %w", err)
			}
		}
	}

	if err := s.orders.Update(ctx, tx, ord); err != nil {
		return nil, fmt.Errorf("order: update: %w", err)
	}
	if err := s.txm.Commit(ctx, tx); err != nil {
		return nil, fmt.Errorf("order: commit: %w", err)
	}
	committed = true

	logger.Info("order_status_updated",
		observability.F("order_id", ord.ID),
		observability.F("status", string(ord.Status)),
	)

	if ord.Cancelled() && s.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if perr := s.publisher.Publish(pubCtx, domain.NewOrderCancelledEvent(ord)); perr != nil {
			logger.Warn("event_publish_failed",
				observability.F("event", domain.EventOrderCancelled),
				observability.F("order_id", ord.ID),
				observability.F("error", perr.Error()),
			)
		}
	}
	return ord, nil
}

// SweepAbandoned deletes orders stuck pending with an unsettled payment for
// longer than maxAge. The checkout workflow never commits such rows; the
// sweep guards against data left behind by older code paths.
func (s *Service) SweepAbandoned(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	deleted, err := s.orders.DeleteAbandoned(ctx, nil, cutoff)
	if err != nil {
		return 0, fmt.Errorf("order: sweep abandoned: %w", err)
	}
	if deleted > 0 {
		logctx.FromOr(ctx, s.log).Info("abandoned_orders_swept",
			observability.F("deleted", deleted),
			observability.F("cutoff", cutoff),
		)
	}
	return deleted, nil
}
