package memory

import (
	"context"
	"sort"
	"time"

	"github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/storage"
)

type OrderRepository struct {
	store *Store
}

func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// Insert stages the order on the transaction; it becomes visible to other
// readers only at Commit. A nil handle writes through immediately.
func (r *OrderRepository) Insert(ctx context.Context, tx storage.Tx, o *order.Order) error {
	_ = ctx
	t, err := r.store.open(tx)
	if err != nil {
		return err
	}
	if o == nil || o.ID == "" {
		return order.ErrNotFound
	}

	s := r.store
	s.mu.Lock()
	_, exists := s.orders[o.ID]
	s.mu.Unlock()
	if exists {
		return order.ErrConflict
	}

	if t == nil {
		s.mu.Lock()
		s.orders[o.ID] = o.Clone()
		s.mu.Unlock()
		return nil
	}
	if _, staged := t.stagedOrder(o.ID); staged {
		return order.ErrConflict
	}
	t.stageOrder(o)
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, tx storage.Tx, o *order.Order) error {
	_ = ctx
	t, err := r.store.open(tx)
	if err != nil {
		return err
	}
	if o == nil || o.ID == "" {
		return order.ErrNotFound
	}

	if t != nil {
		if _, staged := t.stagedOrder(o.ID); staged {
			t.stageOrder(o)
			return nil
		}
	}

	s := r.store
	s.mu.Lock()
	_, exists := s.orders[o.ID]
	s.mu.Unlock()
	if !exists {
		return order.ErrNotFound
	}

	if t == nil {
		s.mu.Lock()
		s.orders[o.ID] = o.Clone()
		s.mu.Unlock()
		return nil
	}
	t.stageOrder(o)
	return nil
}

// Find observes the transaction's own staged writes first, then committed
// state.
func (r *OrderRepository) Find(ctx context.Context, tx storage.Tx, id string) (*order.Order, error) {
	_ = ctx
	t, err := r.store.open(tx)
	if err != nil {
		return nil, err
	}

	if t != nil {
		if o, ok := t.stagedOrder(id); ok {
			return o.Clone(), nil
		}
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepository) List(ctx context.Context, tx storage.Tx, f order.ListFilter) ([]*order.Order, int64, error) {
	_ = ctx
	if _, err := r.store.open(tx); err != nil {
		return nil, 0, err
	}

	s := r.store
	s.mu.Lock()
	all := make([]*order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.BuyerID != "" && o.BuyerID != f.BuyerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		all = append(all, o.Clone())
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	page, perPage := normalizePage(f.Page.Number, f.Page.PerPage)
	start := (page - 1) * perPage
	if start >= len(all) {
		return []*order.Order{}, total, nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *OrderRepository) DeleteAbandoned(ctx context.Context, tx storage.Tx, cutoff time.Time) (int64, error) {
	_ = ctx
	if _, err := r.store.open(tx); err != nil {
		return 0, err
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, o := range s.orders {
		if o.Status == order.StatusPending && o.Payment.Status == order.PaymentPending && o.CreatedAt.Before(cutoff) {
			delete(s.orders, id)
			deleted++
		}
	}
	return deleted, nil
}
