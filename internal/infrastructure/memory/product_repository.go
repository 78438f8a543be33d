package memory

import (
	"context"
	"sort"

	"github.com/storefront-go/storefront/internal/domain/catalog"
	"github.com/storefront-go/storefront/internal/domain/storage"
)

type ProductRepository struct {
	store *Store
}

func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{store: store}
}

func (r *ProductRepository) Insert(ctx context.Context, tx storage.Tx, p *catalog.Product) error {
	_ = ctx
	t, err := r.store.open(tx)
	if err != nil {
		return err
	}
	if p == nil || p.ID == "" {
		return catalog.ErrInvalidName
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID]; exists {
		return storage.ErrConflict
	}
	s.products[p.ID] = p.Clone()

	if t != nil {
		id := p.ID
		t.pushUndo(func() { delete(s.products, id) })
	}
	return nil
}

func (r *ProductRepository) Find(ctx context.Context, tx storage.Tx, id string) (*catalog.Product, error) {
	_ = ctx
	if _, err := r.store.open(tx); err != nil {
		return nil, err
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) List(ctx context.Context, tx storage.Tx, f catalog.ListFilter) ([]*catalog.Product, int64, error) {
	_ = ctx
	if _, err := r.store.open(tx); err != nil {
		return nil, 0, err
	}

	s := r.store
	s.mu.Lock()
	all := make([]*catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		all = append(all, p.Clone())
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	page, perPage := normalizePage(f.Page, f.PerPage)
	start := (page - 1) * perPage
	if start >= len(all) {
		return []*catalog.Product{}, total, nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// DecrementStock applies the guarded decrement under the store lock and
// registers the inverse on the transaction's undo log.
func (r *ProductRepository) DecrementStock(ctx context.Context, tx storage.Tx, id string, qty int) (bool, error) {
	_ = ctx
	t, err := r.store.open(tx)
	if err != nil {
		return false, err
	}
	if qty <= 0 {
		return false, catalog.ErrInvalidQuantity
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return false, catalog.ErrNotFound
	}
	if p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty

	if t != nil {
		t.pushUndo(func() {
			if cur, ok := s.products[id]; ok {
				cur.Stock += qty
			}
		})
	}
	return true, nil
}

// IncrementStock restores stock once per release key; replays are no-ops.
func (r *ProductRepository) IncrementStock(ctx context.Context, tx storage.Tx, key catalog.ReleaseKey, qty int) error {
	_ = ctx
	t, err := r.store.open(tx)
	if err != nil {
		return err
	}
	if qty <= 0 {
		return catalog.ErrInvalidQuantity
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	k := releaseKeyString(key)
	if _, applied := s.releases[k]; applied {
		return nil
	}
	p, ok := s.products[key.ProductID]
	if !ok {
		return catalog.ErrNotFound
	}
	p.Stock += qty
	s.releases[k] = struct{}{}

	if t != nil {
		t.pushUndo(func() {
			delete(s.releases, k)
			if cur, ok := s.products[key.ProductID]; ok {
				cur.Stock -= qty
			}
		})
	}
	return nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}
