package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/storefront-go/storefront/internal/domain/catalog"
	"github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/storage"
)

const storeName = "memory"

// Store is an in-process transactional record store. Stock mutations apply
// immediately under the store lock, which makes the conditional decrement
// the serialization boundary for concurrent checkouts, and each transaction
// keeps an undo log so Rollback restores the pre-attempt state. Order writes
// are staged per transaction and only become visible at Commit, so readers
// never observe a pending order that a workflow later aborts.
type Store struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
	orders   map[string]*order.Order
	releases map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		products: make(map[string]*catalog.Product),
		orders:   make(map[string]*order.Order),
		releases: make(map[string]struct{}),
	}
}

type memTx struct {
	store        *Store
	mu           sync.Mutex
	closed       bool
	undo         []func()
	stagedOrders map[string]*order.Order
}

func (t *memTx) StoreName() string { return storeName }

// Begin opens a transaction handle. The store itself never conflicts on
// Begin; conflicts surface on guarded writes.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{
		store:        s,
		stagedOrders: make(map[string]*order.Order),
	}, nil
}

func (s *Store) Commit(ctx context.Context, tx storage.Tx) error {
	t, err := s.resolve(tx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return storage.ErrTxClosed
	}

	s.mu.Lock()
	for id, o := range t.stagedOrders {
		s.orders[id] = o.Clone()
	}
	s.mu.Unlock()

	t.closed = true
	t.undo = nil
	t.stagedOrders = nil
	return nil
}

func (s *Store) Rollback(ctx context.Context, tx storage.Tx) error {
	t, err := s.resolve(tx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return storage.ErrTxClosed
	}

	s.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	s.mu.Unlock()

	t.closed = true
	t.undo = nil
	t.stagedOrders = nil
	return nil
}

// resolve validates a handle. A nil handle is permitted for autocommit
// reads and writes and resolves to nil.
func (s *Store) resolve(tx storage.Tx) (*memTx, error) {
	if tx == nil {
		return nil, nil
	}
	t, ok := tx.(*memTx)
	if !ok || t.store != s {
		return nil, fmt.Errorf("%w: got %q", storage.ErrForeignTx, tx.StoreName())
	}
	return t, nil
}

// open resolves a handle and rejects closed ones.
func (s *Store) open(tx storage.Tx) (*memTx, error) {
	t, err := s.resolve(tx)
	if err != nil {
		return nil, err
	}
	if t != nil && t.isClosed() {
		return nil, storage.ErrTxClosed
	}
	return t, nil
}

func (t *memTx) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *memTx) pushUndo(fn func()) {
	t.mu.Lock()
	t.undo = append(t.undo, fn)
	t.mu.Unlock()
}

func (t *memTx) stageOrder(o *order.Order) {
	t.mu.Lock()
	t.stagedOrders[o.ID] = o.Clone()
	t.mu.Unlock()
}

func (t *memTx) stagedOrder(id string) (*order.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.stagedOrders[id]
	return o, ok
}

func releaseKeyString(key catalog.ReleaseKey) string {
	return key.OrderID + "/" + key.ProductID
}
