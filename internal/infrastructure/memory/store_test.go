package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-go/storefront/internal/domain/catalog"
	"github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/payment"
	"github.com/storefront-go/storefront/internal/domain/reconciliation"
	"github.com/storefront-go/storefront/internal/domain/storage"
)

func seedProduct(t *testing.T, products *ProductRepository, id string, stock int) *catalog.Product {
	t.Helper()
	p, err := catalog.New(id, "product "+id, "", 100, stock, "test")
	require.NoError(t, err)
	require.NoError(t, products.Insert(context.Background(), nil, p))
	return p
}

func makeOrder(t *testing.T, id string) *order.Order {
	t.Helper()
	o, err := order.New(id, "buyer-1",
		[]order.LineItem{{ProductID: "p1", Name: "product p1", UnitPrice: 100, Quantity: 1}},
		payment.MethodCash, "USD",
		order.ShippingAddress{Street: "s", City: "c", State: "st", ZipCode: "z", Country: "US"},
	)
	require.NoError(t, err)
	return o
}

func TestRollbackUndoesStockDecrement(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	products := NewProductRepository(store)
	seedProduct(t, products, "p1", 5)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	ok, err := products.DecrementStock(ctx, tx, "p1", 3)
	require.NoError(t, err)
	require.True(t, ok)

	p, err := products.Find(ctx, nil, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock, "decrement is visible immediately")

	require.NoError(t, store.Rollback(ctx, tx))

	p, err = products.Find(ctx, nil, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestDecrementStockGuard(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	products := NewProductRepository(store)
	seedProduct(t, products, "p1", 2)

	ok, err := products.DecrementStock(ctx, nil, "p1", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	p, _ := products.Find(ctx, nil, "p1")
	assert.Equal(t, 2, p.Stock)

	_, err = products.DecrementStock(ctx, nil, "ghost", 1)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = products.DecrementStock(ctx, nil, "p1", 0)
	assert.ErrorIs(t, err, catalog.ErrInvalidQuantity)
}

func TestStagedOrderInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	orders := NewOrderRepository(store)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	o := makeOrder(t, "o1")
	require.NoError(t, orders.Insert(ctx, tx, o))

	// The transaction reads its own write.
	got, err := orders.Find(ctx, tx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ID)

	// Outside the transaction the order does not exist yet.
	_, err = orders.Find(ctx, nil, "o1")
	assert.ErrorIs(t, err, order.ErrNotFound)

	require.NoError(t, store.Commit(ctx, tx))

	got, err = orders.Find(ctx, nil, "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ID)
}

func TestRollbackDropsStagedOrders(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	orders := NewOrderRepository(store)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, orders.Insert(ctx, tx, makeOrder(t, "o1")))
	require.NoError(t, store.Rollback(ctx, tx))

	_, err = orders.Find(ctx, nil, "o1")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestIncrementStockIdempotentPerKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	products := NewProductRepository(store)
	seedProduct(t, products, "p1", 0)

	key := catalog.ReleaseKey{OrderID: "o1", ProductID: "p1"}
	require.NoError(t, products.IncrementStock(ctx, nil, key, 3))
	require.NoError(t, products.IncrementStock(ctx, nil, key, 3))

	p, _ := products.Find(ctx, nil, "p1")
	assert.Equal(t, 3, p.Stock, "replaying an applied key must not restore twice")

	// A different order's release for the same product still applies.
	require.NoError(t, products.IncrementStock(ctx, nil, catalog.ReleaseKey{OrderID: "o2", ProductID: "p1"}, 2))
	p, _ = products.Find(ctx, nil, "p1")
	assert.Equal(t, 5, p.Stock)
}

func TestClosedAndForeignHandlesRejected(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	other := NewStore()
	products := NewProductRepository(store)
	seedProduct(t, products, "p1", 5)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx, tx))

	err = store.Commit(ctx, tx)
	assert.ErrorIs(t, err, storage.ErrTxClosed)
	err = store.Rollback(ctx, tx)
	assert.ErrorIs(t, err, storage.ErrTxClosed)
	_, err = products.DecrementStock(ctx, tx, "p1", 1)
	assert.ErrorIs(t, err, storage.ErrTxClosed)

	foreign, err := other.Begin(ctx)
	require.NoError(t, err)
	_, err = products.Find(ctx, foreign, "p1")
	assert.ErrorIs(t, err, storage.ErrForeignTx)
}

func TestDeleteAbandoned(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	orders := NewOrderRepository(store)

	stale := makeOrder(t, "stale")
	stale.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, orders.Insert(ctx, nil, stale))

	fresh := makeOrder(t, "fresh")
	require.NoError(t, orders.Insert(ctx, nil, fresh))

	settled := makeOrder(t, "settled")
	settled.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, settled.PaymentCompleted("tx_1", time.Now()))
	settled.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, orders.Insert(ctx, nil, settled))

	deleted, err := orders.DeleteAbandoned(ctx, nil, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = orders.Find(ctx, nil, "stale")
	assert.ErrorIs(t, err, order.ErrNotFound)
	_, err = orders.Find(ctx, nil, "fresh")
	assert.NoError(t, err)
	_, err = orders.Find(ctx, nil, "settled")
	assert.NoError(t, err)
}

func TestReconciliationJournal(t *testing.T) {
	ctx := context.Background()
	j := NewReconciliationJournal()

	require.NoError(t, j.Append(ctx, reconciliation.Entry{ID: "r1", OrderID: "o1", TransactionRef: "tx_1", Amount: 100}))

	open, err := j.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "tx_1", open[0].TransactionRef)

	require.NoError(t, j.Resolve(ctx, "r1"))
	open, err = j.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	assert.ErrorIs(t, j.Resolve(ctx, "ghost"), reconciliation.ErrNotFound)
}

func TestListOrdersFilters(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	orders := NewOrderRepository(store)

	a := makeOrder(t, "a")
	require.NoError(t, orders.Insert(ctx, nil, a))

	b := makeOrder(t, "b")
	b.BuyerID = "buyer-2"
	require.NoError(t, orders.Insert(ctx, nil, b))

	got, total, err := orders.List(ctx, nil, order.ListFilter{BuyerID: "buyer-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	got, total, err = orders.List(ctx, nil, order.ListFilter{Status: order.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, got, 2)
}
