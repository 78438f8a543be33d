package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/storefront-go/storefront/internal/domain/catalog"
	domorder "github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/payment"
	"github.com/storefront-go/storefront/internal/domain/storage"
	"github.com/storefront-go/storefront/internal/infrastructure/memory"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%04d", s.n)
}

// scriptedGateway replays queued outcomes and records every charge attempt.
type scriptedGateway struct {
	mu      sync.Mutex
	script  []func(ctx context.Context) (payment.ChargeResult, error)
	charges int
}

func approve(ref string) func(context.Context) (payment.ChargeResult, error) {
	return func(context.Context) (payment.ChargeResult, error) {
		return payment.ChargeResult{Approved: true, TransactionRef: ref}, nil
	}
}

func decline(reason string) func(context.Context) (payment.ChargeResult, error) {
	return func(context.Context) (payment.ChargeResult, error) {
		return payment.ChargeResult{Approved: false, DeclineReason: reason}, nil
	}
}

func unreachable() func(context.Context) (payment.ChargeResult, error) {
	return func(context.Context) (payment.ChargeResult, error) {
		return payment.ChargeResult{}, fmt.Errorf("%w: connection refused", payment.ErrGatewayUnavailable)
	}
}

func hang() func(context.Context) (payment.ChargeResult, error) {
	return func(ctx context.Context) (payment.ChargeResult, error) {
		<-ctx.Done()
		return payment.ChargeResult{}, fmt.Errorf("%w: %w", payment.ErrGatewayUnavailable, ctx.Err())
	}
}

func (g *scriptedGateway) Charge(ctx context.Context, _ payment.ChargeRequest) (payment.ChargeResult, error) {
	g.mu.Lock()
	g.charges++
	var step func(context.Context) (payment.ChargeResult, error)
	if len(g.script) > 0 {
		step = g.script[0]
		g.script = g.script[1:]
	}
	g.mu.Unlock()

	if step == nil {
		step = approve("tx_default")
	}
	return step(ctx)
}

func (g *scriptedGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges
}

type stubResolver struct {
	gw payment.Gateway
}

func (r stubResolver) Resolve(payment.Method) (payment.Gateway, error) { return r.gw, nil }

// flakyOrders wraps the order repository, failing the first insertFailures
// inserts with a storage conflict.
type flakyOrders struct {
	domorder.Repository
	mu             sync.Mutex
	insertFailures int
}

func (r *flakyOrders) Insert(ctx context.Context, tx storage.Tx, o *domorder.Order) error {
	r.mu.Lock()
	fail := r.insertFailures > 0
	if fail {
		r.insertFailures--
	}
	r.mu.Unlock()
	if fail {
		return storage.ErrConflict
	}
	return r.Repository.Insert(ctx, tx, o)
}

// brokenCommit wraps the manager, failing every commit.
type brokenCommit struct {
	storage.Manager
}

func (m brokenCommit) Commit(context.Context, storage.Tx) error {
	return errors.New("store gone away")
}

// ctxBoundOrders fails writes once the request context is cancelled, the way
// a repository issuing statements against the caller's context would.
type ctxBoundOrders struct {
	domorder.Repository
}

func (r ctxBoundOrders) Update(ctx context.Context, tx storage.Tx, o *domorder.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.Repository.Update(ctx, tx, o)
}

// ctxBoundManager fails commits once the request context is cancelled.
type ctxBoundManager struct {
	storage.Manager
}

func (m ctxBoundManager) Commit(ctx context.Context, tx storage.Tx) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Manager.Commit(ctx, tx)
}

type fixture struct {
	store    *memory.Store
	products catalog.Repository
	orders   domorder.Repository
	gateway  *scriptedGateway
	journal  *memory.ReconciliationJournal
	svc      *Service
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.NewStore(),
		gateway: &scriptedGateway{},
		journal: memory.NewReconciliationJournal(),
	}
	f.products = memory.NewProductRepository(f.store)
	f.orders = memory.NewOrderRepository(f.store)

	f.svc = NewService(
		f.store, f.products, f.orders,
		stubResolver{gw: f.gateway},
		f.journal,
		&seqIDs{},
		nil,
		policy,
		nil,
	)
	return f
}

func (f *fixture) seedProduct(t *testing.T, id string, price int64, stock int) {
	t.Helper()
	p, err := catalog.New(id, "product "+id, "", price, stock, "test")
	require.NoError(t, err)
	require.NoError(t, f.products.Insert(context.Background(), nil, p))
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.products.Find(context.Background(), nil, id)
	require.NoError(t, err)
	return p.Stock
}

func validShipping() domorder.ShippingAddress {
	return domorder.ShippingAddress{
		Street:  "1 Main St",
		City:    "Springfield",
		State:   "IL",
		ZipCode: "62701",
		Country: "US",
	}
}

func input(items ...CartItem) PlaceOrderInput {
	return PlaceOrderInput{
		BuyerID:       "buyer-1",
		Items:         items,
		PaymentMethod: "stripe",
		Shipping:      validShipping(),
	}
}

func TestPlaceOrderSuccess(t *testing.T) {
	f := newFixture(t, Policy{})
	f.seedProduct(t, "p1", 1500, 5)
	f.seedProduct(t, "p2", 700, 3)
	f.gateway.script = []func(context.Context) (payment.ChargeResult, error){approve("tx_1")}

	result, err := f.svc.PlaceOrder(context.Background(),
		input(CartItem{ProductID: "p1", Quantity: 2}, CartItem{ProductID: "p2", Quantity: 1}))
	require.NoError(t, err)

	ord := result.Order
	assert.Equal(t, domorder.StatusConfirmed, ord.Status)
	assert.Equal(t, domorder.PaymentCompleted, ord.Payment.Status)
	assert.Equal(t, "tx_1", ord.Payment.TransactionRef)
	assert.NotNil(t, ord.Payment.PaidAt)
	assert.Equal(t, int64(2*1500+700), ord.Total)
	assert.Equal(t, ord.Total, ord.Payment.Amount)

	assert.Equal(t, 3, f.stock(t, "p1"))
	assert.Equal(t, 2, f.stock(t, "p2"))

	persisted, err := f.orders.Find(context.Background(), nil, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusConfirmed, persisted.Status)
}

func TestPlaceOrderSnapshotsPriceAndName(t *testing.T) {
	f := newFixture(t, Policy{})
	f.seedProduct(t, "p1", 999, 10)

	result, err := f.svc.PlaceOrder(context.Background(), input(CartItem{ProductID: "p1", Quantity: 3}))
	require.NoError(t, err)

	require.Len(t, result.Order.Items, 1)
	item := result.Order.Items[0]
	assert.Equal(t, int64(999), item.UnitPrice)
	assert.Equal(t, "product p1", item.Name)
	assert.Equal(t, int64(2997), item.LineTotal)
}

func TestPlaceOrderProductNotFound(t *testing.T) {
	f := newFixture(t, Policy{})
	f.seedProduct(t, "p1", 100, 5)

	_, err := f.svc.PlaceOrder(context.Background(), input(
		CartItem{ProductID: "p1", Quantity: 1},
		CartItem{ProductID: "ghost", Quantity: 1},
	))

	var notFound *ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.ProductID)
	// The reservation taken for p1 before the failure is rolled back.
	assert.Equal(t, 5, f.stock(t, "p1"))
	assert.Zero(t, f.gateway.chargeCount())
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	f := newFixture(t, Policy{})
	f.seedProduct(t, "p1", 100, 5)
	f.seedProduct(t, "p2", 100, 1)

	_, err := f.svc.PlaceOrder(context.Background(), input(
		CartItem{ProductID: "p1", Quantity: 2},
		CartItem{ProductID: "p2", Quantity: 4},
	))

	var noStock *InsufficientStockError
	require.ErrorAs(t, err, &noStock)
	assert.Equal(t, "p2", noStock.ProductID)
	assert.Equal(t, 4, noStock.Requested)
	assert.Equal(t, 1, noStock.Available)

	assert.Equal(t, 5, f.stock(t, "p1"))
	assert.Equal(t, 1, f.stock(t, "p2"))
	assert.Zero(t, f.gateway.chargeCount())
}

func TestPlaceOrderValidationFailsFast(t *testing.T) {
	f := newFixture(t, Policy{})
	f.seedProduct(t, "p1", 100, 5)

	cases := []struct {
		name string
		in   PlaceOrderInput
		want error
	}{
		{"no items", PlaceOrderInput{BuyerID: "b", PaymentMethod: "stripe", Shipping: validShipping()}, ErrNoItems},
		{"zero quantity", input(CartItem{ProductID: "p1", Quantity: 0}), ErrInvalidQuantity},
		{"negative quantity", input(CartItem{ProductID: "p1", Quantity: -2}), ErrInvalidQuantity},
		{"missing buyer", PlaceOrderInput{Items: []CartItem{{ProductID: "p1", Quantity: 1}}, PaymentMethod: "stripe", Shipping: validShipping()}, domorder.ErrInvalidBuyer},
		{"unknown method", PlaceOrderInput{BuyerID: "b", Items: []CartItem{{ProductID: "p1", Quantity: 1}}, PaymentMethod: "barter", Shipping: validShipping()}, payment.ErrUnsupportedMethod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.PlaceOrder(context.Background(), tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}

	assert.Equal(t, 5, f.stock(t, "p1"))
	assert.Zero(t, f.gateway.chargeCount())
}

func TestPlaceOrderPaymentDeclinedCompensates(t *testing.T) {
	f := newFixture(t, Policy{})
	f.seedProduct(t, "p1", 2000, 4)
	f.gateway.script = []func(context.Context) (payment.ChargeResult, error){decline("insufficient funds")}

	_, err := f.svc.PlaceOrder(context.Background(), input(CartItem{ProductID: "p1", Quantity: 3}))

	var declined *PaymentDeclinedError
	require.ErrorAs(t, err, &declined)
	assert.Equal(t, "insufficient funds", declined.Reason)

	// Reservation rolled back, declines never retried, nothing persisted.
	assert.Equal(t, 4, f.stock(t, "p1"))
	assert.Equal(t, 1, f.gateway.chargeCount())

	orders, total, lerr := f.orders.List(context.Background(), nil, domorder.ListFilter{BuyerID: "buyer-1"})
	require.NoError(t, lerr)
	assert.Empty(t, orders)
	assert.Zero(t, total)
}

func TestPlaceOrderGatewayUnreachableRetriesThenFails(t *testing.T) {
	f := newFixture(t, Policy{GatewayRetries: 2})
	f.seedProduct(t, "p1", 100, 5)
	f.gateway.script = []func(context.Context) (payment.ChargeResult, error){
		unreachable(), unreachable(), unreachable(),
	}

	_, err := f.svc.PlaceOrder(context.Background(), input(CartItem{ProductID: "p1", Quantity: 1}))

	var gw *GatewayUnavailableError
	require.ErrorAs(t, err, &gw)
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	assert.Equal(t, 3, f.gateway.chargeCount())
	assert.Equal(t, 5, f.stock(t, "p1"))
	assert.True(t, IsTransient(err))
}

func TestPlaceOrderGatewayRecoversWithinBudget(t *testing.T) {
	f := newFixture(t, Policy{GatewayRetries: 2})
	f.seedProduct(t, "p1", 100, 5)
	f.gateway.script = []func(context.Context) (payment.ChargeResult, error){
		unreachable(), approve("tx_retry"),
	}

	result, err := f.svc.PlaceOrder(context.Background(), input(CartItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, "tx_retry", result.Order.Payment.TransactionRef)
	assert.Equal(t, 2, f.gateway.chargeCount())
	assert.Equal(t, 4, f.stock(t, "p1"))
}

func TestPlaceOrderGatewayTimeoutIsUnavailable(t *testing.T) {
	f := newFixture(t, Policy{GatewayTimeout: 20 * time.Millisecond, GatewayRetries: 1})
	f.seedProduct(t, "p1", 100, 5)
	f.gateway.script = []func(context.Context) (payment.ChargeResult, error){hang(), hang()}

	start := time.Now()
	_, err := f.svc.PlaceOrder(context.Background(), input(CartItem{ProductID: "p1", Quantity: 1}))

	var gw *GatewayUnavailableError
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, 2, f.gateway.chargeCount())
	assert.Equal(t, 5, f.stock(t, "p1"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPlaceOrderConflictRestartsWorkflow(t *testing.T) {
	f := newFixture(t, Policy{CommitRetries: 3})
	flaky := &flakyOrders{Repository: f.orders, insertFailures: 2}
	f.svc.orders = flaky
	f.seedProduct(t, "p1", 100, 5)

	result, err := f.svc.PlaceOrder(context.Background(), input(CartItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusConfirmed, result.Order.Status)
	// Two aborted attempts plus the final one leave exactly one decrement.
	assert.Equal(t, 4, f.stock(t, "p1"))
}

func TestPlaceOrderConflictBudgetExhausted(t *testing.T) {
	f := newFixture(t, Policy{CommitRetries: 1})
	flaky := &flakyOrders{Repository: f.orders, insertFailures: 5}
	f.svc.orders = flaky
	f.seedProduct(t, "p1", 100, 5)

	_, err := f.svc.PlaceOrder(context.Background(), input(CartItem{ProductID: "p1", Quantity: 1}))
	require.ErrorIs(t, err, ErrPersistenceConflict)
	assert.Equal(t, 5, f.stock(t, "p1"))
	assert.True(t, IsTransient(err))
}

func TestPlaceOrderCommitFailureAfterCapture(t *testing.T) {
	f := newFixture(t, Policy{})
	f.svc.txm = brokenCommit{Manager: f.store}
	f.seedProduct(t, "p1", 100, 5)
	f.gateway.script = []func(context.Context) (payment.ChargeResult, error){approve("tx_cap")}

	_, err := f.svc.PlaceOrder(context.Background(), input(CartItem{ProductID: "p1", Quantity: 1}))

	var recon *ReconciliationRequiredError
	require.ErrorAs(t, err, &recon)
	assert.Equal(t, "tx_cap", recon.TransactionRef)
	assert.False(t, IsTransient(err), "retrying after capture would double-charge")

	entries, jerr := f.journal.ListOpen(context.Background())
	require.NoError(t, jerr)
	require.Len(t, entries, 1)
	assert.Equal(t, recon.OrderID, entries[0].OrderID)
	assert.Equal(t, "tx_cap", entries[0].TransactionRef)
	assert.Equal(t, int64(100), entries[0].Amount)
}

func TestPlaceOrderClientDisconnectAfterCaptureStillCommits(t *testing.T) {
	f := newFixture(t, Policy{})
	f.svc.orders = ctxBoundOrders{Repository: f.orders}
	f.svc.txm = ctxBoundManager{Manager: f.store}
	f.seedProduct(t, "p1", 100, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gateway.script = []func(context.Context) (payment.ChargeResult, error){
		func(context.Context) (payment.ChargeResult, error) {
			// The buyer hangs up while the processor is settling.
			cancel()
			return payment.ChargeResult{Approved: true, TransactionRef: "tx_gone"}, nil
		},
	}

	result, err := f.svc.PlaceOrder(ctx, input(CartItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusConfirmed, result.Order.Status)
	assert.Equal(t, "tx_gone", result.Order.Payment.TransactionRef)
	assert.Equal(t, 4, f.stock(t, "p1"))

	persisted, err := f.orders.Find(context.Background(), nil, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusConfirmed, persisted.Status)

	entries, err := f.journal.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries, "a captured charge must not become a reconciliation incident")
}

func TestPlaceOrderConcurrentNoOversell(t *testing.T) {
	const stock, buyers = 5, 20

	f := newFixture(t, Policy{})
	f.seedProduct(t, "p1", 100, stock)

	var g errgroup.Group
	results := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			in := input(CartItem{ProductID: "p1", Quantity: 1})
			in.BuyerID = fmt.Sprintf("buyer-%02d", i)
			_, err := f.svc.PlaceOrder(context.Background(), in)
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var confirmed, rejected int
	for _, err := range results {
		if err == nil {
			confirmed++
			continue
		}
		var noStock *InsufficientStockError
		require.ErrorAs(t, err, &noStock)
		rejected++
	}

	assert.Equal(t, stock, confirmed)
	assert.Equal(t, buyers-stock, rejected)
	assert.Equal(t, 0, f.stock(t, "p1"))

	_, total, err := f.orders.List(context.Background(), nil, domorder.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(stock), total)
}
