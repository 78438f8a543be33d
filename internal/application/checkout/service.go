package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storefront-go/storefront/internal/domain/catalog"
	domorder "github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/outbox"
	"github.com/storefront-go/storefront/internal/domain/payment"
	"github.com/storefront-go/storefront/internal/domain/reconciliation"
	"github.com/storefront-go/storefront/internal/domain/storage"
	"github.com/storefront-go/storefront/internal/observability"
	"github.com/storefront-go/storefront/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	checkoutService   = "checkout-service"
	useCasePlaceOrder = "checkout.place_order"
	spanPrefix        = "UC."
	publishTimeout    = 300 * time.Millisecond
)

// Policy bounds the external interactions of one order submission.
type Policy struct {
	// Currency applied to every order; pricing and charging share it.
	Currency string
	// GatewayTimeout bounds a single charge attempt. Attempts that do not
	// answer within it are abandoned and treated as connectivity errors.
	GatewayTimeout time.Duration
	// GatewayRetries is the number of additional charge attempts after a
	// connectivity error. Declines are terminal and never retried.
	GatewayRetries int
	// CommitRetries is the number of full workflow restarts after a
	// persistence conflict.
	CommitRetries int
}

func (p Policy) withDefaults() Policy {
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.GatewayTimeout <= 0 {
		p.GatewayTimeout = 5 * time.Second
	}
	if p.GatewayRetries < 0 {
		p.GatewayRetries = 0
	}
	if p.CommitRetries < 0 {
		p.CommitRetries = 0
	}
	return p
}

type CartItem struct {
	ProductID string
	Quantity  int
}

type PlaceOrderInput struct {
	BuyerID       string
	Items         []CartItem
	PaymentMethod string
	Shipping      domorder.ShippingAddress
}

type PlaceOrderResult struct {
	Order *domorder.Order
}

// Service runs the order placement workflow: reserve stock, persist the
// pending order, charge the gateway, then commit on success or roll the
// transaction back on failure. Callers either get a confirmed order or a
// typed reason for rejection; they never observe a half-reserved,
// half-charged order.
type Service struct {
	txm       storage.Manager
	products  catalog.Repository
	orders    domorder.Repository
	gateways  payment.Resolver
	journal   reconciliation.Journal
	ids       IDGenerator
	publisher outbox.Publisher
	policy    Policy
	now       func() time.Time

	tel          observability.Observability
	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	reconCounter observability.Counter
	oversellHits observability.Counter
	extRequests  observability.Counter
	extDuration  observability.Histogram
}

func NewService(
	txm storage.Manager,
	products catalog.Repository,
	orders domorder.Repository,
	gateways payment.Resolver,
	journal reconciliation.Journal,
	ids IDGenerator,
	publisher outbox.Publisher,
	policy Policy,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()

	return &Service{
		txm:          txm,
		products:     products,
		orders:       orders,
		gateways:     gateways,
		journal:      journal,
		ids:          ids,
		publisher:    publisher,
		policy:       policy.withDefaults(),
		now:          func() time.Time { return time.Now().UTC() },
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", checkoutService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		reconCounter: metrics.Counter(observability.MReconciliationRequired),
		oversellHits: metrics.Counter(observability.MOversellRejected),
		extRequests:  metrics.Counter(observability.MExternalRequests),
		extDuration:  metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// PlaceOrder executes the workflow, restarting it from the first read after
// a persistence conflict up to the configured budget.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCasePlaceOrder),
		observability.F("buyer_id", in.BuyerID),
	)

	ctx, span := s.tel.Tracer().Start(ctx, spanPrefix+"PlaceOrder",
		attribute.String("use_case", useCasePlaceOrder),
		attribute.String("order.buyer_id", in.BuyerID),
		attribute.Int("order.item_count", len(in.Items)),
	)
	start := s.now()
	outcome, statusText := "success", "OK"
	var orderID string

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		s.reqCounter.Add(1,
			observability.L("use_case", useCasePlaceOrder),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat, observability.L("use_case", useCasePlaceOrder))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if orderID != "" {
			fields = append(fields, observability.F("order_id", orderID))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	method, err := s.validate(in)
	if err != nil {
		outcome, statusText = "error", "VALIDATION_FAILED"
		return nil, err
	}

	var ord *domorder.Order
	for attempt := 0; ; attempt++ {
		ord, err = s.placeOnce(ctx, logger, in, method)
		if errors.Is(err, ErrPersistenceConflict) && attempt < s.policy.CommitRetries {
			logger.Warn("place_order_conflict_retry",
				observability.F("attempt", attempt+1),
			)
			continue
		}
		break
	}
	if err != nil {
		outcome, statusText = "error", statusFor(err)
		return nil, err
	}

	orderID = ord.ID
	span.SetAttributes(
		attribute.String("order.id", ord.ID),
		attribute.Int64("order.total", ord.Total),
		attribute.String("order.status", string(ord.Status)),
	)
	return &PlaceOrderResult{Order: ord}, nil
}

// validate fails fast before any external side effect.
func (s *Service) validate(in PlaceOrderInput) (payment.Method, error) {
	if in.BuyerID == "" {
		return "", domorder.ErrInvalidBuyer
	}
	if len(in.Items) == 0 {
		return "", ErrNoItems
	}
	for _, it := range in.Items {
		if it.Quantity < 1 {
			return "", fmt.Errorf("%w: product %s", ErrInvalidQuantity, it.ProductID)
		}
	}
	method, err := payment.ParseMethod(in.PaymentMethod)
	if err != nil {
		return "", err
	}
	// Resolving up front turns a misconfigured gateway into a fast
	// validation failure instead of an aborted reservation.
	if _, err := s.gateways.Resolve(method); err != nil {
		return "", err
	}
	return method, nil
}

// placeOnce runs a single attempt inside one transactional scope. Rollback
// is the sole undo mechanism for everything written before commit; the
// explicit stock release path is reserved for post-commit compensation.
func (s *Service) placeOnce(ctx context.Context, logger observability.Logger, in PlaceOrderInput, method payment.Method) (_ *domorder.Order, err error) {
	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, classifyStorage("begin", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// The abort must run even when the caller's context is gone.
		if rbErr := s.txm.Rollback(context.WithoutCancel(ctx), tx); rbErr != nil {
			logger.Error("rollback_failed", observability.F("error", rbErr.Error()))
		}
	}()

	// Reserve stock per item, in request order. A failed guard aborts the
	// attempt; the transactional boundary undoes earlier reservations.
	items := make([]domorder.LineItem, 0, len(in.Items))
	for _, it := range in.Items {
		product, ferr := s.products.Find(ctx, tx, it.ProductID)
		if ferr != nil {
			if errors.Is(ferr, catalog.ErrNotFound) {
				return nil, &ProductNotFoundError{ProductID: it.ProductID}
			}
			return nil, classifyStorage("find product", ferr)
		}

		ok, derr := s.products.DecrementStock(ctx, tx, product.ID, it.Quantity)
		if derr != nil {
			return nil, classifyStorage("reserve stock", derr)
		}
		if !ok {
			s.oversellHits.Add(1, observability.L("product_id", product.ID))
			return nil, &InsufficientStockError{
				ProductID: product.ID,
				Requested: it.Quantity,
				Available: product.Stock,
			}
		}

		items = append(items, domorder.LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  it.Quantity,
		})
	}

	ord, err := domorder.New(s.ids.NewID(), in.BuyerID, items, method, s.policy.Currency, in.Shipping)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Insert(ctx, tx, ord); err != nil {
		return nil, classifyStorage("insert order", err)
	}

	// The charge is an external side effect outside the storage
	// transaction's atomicity guarantee.
	result, err := s.charge(ctx, logger, ord)
	if err != nil {
		return nil, &GatewayUnavailableError{Err: err}
	}
	if !result.Approved {
		if terr := ord.PaymentDeclined(result.DeclineReason); terr != nil {
			return nil, terr
		}
		logger.Info("payment_declined",
			observability.F("order_id", ord.ID),
			observability.F("reason", result.DeclineReason),
		)
		return nil, &PaymentDeclinedError{Reason: result.DeclineReason}
	}

	if err := ord.PaymentCompleted(result.TransactionRef, s.now()); err != nil {
		return nil, err
	}

	// Money has moved. From here the workflow must run to completion even if
	// the caller hangs up; a cancellable write would turn a healthy capture
	// into a reconciliation incident.
	postCtx := context.WithoutCancel(ctx)
	if err := s.orders.Update(postCtx, tx, ord); err != nil {
		return nil, s.reconcile(postCtx, logger, ord, result.TransactionRef, err)
	}

	if err := s.txm.Commit(postCtx, tx); err != nil {
		// The local state did not follow the charge. This is the one state
		// the workflow cannot repair; restarting would double-charge.
		return nil, s.reconcile(postCtx, logger, ord, result.TransactionRef, err)
	}
	committed = true

	s.publishConfirmed(postCtx, logger, ord)
	return ord, nil
}

// charge runs bounded attempts against the resolved gateway. Once stock is
// reserved the workflow must reach Confirmed or Aborted, so attempts are
// shielded from caller cancellation and bounded by the policy deadline.
func (s *Service) charge(ctx context.Context, logger observability.Logger, ord *domorder.Order) (payment.ChargeResult, error) {
	gw, err := s.gateways.Resolve(ord.Payment.Method)
	if err != nil {
		return payment.ChargeResult{}, err
	}

	req := payment.ChargeRequest{
		OrderID:  ord.ID,
		Amount:   ord.Payment.Amount,
		Currency: ord.Payment.Currency,
	}

	base := context.WithoutCancel(ctx)
	target := "gateway_" + string(ord.Payment.Method)
	attempts := 1 + s.policy.GatewayRetries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		chargeCtx, cancel := context.WithTimeout(base, s.policy.GatewayTimeout)
		start := time.Now()
		result, cerr := gw.Charge(chargeCtx, req)
		cancel()

		status := "ok"
		if cerr != nil {
			status = "error"
		}
		s.extRequests.Add(1,
			observability.L("target", target),
			observability.L("status", status),
		)
		s.extDuration.Observe(time.Since(start).Seconds(), observability.L("target", target))

		if cerr == nil {
			return result, nil
		}
		lastErr = cerr
		logger.Warn("gateway_attempt_failed",
			observability.F("order_id", ord.ID),
			observability.F("attempt", attempt),
			observability.F("error", cerr.Error()),
		)
	}
	return payment.ChargeResult{}, fmt.Errorf("%w: %w", payment.ErrGatewayUnavailable, lastErr)
}

// reconcile durably records a captured charge whose local commit failed,
// then surfaces ReconciliationRequired. Never silently dropped: when even
// the journal write fails, the error log is the record of last resort.
func (s *Service) reconcile(ctx context.Context, logger observability.Logger, ord *domorder.Order, transactionRef string, cause error) error {
	s.reconCounter.Add(1)

	entry := reconciliation.Entry{
		ID:             s.ids.NewID(),
		OrderID:        ord.ID,
		BuyerID:        ord.BuyerID,
		Amount:         ord.Payment.Amount,
		Currency:       ord.Payment.Currency,
		Method:         ord.Payment.Method,
		TransactionRef: transactionRef,
		Reason:         cause.Error(),
		CreatedAt:      s.now(),
	}

	journalCtx := context.WithoutCancel(ctx)
	if jerr := s.journal.Append(journalCtx, entry); jerr != nil {
		logger.Error("reconciliation_journal_append_failed",
			observability.F("order_id", ord.ID),
			observability.F("transaction_ref", transactionRef),
			observability.F("amount", ord.Payment.Amount),
			observability.F("currency", ord.Payment.Currency),
			observability.F("cause", cause.Error()),
			observability.F("journal_error", jerr.Error()),
		)
	} else {
		logger.Error("reconciliation_required",
			observability.F("order_id", ord.ID),
			observability.F("transaction_ref", transactionRef),
			observability.F("amount", ord.Payment.Amount),
			observability.F("cause", cause.Error()),
		)
	}

	return &ReconciliationRequiredError{OrderID: ord.ID, TransactionRef: transactionRef}
}

// publishConfirmed emits the post-commit event, best effort.
func (s *Service) publishConfirmed(ctx context.Context, logger observability.Logger, ord *domorder.Order) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, domorder.NewOrderConfirmedEvent(ord)); err != nil {
		logger.Warn("event_publish_failed",
			observability.F("event", domorder.EventOrderConfirmed),
			observability.F("order_id", ord.ID),
			observability.F("error", err.Error()),
		)
	}
}

func classifyStorage(op string, err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%w: %s: %w", ErrPersistenceConflict, op, err)
	}
	return fmt.Errorf("checkout: %s: %w", op, err)
}

func statusFor(err error) string {
	var (
		notFound *ProductNotFoundError
		noStock  *InsufficientStockError
		declined *PaymentDeclinedError
		gateway  *GatewayUnavailableError
		recon    *ReconciliationRequiredError
	)
	switch {
	case errors.As(err, &notFound):
		return "PRODUCT_NOT_FOUND"
	case errors.As(err, &noStock):
		return "INSUFFICIENT_STOCK"
	case errors.As(err, &declined):
		return "PAYMENT_DECLINED"
	case errors.As(err, &gateway):
		return "GATEWAY_UNAVAILABLE"
	case errors.As(err, &recon):
		return "RECONCILIATION_REQUIRED"
	case errors.Is(err, ErrPersistenceConflict):
		return "PERSISTENCE_CONFLICT"
	default:
		return "ERROR"
	}
}
