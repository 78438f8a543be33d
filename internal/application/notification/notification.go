package notification

import (
	"context"
	"fmt"

	domain "github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/outbox"
	"github.com/storefront-go/storefront/internal/observability"
)

const componentNotification = "notification"

// Notifier delivers a buyer-facing message. Implementations decide the
// channel; delivery failures are reported, not retried here.
type Notifier interface {
	Notify(ctx context.Context, recipient, subject, body string) error
}

// LogNotifier writes notifications to the structured log. It stands in for a
// real mail or push channel in development and tests.
type LogNotifier struct {
	log observability.Logger
}

func NewLogNotifier(logger observability.Logger) *LogNotifier {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogNotifier{log: logger.With(observability.F("component", componentNotification))}
}

func (n *LogNotifier) Notify(ctx context.Context, recipient, subject, body string) error {
	_ = ctx
	n.log.Info("notification_sent",
		observability.F("recipient", recipient),
		observability.F("subject", subject),
		observability.F("body", body),
	)
	return nil
}

// Worker turns order lifecycle events into buyer notifications.
type Worker struct {
	notifier Notifier
	log      observability.Logger
}

func NewWorker(notifier Notifier, logger observability.Logger) *Worker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Worker{
		notifier: notifier,
		log:      logger.With(observability.F("component", componentNotification)),
	}
}

// Register attaches the worker's handlers to the event bus.
func (w *Worker) Register(sub outbox.Subscriber) {
	sub.Subscribe(domain.EventOrderConfirmed, w.onConfirmed)
	sub.Subscribe(domain.EventOrderCancelled, w.onCancelled)
}

func (w *Worker) onConfirmed(ctx context.Context, e outbox.Event) error {
	ev, ok := e.(domain.OrderConfirmedEvent)
	if !ok {
		return fmt.Errorf("notification: unexpected payload for %s", e.EventName())
	}
	subject := fmt.Sprintf("Order %s confirmed", ev.OrderID)
	body := fmt.Sprintf("Payment of %d %s received (ref %s).", ev.Total, ev.Currency, ev.TransactionRef)
	return w.notifier.Notify(ctx, ev.BuyerID, subject, body)
}

func (w *Worker) onCancelled(ctx context.Context, e outbox.Event) error {
	ev, ok := e.(domain.OrderCancelledEvent)
	if !ok {
		return fmt.Errorf("notification: unexpected payload for %s", e.EventName())
	}
	subject := fmt.Sprintf("Order %s cancelled", ev.OrderID)
	return w.notifier.Notify(ctx, ev.BuyerID, subject, "Your order was cancelled and any charge will be refunded.")
}
