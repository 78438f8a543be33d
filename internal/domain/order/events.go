package order

import "time"

const (
	EventOrderConfirmed = "order.confirmed"
	EventOrderCancelled = "order.cancelled"
)

type OrderConfirmedEvent struct {
	OrderID        string    `json:"order_id"`
	BuyerID        string    `json:"buyer_id"`
	Total          int64     `json:"total"`
	Currency       string    `json:"currency"`
	TransactionRef string    `json:"transaction_ref"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (OrderConfirmedEvent) EventName() string { return EventOrderConfirmed }

func NewOrderConfirmedEvent(o *Order) OrderConfirmedEvent {
	return OrderConfirmedEvent{
		OrderID:        o.ID,
		BuyerID:        o.BuyerID,
		Total:          o.Total,
		Currency:       o.Payment.Currency,
		TransactionRef: o.Payment.TransactionRef,
		OccurredAt:     time.Now().UTC(),
	}
}

type OrderCancelledEvent struct {
	OrderID    string    `json:"order_id"`
	BuyerID    string    `json:"buyer_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderCancelledEvent) EventName() string { return EventOrderCancelled }

func NewOrderCancelledEvent(o *Order) OrderCancelledEvent {
	return OrderCancelledEvent{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		OccurredAt: time.Now().UTC(),
	}
}
