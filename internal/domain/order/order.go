package order

import (
	"errors"
	"time"

	"github.com/storefront-go/storefront/internal/domain/payment"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: already exists")
	ErrNoItems                = errors.New("order: at least one item is required")
	ErrInvalidQuantity        = errors.New("order: quantity must be at least one")
	ErrInvalidBuyer           = errors.New("order: buyer id is required")
	ErrInvalidAddress         = errors.New("order: shipping address is incomplete")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// LineItem snapshots the product name and unit price at order time so later
// catalog edits cannot change what the buyer agreed to pay.
type LineItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type PaymentInfo struct {
	Method         payment.Method `json:"method"`
	Status         PaymentStatus  `json:"status"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	TransactionRef string         `json:"transaction_ref,omitempty"`
	DeclineReason  string         `json:"decline_reason,omitempty"`
	PaidAt         *time.Time     `json:"paid_at,omitempty"`
}

type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

func (a ShippingAddress) complete() bool {
	return a.Street != "" && a.City != "" && a.State != "" && a.ZipCode != "" && a.Country != ""
}

// Order is the aggregate root for one purchase. It is owned exclusively by
// the workflow that created it until commit; only the catalog stock field is
// shared between concurrent workflows.
type Order struct {
	ID        string
	BuyerID   string
	Items     []LineItem
	Total     int64
	Status    Status
	Payment   PaymentInfo
	Shipping  ShippingAddress
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds a pending order from priced line items. The total is derived
// from the snapshots, never accepted from the caller, so the amount charged
// later cannot drift from the sum of line totals.
func New(id, buyerID string, items []LineItem, method payment.Method, currency string, addr ShippingAddress) (*Order, error) {
	if buyerID == "" {
		return nil, ErrInvalidBuyer
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if !addr.complete() {
		return nil, ErrInvalidAddress
	}

	var total int64
	for i := range items {
		if items[i].Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		items[i].LineTotal = items[i].UnitPrice * int64(items[i].Quantity)
		total += items[i].LineTotal
	}

	now := time.Now().UTC()
	return &Order{
		ID:      id,
		BuyerID: buyerID,
		Items:   items,
		Total:   total,
		Status:  StatusPending,
		Payment: PaymentInfo{
			Method:   method,
			Status:   PaymentPending,
			Amount:   total,
			Currency: currency,
		},
		Shipping:  addr,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// PaymentCompleted records a captured charge and confirms the order. Valid
// only while the order is pending with an unsettled payment.
func (o *Order) PaymentCompleted(transactionRef string, at time.Time) error {
	if o.Status != StatusPending || o.Payment.Status != PaymentPending {
		return ErrInvalidStateTransition
	}
	o.Payment.Status = PaymentCompleted
	o.Payment.TransactionRef = transactionRef
	paidAt := at.UTC()
	o.Payment.PaidAt = &paidAt
	o.Status = StatusConfirmed
	o.touch()
	return nil
}

// PaymentDeclined records a terminal decline. The aggregate is not expected
// to survive the enclosing transaction after this.
func (o *Order) PaymentDeclined(reason string) error {
	if o.Payment.Status != PaymentPending {
		return ErrInvalidStateTransition
	}
	o.Payment.Status = PaymentFailed
	o.Payment.DeclineReason = reason
	o.touch()
	return nil
}

// fulfilment transitions permitted for administrative updates.
var fulfilmentNext = map[Status]map[Status]bool{
	StatusConfirmed:  {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true},
}

// Advance moves the order through the fulfilment lifecycle. Cancellation is
// allowed until the order ships; cancelling a settled payment marks it
// refunded.
func (o *Order) Advance(to Status) error {
	if !fulfilmentNext[o.Status][to] {
		return ErrInvalidStateTransition
	}
	if to == StatusCancelled && o.Payment.Status == PaymentCompleted {
		o.Payment.Status = PaymentRefunded
	}
	o.Status = to
	o.touch()
	return nil
}

// Cancelled reports whether the order was cancelled after confirmation, in
// which case its reserved stock is owed back to the catalog.
func (o *Order) Cancelled() bool { return o.Status == StatusCancelled }

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]LineItem(nil), o.Items...)
	if o.Payment.PaidAt != nil {
		paidAt := *o.Payment.PaidAt
		clone.Payment.PaidAt = &paidAt
	}
	return &clone
}
