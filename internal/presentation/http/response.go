package httppresentation

import (
	"time"

	domcatalog "github.com/storefront-go/storefront/internal/domain/catalog"
	domorder "github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/reconciliation"
)

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProductResponse(p *domcatalog.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Category:    p.Category,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type listProductsResponse struct {
	Products []productResponse `json:"products"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PerPage  int               `json:"per_page"`
}

type paymentResponse struct {
	Method         string     `json:"method"`
	Status         string     `json:"status"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	TransactionRef string     `json:"transaction_ref,omitempty"`
	DeclineReason  string     `json:"decline_reason,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

type orderResponse struct {
	ID        string                   `json:"id"`
	BuyerID   string                   `json:"buyer_id"`
	Items     []domorder.LineItem      `json:"items"`
	Total     int64                    `json:"total"`
	Status    string                   `json:"status"`
	Payment   paymentResponse          `json:"payment"`
	Shipping  domorder.ShippingAddress `json:"shipping_address"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	return orderResponse{
		ID:      o.ID,
		BuyerID: o.BuyerID,
		Items:   o.Items,
		Total:   o.Total,
		Status:  string(o.Status),
		Payment: paymentResponse{
			Method:         string(o.Payment.Method),
			Status:         string(o.Payment.Status),
			Amount:         o.Payment.Amount,
			Currency:       o.Payment.Currency,
			TransactionRef: o.Payment.TransactionRef,
			DeclineReason:  o.Payment.DeclineReason,
			PaidAt:         o.Payment.PaidAt,
		},
		Shipping:  o.Shipping,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

type reconciliationResponse struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	BuyerID        string    `json:"buyer_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Method         string    `json:"method"`
	TransactionRef string    `json:"transaction_ref"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

func toReconciliationResponse(e reconciliation.Entry) reconciliationResponse {
	return reconciliationResponse{
		ID:             e.ID,
		OrderID:        e.OrderID,
		BuyerID:        e.BuyerID,
		Amount:         e.Amount,
		Currency:       e.Currency,
		Method:         string(e.Method),
		TransactionRef: e.TransactionRef,
		Reason:         e.Reason,
		CreatedAt:      e.CreatedAt,
	}
}

type listOrdersResponse struct {
	Orders  []orderResponse `json:"orders"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}
