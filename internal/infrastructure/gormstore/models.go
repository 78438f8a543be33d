package gormstore

import (
	"time"

	"github.com/storefront-go/storefront/internal/domain/catalog"
	"github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/payment"
)

type productModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	Name        string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	Price       int64  `gorm:"not null"`
	Stock       int    `gorm:"not null"`
	Category    string `gorm:"size:64;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (productModel) TableName() string { return "products" }

func toProductModel(p *catalog.Product) *productModel {
	return &productModel{
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

func (m *productModel) toDomain() *catalog.Product {
	return &catalog.Product{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Price:       m.Price,
		Stock:       m.Stock,
		Category:    m.Category,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

type orderModel struct {
	ID             string                `gorm:"primaryKey;size:36"`
	BuyerID        string                `gorm:"size:36;index;not null"`
	Items          []order.LineItem      `gorm:"serializer:json;type:json"`
	Total          int64                 `gorm:"not null"`
	Status         string                `gorm:"size:16;index;not null"`
	Method         string                `gorm:"size:16;not null"`
	PaymentStatus  string                `gorm:"size:16;index;not null"`
	Amount         int64                 `gorm:"not null"`
	Currency       string                `gorm:"size:8;not null"`
	TransactionRef string                `gorm:"size:64"`
	DeclineReason  string                `gorm:"size:255"`
	PaidAt         *time.Time
	Shipping       order.ShippingAddress `gorm:"serializer:json;type:json"`
	CreatedAt      time.Time             `gorm:"index"`
	UpdatedAt      time.Time
}

func (orderModel) TableName() string { return "orders" }

func toOrderModel(o *order.Order) *orderModel {
	return &orderModel{
		ID:             o.ID,
		BuyerID:        o.BuyerID,
		Items:          o.Items,
		Total:          o.Total,
		Status:         string(o.Status),
		Method:         string(o.Payment.Method),
		PaymentStatus:  string(o.Payment.Status),
		Amount:         o.Payment.Amount,
		Currency:       o.Payment.Currency,
		TransactionRef: o.Payment.TransactionRef,
		DeclineReason:  o.Payment.DeclineReason,
		PaidAt:         o.Payment.PaidAt,
		Shipping:       o.Shipping,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func (m *orderModel) toDomain() *order.Order {
	return &order.Order{
		ID:      m.ID,
		BuyerID: m.BuyerID,
		Items:   m.Items,
		Total:   m.Total,
		Status:  order.Status(m.Status),
		Payment: order.PaymentInfo{
			Method:         payment.Method(m.Method),
			Status:         order.PaymentStatus(m.PaymentStatus),
			Amount:         m.Amount,
			Currency:       m.Currency,
			TransactionRef: m.TransactionRef,
			DeclineReason:  m.DeclineReason,
			PaidAt:         m.PaidAt,
		},
		Shipping:  m.Shipping,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// stockReleaseModel records applied compensating restores. The composite
// primary key is what makes IncrementStock idempotent per release key.
type stockReleaseModel struct {
	OrderID   string `gorm:"primaryKey;size:36"`
	ProductID string `gorm:"primaryKey;size:36"`
	Quantity  int    `gorm:"not null"`
	CreatedAt time.Time
}

func (stockReleaseModel) TableName() string { return "stock_releases" }

type reconciliationModel struct {
	ID             string `gorm:"primaryKey;size:36"`
	OrderID        string `gorm:"size:36;index;not null"`
	BuyerID        string `gorm:"size:36"`
	Amount         int64
	Currency       string `gorm:"size:8"`
	Method         string `gorm:"size:16"`
	TransactionRef string `gorm:"size:64"`
	Reason         string `gorm:"size:255"`
	CreatedAt      time.Time
	Resolved       bool `gorm:"index"`
}

func (reconciliationModel) TableName() string { return "reconciliation_journal" }
