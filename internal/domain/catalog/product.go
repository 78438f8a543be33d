package catalog

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("catalog: product not found")
	ErrInvalidName       = errors.New("catalog: product name is required")
	ErrInvalidPrice      = errors.New("catalog: price must be zero or greater")
	ErrInvalidStock      = errors.New("catalog: stock must be zero or greater")
	ErrInvalidQuantity   = errors.New("catalog: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
)

// Product is owned by the catalog; the checkout workflow only reads it and
// mutates the stock field through the conditional decrement contract.
// Price is in minor currency units.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       int64
	Stock       int
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(id, name, description string, price int64, stock int, category string) (*Product, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}
	if price < 0 {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidStock
	}

	now := time.Now().UTC()
	return &Product{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Price:       price,
		Stock:       stock,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
