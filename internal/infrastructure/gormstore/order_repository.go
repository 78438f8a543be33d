package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/storage"
)

type OrderRepository struct {
	store *Store
}

func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{store: store}
}

func (r *OrderRepository) Insert(ctx context.Context, tx storage.Tx, o *domain.Order) error {
	db, err := r.store.resolve(ctx, tx)
	if err != nil {
		return err
	}
	if err := db.Create(toOrderModel(o)).Error; err != nil {
		return translateErr(err)
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, tx storage.Tx, o *domain.Order) error {
	db, err := r.store.resolve(ctx, tx)
	if err != nil {
		return err
	}
	res := db.Model(&orderModel{}).Where("id = ?", o.ID).Updates(toOrderModel(o))
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) Find(ctx context.Context, tx storage.Tx, id string) (*domain.Order, error) {
	db, err := r.store.resolve(ctx, tx)
	if err != nil {
		return nil, err
	}
	var m orderModel
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("gormstore: find order: %w", err)
	}
	return m.toDomain(), nil
}

func (r *OrderRepository) List(ctx context.Context, tx storage.Tx, f domain.ListFilter) ([]*domain.Order, int64, error) {
	db, err := r.store.resolve(ctx, tx)
	if err != nil {
		return nil, 0, err
	}

	q := db.Model(&orderModel{})
	if f.BuyerID != "" {
		q = q.Where("buyer_id = ?", f.BuyerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gormstore: count orders: %w", err)
	}

	page, perPage := normalizePage(f.Page.Number, f.Page.PerPage)
	var models []orderModel
	err = q.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&models).Error
	if err != nil {
		return nil, 0, fmt.Errorf("gormstore: list orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, models[i].toDomain())
	}
	return orders, total, nil
}

func (r *OrderRepository) DeleteAbandoned(ctx context.Context, tx storage.Tx, cutoff time.Time) (int64, error) {
	db, err := r.store.resolve(ctx, tx)
	if err != nil {
		return 0, err
	}
	res := db.Where(
		"status = ? AND payment_status = ? AND created_at < ?",
		string(domain.StatusPending), string(domain.PaymentPending), cutoff,
	).Delete(&orderModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("gormstore: delete abandoned: %w", res.Error)
	}
	return res.RowsAffected, nil
}
