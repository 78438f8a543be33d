package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/storefront-go/storefront/internal/domain/catalog"
	"github.com/storefront-go/storefront/internal/domain/storage"
)

type ProductRepository struct {
	store *Store
}

func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{store: store}
}

func (r *ProductRepository) Insert(ctx context.Context, tx storage.Tx, p *catalog.Product) error {
	db, err := r.store.resolve(ctx, tx)
	if err != nil {
		return err
	}
	if err := db.Create(toProductModel(p)).Error; err != nil {
		return translateErr(err)
	}
	return nil
}

func (r *ProductRepository) Find(ctx context.Context, tx storage.Tx, id string) (*catalog.Product, error) {
	db, err := r.store.resolve(ctx, tx)
	if err != nil {
		return nil, err
	}
	var m productModel
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("gormstore: find product: %w", err)
	}
	return m.toDomain(), nil
}

func (r *ProductRepository) List(ctx context.Context, tx storage.Tx, f catalog.ListFilter) ([]*catalog.Product, int64, error) {
	db, err := r.store.resolve(ctx, tx)
	if err != nil {
		return nil, 0, err
	}

	q := db.Model(&productModel{})
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gormstore: count products: %w", err)
	}

	page, perPage := normalizePage(f.Page, f.PerPage)
	var models []productModel
	err = q.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&models).Error
	if err != nil {
		return nil, 0, fmt.Errorf("gormstore: list products: %w", err)
	}

	products := make([]*catalog.Product, 0, len(models))
	for i := range models {
		products = append(products, models[i].toDomain())
	}
	return products, total, nil
}

// DecrementStock issues the guarded decrement as one conditional UPDATE. The
// row lock the statement takes is the only serialization between concurrent
// checkouts.
func (r *ProductRepository) DecrementStock(ctx context.Context, tx storage.Tx, id string, qty int) (bool, error) {
	if qty < 1 {
		return false, catalog.ErrInvalidQuantity
	}
	db, err := r.store.resolve(ctx, tx)
	if err != nil {
		return false, err
	}

	res := db.Model(&productModel{}).
		Where("id = ? AND stock >= ?", id, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, translateErr(res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// Guard failed: distinguish a missing product from insufficient stock.
	var count int64
	if err := db.Model(&productModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("gormstore: decrement stock: %w", err)
	}
	if count == 0 {
		return false, catalog.ErrNotFound
	}
	return false, nil
}

func (r *ProductRepository) IncrementStock(ctx context.Context, tx storage.Tx, key catalog.ReleaseKey, qty int) error {
	if qty < 1 {
		return catalog.ErrInvalidQuantity
	}
	db, err := r.store.resolve(ctx, tx)
	if err != nil {
		return err
	}

	release := stockReleaseModel{
		OrderID:   key.OrderID,
		ProductID: key.ProductID,
		Quantity:  qty,
		CreatedAt: time.Now().UTC(),
	}
	res := db.Exec(
		"INSERT IGNORE INTO stock_releases (order_id, product_id, quantity, created_at) VALUES (?, ?, ?, ?)",
		release.OrderID, release.ProductID, release.Quantity, release.CreatedAt,
	)
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		// Key already applied; replay is a no-op.
		return nil
	}

	out := db.Model(&productModel{}).
		Where("id = ?", key.ProductID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if out.Error != nil {
		return translateErr(out.Error)
	}
	if out.RowsAffected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}
