package gormstore

import (
	"context"
	"fmt"

	"github.com/storefront-go/storefront/internal/domain/payment"
	"github.com/storefront-go/storefront/internal/domain/reconciliation"
)

// ReconciliationJournal persists captured-but-uncommitted charges. Appends
// run in autocommit on the shared pool, never inside the order transaction:
// the entry must survive the very commit failure it records.
type ReconciliationJournal struct {
	store *Store
}

func NewReconciliationJournal(store *Store) *ReconciliationJournal {
	return &ReconciliationJournal{store: store}
}

func (j *ReconciliationJournal) Append(ctx context.Context, e reconciliation.Entry) error {
	m := reconciliationModel{
		ID:             e.ID,
		OrderID:        e.OrderID,
		BuyerID:        e.BuyerID,
		Amount:         e.Amount,
		Currency:       e.Currency,
		Method:         string(e.Method),
		TransactionRef: e.TransactionRef,
		Reason:         e.Reason,
		CreatedAt:      e.CreatedAt,
		Resolved:       e.Resolved,
	}
	if err := j.store.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("gormstore: append reconciliation: %w", err)
	}
	return nil
}

func (j *ReconciliationJournal) ListOpen(ctx context.Context) ([]reconciliation.Entry, error) {
	var models []reconciliationModel
	err := j.store.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: list reconciliation: %w", err)
	}

	entries := make([]reconciliation.Entry, 0, len(models))
	for _, m := range models {
		entries = append(entries, reconciliation.Entry{
			ID:             m.ID,
			OrderID:        m.OrderID,
			BuyerID:        m.BuyerID,
			Amount:         m.Amount,
			Currency:       m.Currency,
			Method:         payment.Method(m.Method),
			TransactionRef: m.TransactionRef,
			Reason:         m.Reason,
			CreatedAt:      m.CreatedAt,
			Resolved:       m.Resolved,
		})
	}
	return entries, nil
}

func (j *ReconciliationJournal) Resolve(ctx context.Context, id string) error {
	res := j.store.db.WithContext(ctx).
		Model(&reconciliationModel{}).
		Where("id = ?", id).
		Update("resolved", true)
	if res.Error != nil {
		return fmt.Errorf("gormstore: resolve reconciliation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return reconciliation.ErrNotFound
	}
	return nil
}
