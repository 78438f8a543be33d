package memory

import (
	"context"
	"sync"

	"github.com/storefront-go/storefront/internal/domain/reconciliation"
)

// ReconciliationJournal keeps captured-but-uncommitted charges in process
// memory. It deliberately does not participate in store transactions: an
// append must survive the very transaction failure it records.
type ReconciliationJournal struct {
	mu      sync.Mutex
	entries []reconciliation.Entry
}

func NewReconciliationJournal() *ReconciliationJournal {
	return &ReconciliationJournal{}
}

func (j *ReconciliationJournal) Append(ctx context.Context, e reconciliation.Entry) error {
	_ = ctx
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *ReconciliationJournal) ListOpen(ctx context.Context) ([]reconciliation.Entry, error) {
	_ = ctx
	j.mu.Lock()
	defer j.mu.Unlock()

	open := make([]reconciliation.Entry, 0, len(j.entries))
	for _, e := range j.entries {
		if !e.Resolved {
			open = append(open, e)
		}
	}
	return open, nil
}

func (j *ReconciliationJournal) Resolve(ctx context.Context, id string) error {
	_ = ctx
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := range j.entries {
		if j.entries[i].ID == id {
			j.entries[i].Resolved = true
			return nil
		}
	}
	return reconciliation.ErrNotFound
}
