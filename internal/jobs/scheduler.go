package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	apporder "github.com/storefront-go/storefront/internal/application/order"
	"github.com/storefront-go/storefront/internal/domain/reconciliation"
	"github.com/storefront-go/storefront/internal/observability"
)

const componentJobs = "jobs"

// Scheduler runs the periodic maintenance jobs: the abandoned-order sweep
// and the open-reconciliation re-alert.
type Scheduler struct {
	cron    *cron.Cron
	orders  *apporder.Service
	journal reconciliation.Journal
	log     observability.Logger
	recon   observability.Counter
}

type Config struct {
	AbandonedSweepSchedule string
	AbandonedMaxAge        time.Duration
	ReconciliationSchedule string
}

func NewScheduler(orders *apporder.Service, journal reconciliation.Journal, tel observability.Observability) *Scheduler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Scheduler{
		cron:    cron.New(),
		orders:  orders,
		journal: journal,
		log:     tel.Logger().With(observability.F("component", componentJobs)),
		recon:   tel.Metrics().Counter(observability.MReconciliationRequired),
	}
}

func (s *Scheduler) Register(cfg Config) error {
	if cfg.AbandonedSweepSchedule != "" {
		maxAge := cfg.AbandonedMaxAge
		if maxAge <= 0 {
			maxAge = 24 * time.Hour
		}
		_, err := s.cron.AddFunc(cfg.AbandonedSweepSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := s.orders.SweepAbandoned(ctx, maxAge); err != nil {
				s.log.Error("abandoned_sweep_failed", observability.F("error", err.Error()))
			}
		})
		if err != nil {
			return err
		}
	}

	if cfg.ReconciliationSchedule != "" && s.journal != nil {
		_, err := s.cron.AddFunc(cfg.ReconciliationSchedule, s.realertReconciliations)
		if err != nil {
			return err
		}
	}
	return nil
}

// realertReconciliations logs every still-open journal entry. Entries are
// never auto-retried: the charge already settled, so replaying the workflow
// would charge twice. Operators resolve them out of band.
func (s *Scheduler) realertReconciliations() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	entries, err := s.journal.ListOpen(ctx)
	if err != nil {
		s.log.Error("reconciliation_scan_failed", observability.F("error", err.Error()))
		return
	}
	for _, e := range entries {
		s.log.Warn("reconciliation_still_open",
			observability.F("entry_id", e.ID),
			observability.F("order_id", e.OrderID),
			observability.F("transaction_ref", e.TransactionRef),
			observability.F("amount", e.Amount),
			observability.F("currency", e.Currency),
			observability.F("age", time.Since(e.CreatedAt).String()),
		)
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
