package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/benx421/bank-ledger/internal/config"
	"github.com/benx421/bank-ledger/internal/models"
)

const (
	outboxJobTimeout    = 30 * time.Second
	reconcileJobTimeout = 5 * time.Minute
)

// OutboxFlusher publishes a batch of pending ledger events
type OutboxFlusher interface {
	FlushOnce(ctx context.Context) (int, error)
}

// BalanceReconciler compares balances with ledger history
type BalanceReconciler interface {
	Run(ctx context.Context) ([]models.BalanceDrift, error)
}

// RegisterJobs schedules the enabled ledger jobs. A nil dependency leaves its job unscheduled.
func RegisterJobs(s *Scheduler, cfg *config.Config, flusher OutboxFlusher, reconciler BalanceReconciler, logger *slog.Logger) error {
	if cfg.Outbox.Enabled && flusher != nil {
		err := s.Register("outbox_flush", cfg.Outbox.Schedule, outboxJobTimeout, func(ctx context.Context) error {
			_, err := flusher.FlushOnce(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}

	if cfg.Reconcile.Enabled && reconciler != nil {
		err := s.Register("reconcile", cfg.Reconcile.Schedule, reconcileJobTimeout, func(ctx context.Context) error {
			drift, err := reconciler.Run(ctx)
			if err != nil {
				return err
			}
			if len(drift) > 0 {
				logger.Warn("reconciliation found drifting accounts", "count", len(drift))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
