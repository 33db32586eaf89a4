package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benx421/bank-ledger/internal/models"
)

// DriftFinder compares balances with ledger history
type DriftFinder interface {
	FindBalanceDrift(ctx context.Context) ([]models.BalanceDrift, error)
}

// Reconciler checks that every balance equals its credits minus its debits
type Reconciler struct {
	finder DriftFinder
	logger *slog.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(finder DriftFinder, logger *slog.Logger) *Reconciler {
	return &Reconciler{finder: finder, logger: logger}
}

// Run returns every drifting account and logs each one at error level
func (r *Reconciler) Run(ctx context.Context) ([]models.BalanceDrift, error) {
	drift, err := r.finder.FindBalanceDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciliation failed: %w", err)
	}

	for _, d := range drift {
		r.logger.Error("balance drift detected",
			"account_id", d.AccountID,
			"balance", d.Balance,
			"ledger_sum", d.LedgerSum,
		)
	}
	if len(drift) == 0 {
		r.logger.Debug("reconciliation found no drift")
	}

	return drift, nil
}
