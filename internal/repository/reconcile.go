package repository

import (
	"context"
	"fmt"

	"github.com/benx421/bank-ledger/internal/db"
	"github.com/benx421/bank-ledger/internal/models"
)

// ReconcileRepository compares balances against ledger history
type ReconcileRepository interface {
	FindBalanceDrift(ctx context.Context) ([]models.BalanceDrift, error)
}

type reconcileRepository struct {
	db db.DBTX
}

// NewReconcileRepository creates a new ReconcileRepository
func NewReconcileRepository(database db.DBTX) ReconcileRepository {
	return &reconcileRepository{db: database}
}

// FindBalanceDrift returns every account whose balance differs from the sum of
// its credits minus its debits, or is negative. One statement, one snapshot.
func (r *reconcileRepository) FindBalanceDrift(ctx context.Context) ([]models.BalanceDrift, error) {
	query := `
		SELECT a.id, a.balance, COALESCE(l.ledger_sum, 0)::bigint
		FROM accounts a
		LEFT JOIN (
			SELECT account_id,
			       SUM(CASE type WHEN 'CREDIT' THEN amount ELSE -amount END) AS ledger_sum
			FROM transactions
			GROUP BY account_id
		) l ON l.account_id = a.id
		WHERE a.balance <> COALESCE(l.ledger_sum, 0) OR a.balance < 0
		ORDER BY a.id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile balances: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below

	var drift []models.BalanceDrift
	for rows.Next() {
		var d models.BalanceDrift
		if err := rows.Scan(&d.AccountID, &d.Balance, &d.LedgerSum); err != nil {
			return nil, fmt.Errorf("failed to scan drift: %w", err)
		}
		drift = append(drift, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate drift: %w", err)
	}

	return drift, nil
}
