package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/benx421/bank-ledger/internal/db"
	"github.com/benx421/bank-ledger/internal/models"
)

// RefClaimRepository reserves reference ids so an operation applies at most once
type RefClaimRepository interface {
	LockRef(ctx context.Context, refID string) error
	Claim(ctx context.Context, claim *models.RefClaim) (bool, error)
	Find(ctx context.Context, scope, refID string) (*models.RefClaim, error)
}

type refClaimRepository struct {
	db db.DBTX
}

// NewRefClaimRepository creates a new RefClaimRepository
func NewRefClaimRepository(database db.DBTX) RefClaimRepository {
	return &refClaimRepository{db: database}
}

// LockRef serializes transactions that use the same reference until they end.
// It must run inside a transaction.
func (r *refClaimRepository) LockRef(ctx context.Context, refID string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, refID); err != nil {
		return fmt.Errorf("failed to lock ref: %w", err)
	}
	return nil
}

// Claim records the claim and reports whether this call won it. A concurrent
// uncommitted claim on the same key blocks until that transaction finishes.
func (r *refClaimRepository) Claim(ctx context.Context, claim *models.RefClaim) (bool, error) {
	query := `
		INSERT INTO ref_claims (scope, ref_id, operation)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope, ref_id) DO NOTHING
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query, claim.Scope, claim.RefID, claim.Operation).Scan(&claim.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim ref: %w", err)
	}

	return true, nil
}

// Find retrieves a committed claim
func (r *refClaimRepository) Find(ctx context.Context, scope, refID string) (*models.RefClaim, error) {
	query := `SELECT scope, ref_id, operation, created_at FROM ref_claims WHERE scope = $1 AND ref_id = $2`

	var claim models.RefClaim
	err := r.db.QueryRowContext(ctx, query, scope, refID).Scan(
		&claim.Scope,
		&claim.RefID,
		&claim.Operation,
		&claim.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ref claim not found: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ref claim: %w", err)
	}

	return &claim, nil
}
