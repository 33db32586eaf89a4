package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/benx421/bank-ledger/internal/db"
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/google/uuid"
)

// TransactionRepository defines the interface for ledger entry data access.
// Entries are append-only; there is no update or delete.
type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	FindByRefID(ctx context.Context, refID string, accountID uuid.UUID) ([]*models.Transaction, error)
	ExistsByRefID(ctx context.Context, refID string) (bool, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int, cursor *models.Cursor) ([]*models.Transaction, error)
}

type transactionRepository struct {
	db db.DBTX
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(database db.DBTX) TransactionRepository {
	return &transactionRepository{db: database}
}

const transactionColumns = `id, account_id, type, amount, balance_after, description, ref_id, metadata, created_at`

// Create appends a ledger entry. ID is generated when unset; CreatedAt is set by the database.
func (r *transactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}

	metadata := txn.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (id, account_id, type, amount, balance_after, description, ref_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		txn.ID,
		txn.AccountID,
		txn.Type,
		txn.Amount,
		txn.BalanceAfter,
		txn.Description,
		nullString(txn.RefID),
		string(metadataJSON),
	).Scan(&txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// FindByRefID returns the entries carrying refID, debits first. A nil accountID
// searches every account.
func (r *transactionRepository) FindByRefID(ctx context.Context, refID string, accountID uuid.UUID) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE ref_id = $1 AND ($2::uuid IS NULL OR account_id = $2)
		ORDER BY created_at, CASE type WHEN 'DEBIT' THEN 0 ELSE 1 END, id
	`

	var scope any
	if accountID != uuid.Nil {
		scope = accountID
	}

	rows, err := r.db.QueryContext(ctx, query, refID, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to find transactions by ref: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below

	return scanTransactions(rows)
}

// ExistsByRefID reports whether any entry on any account carries refID
func (r *transactionRepository) ExistsByRefID(ctx context.Context, refID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE ref_id = $1)`, refID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ref: %w", err)
	}
	return exists, nil
}

// ListByAccount returns up to limit entries for the account, newest first,
// strictly after cursor when one is given
func (r *transactionRepository) ListByAccount(
	ctx context.Context,
	accountID uuid.UUID,
	limit int,
	cursor *models.Cursor,
) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	args := []any{accountID, limit}

	if cursor != nil {
		query = `
			SELECT ` + transactionColumns + `
			FROM transactions
			WHERE account_id = $1 AND (created_at, id) < ($3, $4)
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below

	return scanTransactions(rows)
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		txn          models.Transaction
		refID        sql.NullString
		metadataJSON []byte
	)

	err := row.Scan(
		&txn.ID,
		&txn.AccountID,
		&txn.Type,
		&txn.Amount,
		&txn.BalanceAfter,
		&txn.Description,
		&refID,
		&metadataJSON,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.RefID = refID.String
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &txn.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &txn, nil
}

func scanTransactions(rows *sql.Rows) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txns, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
