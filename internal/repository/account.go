// Package repository provides data access layer implementations for the ledger.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/benx421/bank-ledger/internal/db"
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByPhoneDigits(ctx context.Context, digits string) (*models.Account, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Account, error)
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Account, error)
	ApplyDelta(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error)
	UpdateStatus(ctx context.Context, accountID uuid.UUID, status models.AccountStatus) error
}

// accountRepository implements AccountRepository
type accountRepository struct {
	db db.DBTX
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(database db.DBTX) AccountRepository {
	return &accountRepository{db: database}
}

const accountColumns = `a.id, a.account_number, a.user_id, a.type, a.balance, a.currency, a.status, a.created_at, a.updated_at`

// primaryAccountOrder picks the oldest active account when a user owns several
const primaryAccountOrder = `ORDER BY (a.status = 'active') DESC, a.created_at, a.id LIMIT 1`

// Create inserts a new account with a zero balance
func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Type == "" {
		account.Type = models.AccountTypeSavings
	}
	if account.Currency == "" {
		account.Currency = models.DefaultCurrency
	}
	if account.Status == "" {
		account.Status = models.AccountStatusActive
	}
	account.Balance = 0

	query := `
		INSERT INTO accounts (id, account_number, user_id, type, balance, currency, status)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		account.ID,
		account.AccountNumber,
		account.UserID,
		account.Type,
		account.Currency,
		account.Status,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("account number %s: %w", account.AccountNumber, models.ErrDuplicate)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// FindByID retrieves an account by its UUID
func (r *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts a WHERE a.id = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapAccountErr(err, "failed to find account by id")
	}

	return account, nil
}

// FindByAccountNumber retrieves an account by its account number
func (r *accountRepository) FindByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts a WHERE a.account_number = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, accountNumber))
	if err != nil {
		return nil, wrapAccountErr(err, "failed to find account by account number")
	}

	return account, nil
}

// FindByEmail retrieves the account of the user with the given email, ignoring case
func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		WHERE LOWER(u.email) = LOWER($1)
		` + primaryAccountOrder

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, wrapAccountErr(err, "failed to find account by email")
	}

	return account, nil
}

// FindByPhoneDigits retrieves the account of the user whose profile phone,
// stripped to digits, equals digits
func (r *accountRepository) FindByPhoneDigits(ctx context.Context, digits string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts a
		JOIN customer_profiles p ON p.user_id = a.user_id
		WHERE regexp_replace(p.phone, '\D', '', 'g') = $1
		` + primaryAccountOrder

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, digits))
	if err != nil {
		return nil, wrapAccountErr(err, "failed to find account by phone")
	}

	return account, nil
}

// ListByUser returns every account owned by userID, oldest first
func (r *accountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts a WHERE a.user_id = $1 ORDER BY a.created_at, a.id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below

	return scanAccounts(rows)
}

// LockByIDs locks the given accounts FOR UPDATE in ascending id order.
// Must be called inside a transaction.
func (r *accountRepository) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts a
		WHERE a.id = ANY($1::uuid[])
		ORDER BY a.id
		FOR UPDATE
	`

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below

	return scanAccounts(rows)
}

// ApplyDelta adds delta to the balance and returns the new balance. The update
// only succeeds when the resulting balance is non-negative.
func (r *accountRepository) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $2,
		    updated_at = NOW()
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING balance
	`

	var balance int64
	err := r.db.QueryRowContext(ctx, query, accountID, delta).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		if _, findErr := r.FindByID(ctx, accountID); findErr != nil {
			return 0, findErr
		}
		return 0, fmt.Errorf("account %s: %w", accountID, models.ErrNegativeBalance)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to apply balance delta: %w", err)
	}

	return balance, nil
}

// UpdateStatus changes the lifecycle status of an account
func (r *accountRepository) UpdateStatus(ctx context.Context, accountID uuid.UUID, status models.AccountStatus) error {
	query := `UPDATE accounts SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, accountID, status)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.AccountNumber,
		&account.UserID,
		&account.Type,
		&account.Balance,
		&account.Currency,
		&account.Status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func scanAccounts(rows *sql.Rows) ([]*models.Account, error) {
	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

func wrapAccountErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account not found: %w", models.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
