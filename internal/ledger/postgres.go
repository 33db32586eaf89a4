package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benx421/bank-ledger/internal/db"
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/benx421/bank-ledger/internal/repository"
	"github.com/google/uuid"
)

// PostgresStore applies units in one READ COMMITTED transaction. Touched
// accounts are locked FOR UPDATE in ascending id order.
type PostgresStore struct {
	db             *db.DB
	logger         *slog.Logger
	faults         FaultInjector
	outboxExchange string
	retry          RetryPolicy
}

// Option configures a PostgresStore
type Option func(*PostgresStore)

// WithRetryPolicy overrides DefaultRetryPolicy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *PostgresStore) {
		s.retry = p
	}
}

// WithFaultInjector installs a fault injector
func WithFaultInjector(f FaultInjector) Option {
	return func(s *PostgresStore) {
		s.faults = f
	}
}

// WithOutbox enqueues a ledger event on exchange inside every applied unit
func WithOutbox(exchange string) Option {
	return func(s *PostgresStore) {
		s.outboxExchange = exchange
	}
}

// NewPostgresStore creates a store over an open pool
func NewPostgresStore(database *db.DB, logger *slog.Logger, opts ...Option) *PostgresStore {
	s := &PostgresStore{
		db:     database,
		logger: logger,
		retry:  DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyAtomic applies every posting and claim of unit or none of them
func (s *PostgresStore) ApplyAtomic(ctx context.Context, unit Unit) (*Applied, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	var applied *Applied
	err := s.retry.Run(ctx, s.logger, func() error {
		var err error
		applied, err = s.applyOnce(ctx, &unit)
		return err
	})
	if err != nil {
		return nil, err
	}

	return applied, nil
}

func (s *PostgresStore) applyOnce(ctx context.Context, unit *Unit) (*Applied, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback error is not critical in defer
	}()

	applied, err := s.performApply(ctx,
		repository.NewAccountRepository(tx),
		repository.NewTransactionRepository(tx),
		repository.NewRefClaimRepository(tx),
		repository.NewOutboxRepository(tx),
		unit,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return applied, nil
}

// performApply runs the unit against tx-scoped repositories
func (s *PostgresStore) performApply(
	ctx context.Context,
	accountRepo repository.AccountRepository,
	transactionRepo repository.TransactionRepository,
	claimRepo repository.RefClaimRepository,
	outboxRepo repository.OutboxRepository,
	unit *Unit,
) (*Applied, error) {
	if unit.RefID != "" {
		if err := claimRepo.LockRef(ctx, unit.RefID); err != nil {
			return nil, err
		}
		if !unit.ClaimsGlobalRef() {
			_, err := claimRepo.Find(ctx, GlobalScope, unit.RefID)
			if err == nil {
				return nil, &RefClaimError{Scope: GlobalScope, RefID: unit.RefID}
			}
			if !errors.Is(err, models.ErrNotFound) {
				return nil, err
			}
		}
	}

	for i := range unit.Claims {
		claim := unit.Claims[i]
		won, err := claimRepo.Claim(ctx, &claim)
		if err != nil {
			return nil, err
		}
		if !won {
			return nil, &RefClaimError{Scope: claim.Scope, RefID: claim.RefID}
		}
	}

	if unit.ExclusiveRef {
		exists, err := transactionRepo.ExistsByRefID(ctx, unit.RefID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &RefClaimError{Scope: GlobalScope, RefID: unit.RefID}
		}
	}

	if err := inject(s.faults, StageAfterClaims, unit); err != nil {
		return nil, err
	}

	ids := unit.AccountIDs()
	locked, err := accountRepo.LockByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	accounts := make(map[uuid.UUID]*models.Account, len(locked))
	for _, account := range locked {
		accounts[account.ID] = account
	}
	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
		}
	}

	entries := make([]*models.Transaction, 0, len(unit.Postings))
	for _, posting := range unit.Postings {
		account := accounts[posting.AccountID]
		if err := CheckGuards(account, posting); err != nil {
			return nil, err
		}

		balance, err := accountRepo.ApplyDelta(ctx, posting.AccountID, posting.Delta())
		if errors.Is(err, models.ErrNegativeBalance) {
			return nil, &PreconditionError{
				AccountID: account.ID,
				Guard:     GuardSufficientFunds,
				Status:    account.Status,
				Balance:   account.Balance,
				Delta:     posting.Delta(),
			}
		}
		if err != nil {
			return nil, err
		}
		account.Balance = balance

		entry := cloneEntry(posting)
		entry.BalanceAfter = balance
		if err := transactionRepo.Create(ctx, entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)

		if err := inject(s.faults, stageAfter(posting), unit); err != nil {
			return nil, err
		}
	}

	if s.outboxExchange != "" {
		event := models.NewLedgerEvent(unit.Operation, unit.RefID, entries, time.Now())
		if err := outboxRepo.Enqueue(ctx, s.outboxExchange, event.RoutingKey(), event); err != nil {
			return nil, err
		}
	}

	if err := inject(s.faults, StageBeforeCommit, unit); err != nil {
		return nil, err
	}

	return &Applied{Accounts: accounts, Entries: entries}, nil
}

// GetAccount reads an account outside any unit
func (s *PostgresStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return repository.NewAccountRepository(s.db).FindByID(ctx, id)
}

// FindAccountByNumber reads an account by its account number
func (s *PostgresStore) FindAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	return repository.NewAccountRepository(s.db).FindByAccountNumber(ctx, accountNumber)
}

// FindAccountByEmail reads the account of the user with the email
func (s *PostgresStore) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return repository.NewAccountRepository(s.db).FindByEmail(ctx, email)
}

// FindAccountByPhone reads the account of the user whose phone digits match
func (s *PostgresStore) FindAccountByPhone(ctx context.Context, digits string) (*models.Account, error) {
	return repository.NewAccountRepository(s.db).FindByPhoneDigits(ctx, digits)
}

// ListAccountsByOwner reads every account of a user
func (s *PostgresStore) ListAccountsByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	return repository.NewAccountRepository(s.db).ListByUser(ctx, userID)
}

// FindTransactionsByRef reads the entries carrying refID; uuid.Nil searches every account
func (s *PostgresStore) FindTransactionsByRef(ctx context.Context, refID string, accountID uuid.UUID) ([]*models.Transaction, error) {
	return repository.NewTransactionRepository(s.db).FindByRefID(ctx, refID, accountID)
}

// ListTransactions reads a newest-first page of an account's entries
func (s *PostgresStore) ListTransactions(
	ctx context.Context,
	accountID uuid.UUID,
	limit int,
	cursor *models.Cursor,
) ([]*models.Transaction, error) {
	return repository.NewTransactionRepository(s.db).ListByAccount(ctx, accountID, limit, cursor)
}

// FindBalanceDrift compares every balance with its ledger history
func (s *PostgresStore) FindBalanceDrift(ctx context.Context) ([]models.BalanceDrift, error) {
	return repository.NewReconcileRepository(s.db).FindBalanceDrift(ctx)
}

var _ Store = (*PostgresStore)(nil)
