package service

import (
	"context"
	"errors"
	"time"

	"github.com/benx421/bank-ledger/internal/ledger"
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/benx421/bank-ledger/internal/money"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AccountView is an account as shown to its owner
type AccountView struct {
	CreatedAt      time.Time            `json:"createdAt"`
	AccountNumber  string               `json:"accountNumber"`
	Currency       string               `json:"currency"`
	DisplayBalance string               `json:"displayBalance"`
	Type           models.AccountType   `json:"type"`
	Status         models.AccountStatus `json:"status"`
	Balance        int64                `json:"balance"`
	ID             uuid.UUID            `json:"id"`
}

// TransactionPage is one page of an account's history, newest first
type TransactionPage struct {
	NextCursor   string                `json:"nextCursor,omitempty"`
	Transactions []*models.Transaction `json:"transactions"`
}

// AccountService serves read-only account queries
type AccountService struct {
	store ledger.Store
}

// NewAccountService creates a new AccountService
func NewAccountService(store ledger.Store) *AccountService {
	return &AccountService{store: store}
}

// GetAccount returns an account owned by the caller, or any account for a privileged caller
func (s *AccountService) GetAccount(ctx context.Context, caller Caller, id uuid.UUID) (*AccountView, error) {
	account, err := s.authorizedAccount(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return newAccountView(account), nil
}

// ListMyAccounts returns every account owned by the caller
func (s *AccountService) ListMyAccounts(ctx context.Context, caller Caller) ([]*AccountView, error) {
	accounts, err := s.store.ListAccountsByOwner(ctx, caller.ID)
	if err != nil {
		return nil, internalError("failed to list accounts", err)
	}

	views := make([]*AccountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, newAccountView(account))
	}
	return views, nil
}

// ListTransactions returns a page of an account's ledger entries. cursor is the
// NextCursor of the previous page, or empty for the first page.
func (s *AccountService) ListTransactions(
	ctx context.Context,
	caller Caller,
	accountID uuid.UUID,
	limit int,
	cursor string,
) (*TransactionPage, error) {
	if _, err := s.authorizedAccount(ctx, caller, accountID); err != nil {
		return nil, err
	}

	var after *models.Cursor
	if cursor != "" {
		decoded, err := models.DecodeCursor(cursor)
		if err != nil {
			return nil, &ServiceError{
				Code:    ErrCodeInvalidOperation,
				Message: "invalid cursor",
				Err:     err,
			}
		}
		after = decoded
	}

	limit = ValidatePageSize(limit)
	txns, err := s.store.ListTransactions(ctx, accountID, limit, after)
	if err != nil {
		return nil, internalError("failed to list transactions", err)
	}

	page := &TransactionPage{Transactions: txns}
	if len(txns) == limit {
		last := txns[len(txns)-1]
		page.NextCursor = models.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}

func (s *AccountService) authorizedAccount(ctx context.Context, caller Caller, id uuid.UUID) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, &ServiceError{
			Code:    ErrCodeNotFound,
			Message: "account not found",
		}
	}
	if err != nil {
		return nil, internalError("failed to read account", err)
	}
	if !caller.CanOperate(account) {
		return nil, forbidden()
	}
	return account, nil
}

func newAccountView(account *models.Account) *AccountView {
	return &AccountView{
		ID:             account.ID,
		AccountNumber:  account.AccountNumber,
		Type:           account.Type,
		Currency:       account.Currency,
		Status:         account.Status,
		Balance:        account.Balance,
		DisplayBalance: money.Format(account.Balance),
		CreatedAt:      account.CreatedAt,
	}
}
