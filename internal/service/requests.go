package service

import (
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/benx421/bank-ledger/internal/money"
	"github.com/google/uuid"
)

// DepositRequest credits an account
type DepositRequest struct {
	Amount      money.Amount `json:"amount"`
	Description string       `json:"description" validate:"max=255"`
	RefID       string       `json:"refId" validate:"max=128"`
	AccountID   uuid.UUID    `json:"accountId" validate:"required"`
}

// WithdrawRequest debits an account
type WithdrawRequest struct {
	Amount      money.Amount `json:"amount"`
	Description string       `json:"description" validate:"max=255"`
	RefID       string       `json:"refId" validate:"max=128"`
	AccountID   uuid.UUID    `json:"accountId" validate:"required"`
}

// TransferRequest moves money to an account found by number, email or phone
type TransferRequest struct {
	Amount        money.Amount `json:"amount"`
	ToIdentifier  string       `json:"to" validate:"required,max=320"`
	Description   string       `json:"description" validate:"max=255"`
	RefID         string       `json:"refId" validate:"max=128"`
	FromAccountID uuid.UUID    `json:"fromAccountId" validate:"required"`
}

// Balance is an account balance after an operation
type Balance struct {
	AccountNumber string    `json:"accountNumber"`
	Display       string    `json:"display"`
	Balance       int64     `json:"balance"`
	AccountID     uuid.UUID `json:"accountId"`
}

// Result is the outcome of a deposit, withdraw or transfer. Replayed is true
// when the reference was already applied and the recorded outcome is returned.
type Result struct {
	TransferRef  string                `json:"transferRef,omitempty"`
	Transactions []*models.Transaction `json:"transactions"`
	Balances     []Balance             `json:"balances"`
	Replayed     bool                  `json:"replayed"`
}

func newBalance(account *models.Account) Balance {
	return Balance{
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Balance:       account.Balance,
		Display:       money.Format(account.Balance),
	}
}
