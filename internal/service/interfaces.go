package service

import (
	"context"

	"github.com/google/uuid"
)

// HealthChecker validates system health.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// BalanceMutator applies deposits, withdrawals and transfers
type BalanceMutator interface {
	Deposit(ctx context.Context, caller Caller, req DepositRequest) (*Result, error)
	Withdraw(ctx context.Context, caller Caller, req WithdrawRequest) (*Result, error)
	Transfer(ctx context.Context, caller Caller, req TransferRequest) (*Result, error)
}

// AccountQuerier serves read-only account queries
type AccountQuerier interface {
	GetAccount(ctx context.Context, caller Caller, id uuid.UUID) (*AccountView, error)
	ListMyAccounts(ctx context.Context, caller Caller) ([]*AccountView, error)
	ListTransactions(ctx context.Context, caller Caller, accountID uuid.UUID, limit int, cursor string) (*TransactionPage, error)
}

// Ensure concrete types implement interfaces
var (
	_ BalanceMutator = (*LedgerService)(nil)
	_ AccountQuerier = (*AccountService)(nil)
)
