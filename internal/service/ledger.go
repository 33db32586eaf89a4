package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/benx421/bank-ledger/internal/ledger"
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/google/uuid"
)

const (
	defaultDepositDescription  = "Deposit"
	defaultWithdrawDescription = "Withdraw"
)

// LedgerService applies deposits, withdrawals and transfers through one
// atomic apply contract
type LedgerService struct {
	store    ledger.Store
	resolver *RecipientResolver
	logger   *slog.Logger
	newRef   func() string
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(store ledger.Store, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		store:    store,
		resolver: NewRecipientResolver(store),
		logger:   logger,
		newRef: func() string {
			return "trf_" + uuid.NewString()
		},
	}
}

// Deposit credits an account. Only privileged callers may deposit.
func (s *LedgerService) Deposit(ctx context.Context, caller Caller, req DepositRequest) (*Result, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	amount, err := ValidateAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	if !caller.Privileged {
		return nil, &ServiceError{
			Code:    ErrCodeForbidden,
			Message: "deposits require a privileged caller",
		}
	}

	account, err := s.loadAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	expected := []expectedEntry{{AccountID: account.ID, Type: models.TransactionTypeCredit, Amount: amount}}
	if req.RefID != "" {
		if result, found, err := s.replay(ctx, models.OperationDeposit, req.RefID, account.ID, expected); found {
			return result, err
		}
	}

	if err := requireActive(account); err != nil {
		return nil, err
	}

	unit := ledger.Unit{
		Operation: models.OperationDeposit,
		RefID:     req.RefID,
		Claims:    singleAccountClaims(models.OperationDeposit, req.RefID, account.ID),
		Postings: []ledger.Posting{{
			AccountID: account.ID,
			Guards:    ledger.GuardActive,
			Entry: &models.Transaction{
				Type:        models.TransactionTypeCredit,
				Amount:      amount,
				Description: withDefault(req.Description, defaultDepositDescription),
				RefID:       req.RefID,
				Metadata:    map[string]any{models.MetaOperation: string(models.OperationDeposit)},
			},
		}},
	}

	return s.execute(ctx, unit, account.ID, expected)
}

// Withdraw debits an account owned by the caller, or any account for a
// privileged caller
func (s *LedgerService) Withdraw(ctx context.Context, caller Caller, req WithdrawRequest) (*Result, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	amount, err := ValidateAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	account, err := s.loadAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !caller.CanOperate(account) {
		return nil, forbidden()
	}

	expected := []expectedEntry{{AccountID: account.ID, Type: models.TransactionTypeDebit, Amount: amount}}
	if req.RefID != "" {
		if result, found, err := s.replay(ctx, models.OperationWithdraw, req.RefID, account.ID, expected); found {
			return result, err
		}
	}

	if err := requireActive(account); err != nil {
		return nil, err
	}

	unit := ledger.Unit{
		Operation: models.OperationWithdraw,
		RefID:     req.RefID,
		Claims:    singleAccountClaims(models.OperationWithdraw, req.RefID, account.ID),
		Postings: []ledger.Posting{{
			AccountID: account.ID,
			Guards:    ledger.GuardActive | ledger.GuardSufficientFunds,
			Entry: &models.Transaction{
				Type:        models.TransactionTypeDebit,
				Amount:      amount,
				Description: withDefault(req.Description, defaultWithdrawDescription),
				RefID:       req.RefID,
				Metadata:    map[string]any{models.MetaOperation: string(models.OperationWithdraw)},
			},
		}},
	}

	return s.execute(ctx, unit, account.ID, expected)
}

// Transfer moves money from one of the caller's accounts to the account
// resolved from req.ToIdentifier. Both sides commit together or not at all.
func (s *LedgerService) Transfer(ctx context.Context, caller Caller, req TransferRequest) (*Result, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	amount, err := ValidateAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	source, err := s.loadAccount(ctx, req.FromAccountID)
	if err != nil {
		return nil, err
	}
	if !caller.CanOperate(source) {
		return nil, forbidden()
	}

	destination, err := s.resolver.Resolve(ctx, req.ToIdentifier)
	if err != nil {
		return nil, err
	}
	if destination.ID == source.ID {
		return nil, &ServiceError{
			Code:    ErrCodeInvalidOperation,
			Message: "cannot transfer to the same account",
		}
	}
	if destination.Currency != source.Currency {
		return nil, &ServiceError{
			Code:    ErrCodeInvalidOperation,
			Message: fmt.Sprintf("cannot transfer from %s to %s", source.Currency, destination.Currency),
		}
	}

	expected := []expectedEntry{
		{AccountID: source.ID, Type: models.TransactionTypeDebit, Amount: amount},
		{AccountID: destination.ID, Type: models.TransactionTypeCredit, Amount: amount},
	}
	if req.RefID != "" {
		if result, found, err := s.replay(ctx, models.OperationTransfer, req.RefID, uuid.Nil, expected); found {
			return result, err
		}
	}

	if err := requireActive(source); err != nil {
		return nil, err
	}
	if err := requireActive(destination); err != nil {
		return nil, err
	}

	ref := req.RefID
	if ref == "" {
		ref = s.newRef()
	}

	unit := ledger.Unit{
		Operation:    models.OperationTransfer,
		RefID:        ref,
		Claims:       transferClaims(ref, source.ID, destination.ID),
		ExclusiveRef: true,
		Postings: []ledger.Posting{
			{
				AccountID: source.ID,
				Guards:    ledger.GuardActive | ledger.GuardSufficientFunds,
				Entry: &models.Transaction{
					Type:        models.TransactionTypeDebit,
					Amount:      amount,
					Description: withDefault(req.Description, "Transfer to "+destination.AccountNumber),
					RefID:       ref,
					Metadata:    transferMeta(destination),
				},
			},
			{
				AccountID: destination.ID,
				Guards:    ledger.GuardActive,
				Entry: &models.Transaction{
					Type:        models.TransactionTypeCredit,
					Amount:      amount,
					Description: withDefault(req.Description, "Transfer from "+source.AccountNumber),
					RefID:       ref,
					Metadata:    transferMeta(source),
				},
			},
		},
	}

	result, err := s.execute(ctx, unit, uuid.Nil, expected)
	if err != nil {
		return nil, err
	}
	result.TransferRef = ref
	return result, nil
}

// execute applies the unit and maps store failures to service errors
func (s *LedgerService) execute(
	ctx context.Context,
	unit ledger.Unit,
	replayScope uuid.UUID,
	expected []expectedEntry,
) (*Result, error) {
	applied, err := s.store.ApplyAtomic(ctx, unit)
	if err != nil {
		return s.handleApplyError(ctx, unit, replayScope, expected, err)
	}

	result := &Result{
		Transactions: applied.Entries,
		Balances:     make([]Balance, 0, len(applied.Entries)),
	}
	for _, entry := range applied.Entries {
		result.Balances = append(result.Balances, newBalance(applied.Accounts[entry.AccountID]))
	}

	attrs := []any{"operation", unit.Operation, "amount", expected[0].Amount}
	for _, entry := range applied.Entries {
		attrs = append(attrs, strings.ToLower(string(entry.Type))+"_account_id", entry.AccountID)
	}
	if unit.RefID != "" {
		attrs = append(attrs, "ref_id", unit.RefID)
	}
	s.logger.Info("ledger operation committed", attrs...)

	return result, nil
}

func (s *LedgerService) handleApplyError(
	ctx context.Context,
	unit ledger.Unit,
	replayScope uuid.UUID,
	expected []expectedEntry,
	err error,
) (*Result, error) {
	var precondition *ledger.PreconditionError

	switch {
	case errors.Is(err, ledger.ErrRefClaimed):
		return s.replayAfterConflict(ctx, unit.Operation, unit.RefID, replayScope, expected)

	case errors.As(err, &precondition) && precondition.Guard == ledger.GuardSufficientFunds:
		s.logger.Warn("insufficient funds",
			"operation", unit.Operation,
			"account_id", precondition.AccountID,
			"balance", precondition.Balance,
			"amount", -precondition.Delta,
		)
		return nil, &ServiceError{
			Code:    ErrCodeInsufficientFunds,
			Message: "insufficient funds",
			Err:     err,
		}

	case errors.As(err, &precondition) && precondition.Guard == ledger.GuardActive:
		return nil, &ServiceError{
			Code:    ErrCodeInvalidOperation,
			Message: fmt.Sprintf("account is %s", precondition.Status),
			Err:     err,
		}

	case errors.Is(err, models.ErrNotFound):
		return nil, &ServiceError{
			Code:    ErrCodeNotFound,
			Message: "account not found",
			Err:     err,
		}

	default:
		s.logger.Error("ledger operation failed",
			"operation", unit.Operation,
			"ref_id", unit.RefID,
			"error", err,
		)
		return nil, internalError("failed to apply ledger operation", err)
	}
}

func (s *LedgerService) loadAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
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
	return account, nil
}

func requireActive(account *models.Account) error {
	if account.IsActive() {
		return nil
	}
	return &ServiceError{
		Code:    ErrCodeInvalidOperation,
		Message: fmt.Sprintf("account %s is %s", account.AccountNumber, account.Status),
	}
}

func forbidden() *ServiceError {
	return &ServiceError{
		Code:    ErrCodeForbidden,
		Message: "caller is not allowed to operate this account",
	}
}

func transferMeta(counterpart *models.Account) map[string]any {
	return map[string]any{
		models.MetaOperation:                string(models.OperationTransfer),
		models.MetaCounterpartAccountID:     counterpart.ID.String(),
		models.MetaCounterpartAccountNumber: counterpart.AccountNumber,
	}
}

func withDefault(description, fallback string) string {
	if description == "" {
		return fallback
	}
	return description
}
