package service

import (
	"context"

	"github.com/benx421/bank-ledger/internal/ledger"
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/google/uuid"
)

// expectedEntry is what an earlier application of the same request must have recorded
type expectedEntry struct {
	Type      models.TransactionType
	Amount    int64
	AccountID uuid.UUID
}

// singleAccountClaims scopes a deposit or withdraw reference to its account
func singleAccountClaims(op models.Operation, refID string, accountID uuid.UUID) []models.RefClaim {
	if refID == "" {
		return nil
	}
	return []models.RefClaim{{Scope: accountID.String(), RefID: refID, Operation: op}}
}

// transferClaims reserves the reference globally and on both accounts, so a
// later deposit or withdraw cannot reuse it on either side
func transferClaims(refID string, from, to uuid.UUID) []models.RefClaim {
	return []models.RefClaim{
		{Scope: ledger.GlobalScope, RefID: refID, Operation: models.OperationTransfer},
		{Scope: from.String(), RefID: refID, Operation: models.OperationTransfer},
		{Scope: to.String(), RefID: refID, Operation: models.OperationTransfer},
	}
}

// replay looks up entries already recorded under refID. scope limits the
// search to one account; uuid.Nil searches every account. It reports whether
// anything was recorded and fails with duplicate_ref when the recorded entries
// belong to a different request.
func (s *LedgerService) replay(
	ctx context.Context,
	op models.Operation,
	refID string,
	scope uuid.UUID,
	expected []expectedEntry,
) (*Result, bool, error) {
	entries, err := s.store.FindTransactionsByRef(ctx, refID, scope)
	if err != nil {
		return nil, false, internalError("failed to look up reference", err)
	}
	if scope == uuid.Nil {
		entries = recordedBy(op, entries)
	}
	if len(entries) == 0 {
		return nil, false, nil
	}

	if !matchesRecorded(op, entries, expected) {
		s.logger.Warn("reference reused for a different request",
			"operation", op,
			"ref_id", refID,
		)
		return nil, true, duplicateRef(refID)
	}

	balances := make([]Balance, 0, len(entries))
	for _, entry := range entries {
		account, err := s.store.GetAccount(ctx, entry.AccountID)
		if err != nil {
			return nil, true, internalError("failed to read balance for replay", err)
		}
		balances = append(balances, newBalance(account))
	}

	result := &Result{
		Transactions: entries,
		Balances:     balances,
		Replayed:     true,
	}
	if op == models.OperationTransfer {
		result.TransferRef = refID
	}

	s.logger.Info("replayed ledger operation",
		"operation", op,
		"ref_id", refID,
	)

	return result, true, nil
}

// replayAfterConflict runs once a unit lost the race for its reference. The
// winner has committed, so anything other than a matching replay is a duplicate.
func (s *LedgerService) replayAfterConflict(
	ctx context.Context,
	op models.Operation,
	refID string,
	scope uuid.UUID,
	expected []expectedEntry,
) (*Result, error) {
	result, found, err := s.replay(ctx, op, refID, scope, expected)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, duplicateRef(refID)
	}
	return result, nil
}

// recordedBy keeps the entries written by op. An account-wide search can also
// return entries of unrelated single-account operations that share the ref.
func recordedBy(op models.Operation, entries []*models.Transaction) []*models.Transaction {
	out := entries[:0:0]
	for _, entry := range entries {
		if entry.Operation() == op {
			out = append(out, entry)
		}
	}
	return out
}

func matchesRecorded(op models.Operation, entries []*models.Transaction, expected []expectedEntry) bool {
	if len(entries) != len(expected) {
		return false
	}
	for i, entry := range entries {
		want := expected[i]
		if entry.Operation() != op ||
			entry.AccountID != want.AccountID ||
			entry.Type != want.Type ||
			entry.Amount != want.Amount {
			return false
		}
	}
	return true
}

func duplicateRef(refID string) *ServiceError {
	return &ServiceError{
		Code:    ErrCodeDuplicateRef,
		Message: "reference " + refID + " was already used for a different operation",
	}
}
