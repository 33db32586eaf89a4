package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the direction of a ledger entry
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "CREDIT"
	TransactionTypeDebit  TransactionType = "DEBIT"
)

// Operation is the balance mutation that produced a ledger entry
type Operation string

const (
	OperationDeposit  Operation = "deposit"
	OperationWithdraw Operation = "withdraw"
	OperationTransfer Operation = "transfer"
)

// Metadata keys written on ledger entries
const (
	MetaOperation                = "operation"
	MetaCounterpartAccountID     = "counterpart_account_id"
	MetaCounterpartAccountNumber = "counterpart_account_number"
)

// Transaction is an append-only ledger entry
type Transaction struct {
	CreatedAt    time.Time       `db:"created_at"`
	Metadata     map[string]any  `db:"metadata"`
	Description  string          `db:"description"`
	RefID        string          `db:"ref_id"`
	Type         TransactionType `db:"type"`
	Amount       int64           `db:"amount"`
	BalanceAfter int64           `db:"balance_after"`
	ID           uuid.UUID       `db:"id"`
	AccountID    uuid.UUID       `db:"account_id"`
}

// Operation returns the operation recorded in the entry metadata
func (t *Transaction) Operation() Operation {
	if t.Metadata == nil {
		return ""
	}
	op, _ := t.Metadata[MetaOperation].(string)
	return Operation(op)
}

// SignedAmount returns the amount as a balance delta
func (t *Transaction) SignedAmount() int64 {
	if t.Type == TransactionTypeDebit {
		return -t.Amount
	}
	return t.Amount
}

// RefClaim reserves a reference id within a scope
type RefClaim struct {
	CreatedAt time.Time `db:"created_at"`
	Scope     string    `db:"scope"`
	RefID     string    `db:"ref_id"`
	Operation Operation `db:"operation"`
}
