package models

import (
	"time"

	"github.com/google/uuid"
)

// BalanceDrift reports an account whose balance disagrees with its ledger history
type BalanceDrift struct {
	AccountID uuid.UUID `db:"account_id"`
	Balance   int64     `db:"balance"`
	LedgerSum int64     `db:"ledger_sum"`
}

// LedgerEvent is published once a balance mutation commits
type LedgerEvent struct {
	OccurredAt time.Time          `json:"occurred_at"`
	Operation  Operation          `json:"operation"`
	RefID      string             `json:"ref_id,omitempty"`
	Entries    []LedgerEventEntry `json:"entries"`
}

// LedgerEventEntry describes one ledger entry inside a LedgerEvent
type LedgerEventEntry struct {
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"`
	BalanceAfter  int64           `json:"balance_after"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id"`
}

// RoutingKey returns the broker routing key for the event
func (e *LedgerEvent) RoutingKey() string {
	return "ledger." + string(e.Operation) + ".posted"
}

// NewLedgerEvent builds the event for a committed set of entries
func NewLedgerEvent(op Operation, refID string, entries []*Transaction, at time.Time) *LedgerEvent {
	event := &LedgerEvent{
		OccurredAt: at.UTC(),
		Operation:  op,
		RefID:      refID,
		Entries:    make([]LedgerEventEntry, 0, len(entries)),
	}
	for _, entry := range entries {
		event.Entries = append(event.Entries, LedgerEventEntry{
			TransactionID: entry.ID,
			AccountID:     entry.AccountID,
			Type:          entry.Type,
			Amount:        entry.Amount,
			BalanceAfter:  entry.BalanceAfter,
		})
	}
	return event
}
