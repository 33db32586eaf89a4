// Package ledger defines the atomic apply contract for balance mutations and
// its PostgreSQL implementation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/benx421/bank-ledger/internal/models"
	"github.com/google/uuid"
)

// GlobalScope is the claim scope for references that must be unique across every account
const GlobalScope = "*"

// Guard is a condition checked on a locked account before its posting applies
type Guard uint8

const (
	// GuardActive requires the account to be active
	GuardActive Guard = 1 << iota
	// GuardSufficientFunds requires balance + delta >= 0
	GuardSufficientFunds
)

func (g Guard) String() string {
	switch g {
	case GuardActive:
		return "active"
	case GuardSufficientFunds:
		return "sufficient_funds"
	default:
		return fmt.Sprintf("guard(%d)", uint8(g))
	}
}

var (
	// ErrPreconditionFailed is matched by every *PreconditionError
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrRefClaimed is matched by every *RefClaimError
	ErrRefClaimed = errors.New("reference already claimed")

	// ErrRetriesExhausted is returned when transient storage conflicts persist
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrInvalidUnit is returned for units that cannot be applied
	ErrInvalidUnit = errors.New("invalid unit")
)

// PreconditionError reports the guard that did not hold at apply time
type PreconditionError struct {
	Status    models.AccountStatus
	Guard     Guard
	Balance   int64
	Delta     int64
	AccountID uuid.UUID
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition %s failed on account %s (status=%s balance=%d delta=%d)",
		e.Guard, e.AccountID, e.Status, e.Balance, e.Delta)
}

// Is makes errors.Is(err, ErrPreconditionFailed) true
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPreconditionFailed
}

// RefClaimError reports a reference that a committed unit already claimed
type RefClaimError struct {
	Scope string
	RefID string
}

func (e *RefClaimError) Error() string {
	return fmt.Sprintf("reference %q already claimed in scope %s", e.RefID, e.Scope)
}

// Is makes errors.Is(err, ErrRefClaimed) true
func (e *RefClaimError) Is(target error) bool {
	return target == ErrRefClaimed
}

// Posting changes one account balance and appends the matching ledger entry.
// The balance delta is the entry's signed amount.
type Posting struct {
	Entry     *models.Transaction
	AccountID uuid.UUID
	Guards    Guard
}

// Delta returns the balance change of the posting
func (p Posting) Delta() int64 {
	return p.Entry.SignedAmount()
}

// Unit is applied all-or-nothing by a Store
type Unit struct {
	Operation models.Operation
	RefID     string
	Claims    []models.RefClaim
	Postings  []Posting

	// ExclusiveRef rejects the unit when any account already has an entry with RefID.
	ExclusiveRef bool
}

// ClaimsGlobalRef reports whether the unit claims RefID in GlobalScope. A unit
// with a RefID that does not is rejected once another unit holds that claim.
func (u *Unit) ClaimsGlobalRef() bool {
	for _, claim := range u.Claims {
		if claim.Scope == GlobalScope && claim.RefID == u.RefID {
			return true
		}
	}
	return false
}

// Validate checks the unit is well formed
func (u *Unit) Validate() error {
	if len(u.Postings) == 0 {
		return fmt.Errorf("%w: no postings", ErrInvalidUnit)
	}
	for i, p := range u.Postings {
		if p.Entry == nil {
			return fmt.Errorf("%w: posting %d has no entry", ErrInvalidUnit, i)
		}
		if p.Entry.Amount <= 0 {
			return fmt.Errorf("%w: posting %d amount must be positive", ErrInvalidUnit, i)
		}
		if p.AccountID == uuid.Nil {
			return fmt.Errorf("%w: posting %d has no account", ErrInvalidUnit, i)
		}
	}
	if u.ExclusiveRef && u.RefID == "" {
		return fmt.Errorf("%w: exclusive ref requires a ref id", ErrInvalidUnit)
	}
	return nil
}

// AccountIDs returns the distinct accounts touched by the unit in ascending order,
// the order in which they are locked
func (u *Unit) AccountIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(u.Postings))
	ids := make([]uuid.UUID, 0, len(u.Postings))
	for _, p := range u.Postings {
		if _, ok := seen[p.AccountID]; ok {
			continue
		}
		seen[p.AccountID] = struct{}{}
		ids = append(ids, p.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// Applied is the committed outcome of a unit
type Applied struct {
	Accounts map[uuid.UUID]*models.Account
	Entries  []*models.Transaction
}

// Store applies units atomically and serves point-in-time reads.
// Callers that need read-then-write consistency must go through ApplyAtomic.
type Store interface {
	ApplyAtomic(ctx context.Context, unit Unit) (*Applied, error)

	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	FindAccountByPhone(ctx context.Context, digits string) (*models.Account, error)
	ListAccountsByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Account, error)

	FindTransactionsByRef(ctx context.Context, refID string, accountID uuid.UUID) ([]*models.Transaction, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int, cursor *models.Cursor) ([]*models.Transaction, error)

	FindBalanceDrift(ctx context.Context) ([]models.BalanceDrift, error)
}

// CheckGuards evaluates a posting's guards against the locked account state
func CheckGuards(account *models.Account, p Posting) error {
	if p.Guards&GuardActive != 0 && !account.IsActive() {
		return &PreconditionError{
			AccountID: account.ID,
			Guard:     GuardActive,
			Status:    account.Status,
			Balance:   account.Balance,
			Delta:     p.Delta(),
		}
	}
	if p.Guards&GuardSufficientFunds != 0 && account.Balance+p.Delta() < 0 {
		return &PreconditionError{
			AccountID: account.ID,
			Guard:     GuardSufficientFunds,
			Status:    account.Status,
			Balance:   account.Balance,
			Delta:     p.Delta(),
		}
	}
	return nil
}

// cloneEntry copies the template so a retried unit never reuses generated ids
func cloneEntry(p Posting) *models.Transaction {
	entry := *p.Entry
	entry.ID = uuid.New()
	entry.AccountID = p.AccountID
	return &entry
}
