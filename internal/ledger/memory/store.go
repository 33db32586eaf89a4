// Package memory implements the ledger store contract in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benx421/bank-ledger/internal/ledger"
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/google/uuid"
)

type claimKey struct {
	scope string
	refID string
}

// Store keeps accounts, users and ledger entries behind one mutex. A unit is
// staged on copies and written back only when every step succeeds.
type Store struct {
	accounts     map[uuid.UUID]*models.Account
	users        map[uuid.UUID]*models.User
	profiles     map[uuid.UUID]*models.CustomerProfile
	claims       map[claimKey]models.RefClaim
	faults       ledger.FaultInjector
	now          func() time.Time
	transactions []*models.Transaction
	events       []*models.LedgerEvent
	mu           sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithFaultInjector installs a fault injector
func WithFaultInjector(f ledger.FaultInjector) Option {
	return func(s *Store) {
		s.faults = f
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store
func New(opts ...Option) *Store {
	s := &Store{
		accounts: make(map[uuid.UUID]*models.Account),
		users:    make(map[uuid.UUID]*models.User),
		profiles: make(map[uuid.UUID]*models.CustomerProfile),
		claims:   make(map[claimKey]models.RefClaim),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFaultInjector replaces the fault injector
func (s *Store) SetFaultInjector(f ledger.FaultInjector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

// AddUser registers a user and, when phone is not empty, their profile
func (s *Store) AddUser(user *models.User, phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	u := *user
	s.users[u.ID] = &u
	if phone != "" {
		s.profiles[u.ID] = &models.CustomerProfile{UserID: u.ID, Phone: phone}
	}
}

// AddAccount registers an account. A non-zero opening balance is recorded as a
// CREDIT entry so the ledger history always explains the balance.
func (s *Store) AddAccount(account *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now()
		account.UpdatedAt = account.CreatedAt
	}

	a := *account
	s.accounts[a.ID] = &a

	if a.Balance > 0 {
		s.transactions = append(s.transactions, &models.Transaction{
			ID:           uuid.New(),
			AccountID:    a.ID,
			Type:         models.TransactionTypeCredit,
			Amount:       a.Balance,
			BalanceAfter: a.Balance,
			Description:  "Opening balance",
			Metadata:     map[string]any{},
			CreatedAt:    a.CreatedAt,
		})
	}
}

// SetStatus changes the status of an account
func (s *Store) SetStatus(accountID uuid.UUID, status models.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
	}
	account.Status = status
	account.UpdatedAt = s.now()
	return nil
}

// Transactions returns a copy of every committed entry in insertion order
func (s *Store) Transactions() []*models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Transaction, len(s.transactions))
	for i, t := range s.transactions {
		out[i] = copyTransaction(t)
	}
	return out
}

// Events returns the ledger events of every committed unit
func (s *Store) Events() []*models.LedgerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*models.LedgerEvent(nil), s.events...)
}

// ApplyAtomic applies every posting and claim of unit or none of them
func (s *Store) ApplyAtomic(ctx context.Context, unit ledger.Unit) (*ledger.Applied, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if unit.RefID != "" && !unit.ClaimsGlobalRef() {
		if _, taken := s.claims[claimKey{scope: ledger.GlobalScope, refID: unit.RefID}]; taken {
			return nil, &ledger.RefClaimError{Scope: ledger.GlobalScope, RefID: unit.RefID}
		}
	}

	claims := make([]models.RefClaim, 0, len(unit.Claims))
	staged := make(map[claimKey]struct{}, len(unit.Claims))
	for _, claim := range unit.Claims {
		key := claimKey{scope: claim.Scope, refID: claim.RefID}
		if _, taken := s.claims[key]; taken {
			return nil, &ledger.RefClaimError{Scope: claim.Scope, RefID: claim.RefID}
		}
		if _, dup := staged[key]; dup {
			return nil, &ledger.RefClaimError{Scope: claim.Scope, RefID: claim.RefID}
		}
		staged[key] = struct{}{}
		claim.CreatedAt = now
		claims = append(claims, claim)
	}

	if unit.ExclusiveRef && s.refInUse(unit.RefID) {
		return nil, &ledger.RefClaimError{Scope: ledger.GlobalScope, RefID: unit.RefID}
	}

	if err := inject(s.faults, ledger.StageAfterClaims, &unit); err != nil {
		return nil, err
	}

	accounts := make(map[uuid.UUID]*models.Account, len(unit.Postings))
	for _, id := range unit.AccountIDs() {
		account, ok := s.accounts[id]
		if !ok {
			return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
		}
		a := *account
		accounts[id] = &a
	}

	entries := make([]*models.Transaction, 0, len(unit.Postings))
	for _, posting := range unit.Postings {
		account := accounts[posting.AccountID]
		if err := ledger.CheckGuards(account, posting); err != nil {
			return nil, err
		}
		if account.Balance+posting.Delta() < 0 {
			return nil, &ledger.PreconditionError{
				AccountID: account.ID,
				Guard:     ledger.GuardSufficientFunds,
				Status:    account.Status,
				Balance:   account.Balance,
				Delta:     posting.Delta(),
			}
		}

		account.Balance += posting.Delta()
		account.UpdatedAt = now

		entry := *posting.Entry
		entry.ID = uuid.New()
		entry.AccountID = posting.AccountID
		entry.BalanceAfter = account.Balance
		entry.CreatedAt = now
		entries = append(entries, &entry)

		stage := ledger.StageAfterCredit
		if posting.Delta() < 0 {
			stage = ledger.StageAfterDebit
		}
		if err := inject(s.faults, stage, &unit); err != nil {
			return nil, err
		}
	}

	if err := inject(s.faults, ledger.StageBeforeCommit, &unit); err != nil {
		return nil, err
	}

	for _, claim := range claims {
		s.claims[claimKey{scope: claim.Scope, refID: claim.RefID}] = claim
	}
	result := make(map[uuid.UUID]*models.Account, len(accounts))
	for id, account := range accounts {
		committed := *account
		s.accounts[id] = &committed
		out := committed
		result[id] = &out
	}
	applied := make([]*models.Transaction, 0, len(entries))
	for _, entry := range entries {
		s.transactions = append(s.transactions, entry)
		applied = append(applied, copyTransaction(entry))
	}
	s.events = append(s.events, models.NewLedgerEvent(unit.Operation, unit.RefID, entries, now))

	return &ledger.Applied{Accounts: result, Entries: applied}, nil
}

func (s *Store) refInUse(refID string) bool {
	for _, t := range s.transactions {
		if t.RefID == refID {
			return true
		}
	}
	return false
}

// GetAccount reads an account
func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", models.ErrNotFound)
	}
	a := *account
	return &a, nil
}

// FindAccountByNumber reads an account by its account number
func (s *Store) FindAccountByNumber(_ context.Context, accountNumber string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if account.AccountNumber == accountNumber {
			a := *account
			return &a, nil
		}
	}
	return nil, fmt.Errorf("account not found: %w", models.ErrNotFound)
}

// FindAccountByEmail reads the account of the user with the email, ignoring case
func (s *Store) FindAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range s.users {
		if user.Email == email {
			return s.primaryAccount(user.ID)
		}
	}
	return nil, fmt.Errorf("account not found: %w", models.ErrNotFound)
}

// FindAccountByPhone reads the account of the user whose phone digits match
func (s *Store) FindAccountByPhone(_ context.Context, digits string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, profile := range s.profiles {
		if onlyDigits(profile.Phone) == digits {
			return s.primaryAccount(profile.UserID)
		}
	}
	return nil, fmt.Errorf("account not found: %w", models.ErrNotFound)
}

// primaryAccount returns the oldest active account of a user, falling back to
// the oldest account. Caller holds mu.
func (s *Store) primaryAccount(userID uuid.UUID) (*models.Account, error) {
	owned := s.ownedBy(userID)
	if len(owned) == 0 {
		return nil, fmt.Errorf("account not found: %w", models.ErrNotFound)
	}
	for _, account := range owned {
		if account.IsActive() {
			return account, nil
		}
	}
	return owned[0], nil
}

// ListAccountsByOwner reads every account of a user, oldest first
func (s *Store) ListAccountsByOwner(_ context.Context, userID uuid.UUID) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ownedBy(userID), nil
}

func (s *Store) ownedBy(userID uuid.UUID) []*models.Account {
	var owned []*models.Account
	for _, account := range s.accounts {
		if account.UserID == userID {
			a := *account
			owned = append(owned, &a)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID.String() < owned[j].ID.String()
		}
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})
	return owned
}

// FindTransactionsByRef reads the entries carrying refID, debits first;
// uuid.Nil searches every account
func (s *Store) FindTransactionsByRef(_ context.Context, refID string, accountID uuid.UUID) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []*models.Transaction
	for _, t := range s.transactions {
		if t.RefID != refID {
			continue
		}
		if accountID != uuid.Nil && t.AccountID != accountID {
			continue
		}
		found = append(found, copyTransaction(t))
	}
	sort.SliceStable(found, func(i, j int) bool {
		if !found[i].CreatedAt.Equal(found[j].CreatedAt) {
			return found[i].CreatedAt.Before(found[j].CreatedAt)
		}
		return found[i].Type == models.TransactionTypeDebit && found[j].Type != models.TransactionTypeDebit
	})
	return found, nil
}

// ListTransactions reads a newest-first page of an account's entries
func (s *Store) ListTransactions(
	_ context.Context,
	accountID uuid.UUID,
	limit int,
	cursor *models.Cursor,
) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.Transaction
	for _, t := range s.transactions {
		if t.AccountID == accountID {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := make([]*models.Transaction, 0, limit)
	for _, t := range matched {
		if cursor != nil && !cursor.Before(t) {
			continue
		}
		page = append(page, copyTransaction(t))
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

// FindBalanceDrift compares every balance with its ledger history
func (s *Store) FindBalanceDrift(_ context.Context) ([]models.BalanceDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sums := make(map[uuid.UUID]int64, len(s.accounts))
	for _, t := range s.transactions {
		sums[t.AccountID] += t.SignedAmount()
	}

	var drift []models.BalanceDrift
	for id, account := range s.accounts {
		if account.Balance != sums[id] || account.Balance < 0 {
			drift = append(drift, models.BalanceDrift{
				AccountID: id,
				Balance:   account.Balance,
				LedgerSum: sums[id],
			})
		}
	}
	sort.Slice(drift, func(i, j int) bool {
		return drift[i].AccountID.String() < drift[j].AccountID.String()
	})
	return drift, nil
}

func inject(f ledger.FaultInjector, stage ledger.Stage, unit *ledger.Unit) error {
	if f == nil {
		return nil
	}
	return f.Inject(stage, unit)
}

func copyTransaction(t *models.Transaction) *models.Transaction {
	c := *t
	return &c
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var _ ledger.Store = (*Store)(nil)
