package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benx421/bank-ledger/internal/config"
	"github.com/benx421/bank-ledger/internal/ledger"
	"github.com/benx421/bank-ledger/internal/ledger/memory"
	"github.com/benx421/bank-ledger/internal/ledger/mocks"
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var teller = Caller{ID: uuid.New(), Privileged: true}

type fixture struct {
	store        *memory.Store
	svc          *LedgerService
	aliceAccount *models.Account
	bobAccount   *models.Account
	alice        Caller
	bob          Caller
}

// tickingClock advances one second per call so entries sort deterministically
func tickingClock() func() time.Time {
	var n atomic.Int64
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func newFixture(t *testing.T, aliceBalance, bobBalance int64, opts ...memory.Option) *fixture {
	t.Helper()

	store := memory.New(append([]memory.Option{memory.WithClock(tickingClock())}, opts...)...)

	alice := &models.User{Email: "alice@example.com", Role: "customer"}
	bob := &models.User{Email: "Bob@Example.com", Role: "customer"}
	store.AddUser(alice, "+91 90000-11111")
	store.AddUser(bob, "+91 98765-43210")

	aliceAccount := &models.Account{UserID: alice.ID, AccountNumber: "1000000001", Balance: aliceBalance}
	bobAccount := &models.Account{UserID: bob.ID, AccountNumber: "1000000002", Balance: bobBalance}
	store.AddAccount(aliceAccount)
	store.AddAccount(bobAccount)

	return &fixture{
		store:        store,
		svc:          NewLedgerService(store, config.NewNopLogger()),
		alice:        Caller{ID: alice.ID},
		bob:          Caller{ID: bob.ID},
		aliceAccount: aliceAccount,
		bobAccount:   bobAccount,
	}
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	account, err := f.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func (f *fixture) entriesWithRef(ref string) []*models.Transaction {
	var out []*models.Transaction
	for _, txn := range f.store.Transactions() {
		if txn.RefID == ref {
			out = append(out, txn)
		}
	}
	return out
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var svcErr *ServiceError
	if assert.ErrorAs(t, err, &svcErr) {
		assert.Equal(t, code, svcErr.Code)
	}
}

func TestLedgerService_Withdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("debits the account", func(t *testing.T) {
		f := newFixture(t, 10000, 0)

		result, err := f.svc.Withdraw(ctx, f.alice, WithdrawRequest{
			AccountID: f.aliceAccount.ID,
			Amount:    "30.00",
		})

		require.NoError(t, err)
		require.Len(t, result.Transactions, 1)
		entry := result.Transactions[0]
		assert.Equal(t, models.TransactionTypeDebit, entry.Type)
		assert.Equal(t, int64(3000), entry.Amount)
		assert.Equal(t, int64(7000), entry.BalanceAfter)
		assert.Equal(t, "Withdraw", entry.Description)
		assert.Equal(t, models.OperationWithdraw, entry.Operation())
		assert.False(t, result.Replayed)

		require.Len(t, result.Balances, 1)
		assert.Equal(t, int64(7000), result.Balances[0].Balance)
		assert.Equal(t, "70.00", result.Balances[0].Display)
		assert.Equal(t, int64(7000), f.balance(t, f.aliceAccount.ID))
	})

	t.Run("insufficient funds leaves the balance unchanged", func(t *testing.T) {
		f := newFixture(t, 5000, 0)
		before := len(f.store.Transactions())

		result, err := f.svc.Withdraw(ctx, f.alice, WithdrawRequest{
			AccountID: f.aliceAccount.ID,
			Amount:    "60",
		})

		assert.Nil(t, result)
		assertCode(t, err, ErrCodeInsufficientFunds)
		assert.Equal(t, int64(5000), f.balance(t, f.aliceAccount.ID))
		assert.Len(t, f.store.Transactions(), before)
	})

	t.Run("withdrawing the whole balance is allowed", func(t *testing.T) {
		f := newFixture(t, 5000, 0)

		result, err := f.svc.Withdraw(ctx, f.alice, WithdrawRequest{
			AccountID: f.aliceAccount.ID,
			Amount:    "50",
		})

		require.NoError(t, err)
		assert.Equal(t, int64(0), result.Transactions[0].BalanceAfter)
	})

	t.Run("caller does not own the account", func(t *testing.T) {
		f := newFixture(t, 5000, 5000)

		_, err := f.svc.Withdraw(ctx, f.alice, WithdrawRequest{
			AccountID: f.bobAccount.ID,
			Amount:    "1",
		})

		assertCode(t, err, ErrCodeForbidden)
		assert.Equal(t, int64(5000), f.balance(t, f.bobAccount.ID))
	})

	t.Run("privileged caller may operate any account", func(t *testing.T) {
		f := newFixture(t, 5000, 5000)

		_, err := f.svc.Withdraw(ctx, teller, WithdrawRequest{
			AccountID: f.bobAccount.ID,
			Amount:    "1",
		})

		require.NoError(t, err)
		assert.Equal(t, int64(4900), f.balance(t, f.bobAccount.ID))
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newFixture(t, 5000, 0)

		_, err := f.svc.Withdraw(ctx, f.alice, WithdrawRequest{
			AccountID: uuid.New(),
			Amount:    "1",
		})

		assertCode(t, err, ErrCodeNotFound)
	})

	t.Run("frozen account", func(t *testing.T) {
		f := newFixture(t, 5000, 0)
		require.NoError(t, f.store.SetStatus(f.aliceAccount.ID, models.AccountStatusFrozen))

		_, err := f.svc.Withdraw(ctx, f.alice, WithdrawRequest{
			AccountID: f.aliceAccount.ID,
			Amount:    "1",
		})

		assertCode(t, err, ErrCodeInvalidOperation)
		assert.Equal(t, int64(5000), f.balance(t, f.aliceAccount.ID))
	})
}

func TestLedgerService_InvalidRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5000, 0)

	tests := []struct {
		name string
		call func() error
		code string
	}{
		{
			name: "zero amount",
			call: func() error {
				_, err := f.svc.Withdraw(ctx, f.alice, WithdrawRequest{AccountID: f.aliceAccount.ID, Amount: "0"})
				return err
			},
			code: ErrCodeInvalidAmount,
		},
		{
			name: "negative amount",
			call: func() error {
				_, err := f.svc.Deposit(ctx, teller, DepositRequest{AccountID: f.aliceAccount.ID, Amount: "-5"})
				return err
			},
			code: ErrCodeInvalidAmount,
		},
		{
			name: "amount rounding to zero",
			call: func() error {
				_, err := f.svc.Deposit(ctx, teller, DepositRequest{AccountID: f.aliceAccount.ID, Amount: "0.004"})
				return err
			},
			code: ErrCodeInvalidAmount,
		},
		{
			name: "not a number",
			call: func() error {
				_, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
					FromAccountID: f.aliceAccount.ID,
					ToIdentifier:  f.bobAccount.AccountNumber,
					Amount:        "ten",
				})
				return err
			},
			code: ErrCodeInvalidAmount,
		},
		{
			name: "missing account",
			call: func() error {
				_, err := f.svc.Withdraw(ctx, f.alice, WithdrawRequest{Amount: "1"})
				return err
			},
			code: ErrCodeInvalidOperation,
		},
		{
			name: "missing recipient",
			call: func() error {
				_, err := f.svc.Transfer(ctx, f.alice, TransferRequest{FromAccountID: f.aliceAccount.ID, Amount: "1"})
				return err
			},
			code: ErrCodeInvalidOperation,
		},
		{
			name: "reference too long",
			call: func() error {
				_, err := f.svc.Withdraw(ctx, f.alice, WithdrawRequest{
					AccountID: f.aliceAccount.ID,
					Amount:    "1",
					RefID:     strings.Repeat("r", 129),
				})
				return err
			},
			code: ErrCodeInvalidOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCode(t, tt.call(), tt.code)
		})
	}

	assert.Equal(t, int64(5000), f.balance(t, f.aliceAccount.ID))
}

func TestLedgerService_Deposit(t *testing.T) {
	ctx := context.Background()

	t.Run("rounds to the nearest minor unit", func(t *testing.T) {
		f := newFixture(t, 0, 0)

		result, err := f.svc.Deposit(ctx, teller, DepositRequest{
			AccountID:   f.aliceAccount.ID,
			Amount:      "19.999",
			Description: "Salary",
		})

		require.NoError(t, err)
		entry := result.Transactions[0]
		assert.Equal(t, models.TransactionTypeCredit, entry.Type)
		assert.Equal(t, int64(2000), entry.Amount)
		assert.Equal(t, int64(2000), entry.BalanceAfter)
		assert.Equal(t, "Salary", entry.Description)
		assert.Equal(t, int64(2000), f.balance(t, f.aliceAccount.ID))
	})

	t.Run("requires a privileged caller", func(t *testing.T) {
		f := newFixture(t, 0, 0)

		_, err := f.svc.Deposit(ctx, f.alice, DepositRequest{
			AccountID: f.aliceAccount.ID,
			Amount:    "10",
		})

		assertCode(t, err, ErrCodeForbidden)
		assert.Zero(t, f.balance(t, f.aliceAccount.ID))
	})

	t.Run("closed account", func(t *testing.T) {
		f := newFixture(t, 0, 0)
		require.NoError(t, f.store.SetStatus(f.aliceAccount.ID, models.AccountStatusClosed))

		_, err := f.svc.Deposit(ctx, teller, DepositRequest{
			AccountID: f.aliceAccount.ID,
			Amount:    "10",
		})

		assertCode(t, err, ErrCodeInvalidOperation)
	})
}

func TestLedgerService_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves money by account number", func(t *testing.T) {
		f := newFixture(t, 10000, 1000)

		result, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  "1000000002",
			Amount:        "25",
		})

		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(result.TransferRef, "trf_"))
		require.Len(t, result.Transactions, 2)

		debit, credit := result.Transactions[0], result.Transactions[1]
		assert.Equal(t, models.TransactionTypeDebit, debit.Type)
		assert.Equal(t, f.aliceAccount.ID, debit.AccountID)
		assert.Equal(t, int64(7500), debit.BalanceAfter)
		assert.Equal(t, "Transfer to 1000000002", debit.Description)
		assert.Equal(t, f.bobAccount.ID.String(), debit.Metadata[models.MetaCounterpartAccountID])

		assert.Equal(t, models.TransactionTypeCredit, credit.Type)
		assert.Equal(t, f.bobAccount.ID, credit.AccountID)
		assert.Equal(t, int64(3500), credit.BalanceAfter)
		assert.Equal(t, "Transfer from 1000000001", credit.Description)
		assert.Equal(t, "1000000001", credit.Metadata[models.MetaCounterpartAccountNumber])

		assert.Equal(t, result.TransferRef, debit.RefID)
		assert.Equal(t, result.TransferRef, credit.RefID)

		assert.Equal(t, int64(7500), f.balance(t, f.aliceAccount.ID))
		assert.Equal(t, int64(3500), f.balance(t, f.bobAccount.ID))
		assert.Len(t, f.store.Events(), 1)
	})

	t.Run("resolves the recipient by email and phone", func(t *testing.T) {
		f := newFixture(t, 10000, 0)

		for _, to := range []string{"BOB@example.COM", "+91-98765-43210"} {
			_, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
				FromAccountID: f.aliceAccount.ID,
				ToIdentifier:  to,
				Amount:        "10",
			})
			require.NoError(t, err, to)
		}

		assert.Equal(t, int64(8000), f.balance(t, f.aliceAccount.ID))
		assert.Equal(t, int64(2000), f.balance(t, f.bobAccount.ID))
	})

	t.Run("self transfer is rejected", func(t *testing.T) {
		f := newFixture(t, 10000, 0)

		_, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  "alice@example.com",
			Amount:        "10",
		})

		assertCode(t, err, ErrCodeInvalidOperation)
		assert.Equal(t, int64(10000), f.balance(t, f.aliceAccount.ID))
	})

	t.Run("recipient in another currency", func(t *testing.T) {
		f := newFixture(t, 10000, 0)
		euro := &models.Account{UserID: f.bob.ID, AccountNumber: "1000000003", Currency: "EUR"}
		f.store.AddAccount(euro)

		result, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  euro.AccountNumber,
			Amount:        "25",
		})

		assert.Nil(t, result)
		assertCode(t, err, ErrCodeInvalidOperation)
		assert.Equal(t, int64(10000), f.balance(t, f.aliceAccount.ID))
		assert.Equal(t, int64(0), f.balance(t, euro.ID))
		assert.Empty(t, f.store.Events())
	})

	t.Run("unknown recipient", func(t *testing.T) {
		f := newFixture(t, 10000, 0)

		_, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  "nobody@example.com",
			Amount:        "10",
		})

		assertCode(t, err, ErrCodeRecipientNotFound)
	})

	t.Run("insufficient funds moves nothing", func(t *testing.T) {
		f := newFixture(t, 1000, 500)

		_, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  f.bobAccount.AccountNumber,
			Amount:        "10.01",
		})

		assertCode(t, err, ErrCodeInsufficientFunds)
		assert.Equal(t, int64(1000), f.balance(t, f.aliceAccount.ID))
		assert.Equal(t, int64(500), f.balance(t, f.bobAccount.ID))
	})

	t.Run("frozen recipient", func(t *testing.T) {
		f := newFixture(t, 1000, 0)
		require.NoError(t, f.store.SetStatus(f.bobAccount.ID, models.AccountStatusFrozen))

		_, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  f.bobAccount.AccountNumber,
			Amount:        "1",
		})

		assertCode(t, err, ErrCodeInvalidOperation)
		assert.Equal(t, int64(1000), f.balance(t, f.aliceAccount.ID))
	})

	t.Run("source owned by someone else", func(t *testing.T) {
		f := newFixture(t, 1000, 1000)

		_, err := f.svc.Transfer(ctx, f.bob, TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  f.bobAccount.AccountNumber,
			Amount:        "1",
		})

		assertCode(t, err, ErrCodeForbidden)
	})

	t.Run("failure after the debit rolls back both sides", func(t *testing.T) {
		f := newFixture(t, 10000, 1000, memory.WithFaultInjector(ledger.FailAt(ledger.StageAfterDebit)))
		before := len(f.store.Transactions())

		_, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  f.bobAccount.AccountNumber,
			Amount:        "25",
			RefID:         "trf-fault",
		})

		assertCode(t, err, ErrCodeInternalError)
		assert.ErrorIs(t, err, ledger.ErrFaultInjected)
		assert.Equal(t, int64(10000), f.balance(t, f.aliceAccount.ID))
		assert.Equal(t, int64(1000), f.balance(t, f.bobAccount.ID))
		assert.Len(t, f.store.Transactions(), before)
		assert.Empty(t, f.store.Events())

		f.store.SetFaultInjector(nil)
		result, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  f.bobAccount.AccountNumber,
			Amount:        "25",
			RefID:         "trf-fault",
		})

		require.NoError(t, err, "the reference was not consumed by the failed attempt")
		assert.False(t, result.Replayed)
		assert.Equal(t, int64(7500), f.balance(t, f.aliceAccount.ID))
	})
}

func TestLedgerService_Idempotency(t *testing.T) {
	ctx := context.Background()

	t.Run("repeated deposit is applied once", func(t *testing.T) {
		f := newFixture(t, 0, 0)
		req := DepositRequest{AccountID: f.aliceAccount.ID, Amount: "100", RefID: "dep-1"}

		first, err := f.svc.Deposit(ctx, teller, req)
		require.NoError(t, err)
		second, err := f.svc.Deposit(ctx, teller, req)
		require.NoError(t, err)

		assert.False(t, first.Replayed)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.Transactions[0].ID, second.Transactions[0].ID)
		assert.Equal(t, int64(10000), second.Balances[0].Balance)
		assert.Equal(t, int64(10000), f.balance(t, f.aliceAccount.ID))
		assert.Len(t, f.entriesWithRef("dep-1"), 1)
	})

	t.Run("replay is returned after the account is frozen", func(t *testing.T) {
		f := newFixture(t, 5000, 0)
		req := WithdrawRequest{AccountID: f.aliceAccount.ID, Amount: "10", RefID: "wd-1"}

		_, err := f.svc.Withdraw(ctx, f.alice, req)
		require.NoError(t, err)
		require.NoError(t, f.store.SetStatus(f.aliceAccount.ID, models.AccountStatusFrozen))

		result, err := f.svc.Withdraw(ctx, f.alice, req)
		require.NoError(t, err)
		assert.True(t, result.Replayed)
		assert.Equal(t, int64(4000), f.balance(t, f.aliceAccount.ID))
	})

	t.Run("same reference on another account is independent", func(t *testing.T) {
		f := newFixture(t, 5000, 5000)

		_, err := f.svc.Withdraw(ctx, teller, WithdrawRequest{AccountID: f.aliceAccount.ID, Amount: "10", RefID: "atm-7"})
		require.NoError(t, err)
		result, err := f.svc.Withdraw(ctx, teller, WithdrawRequest{AccountID: f.bobAccount.ID, Amount: "10", RefID: "atm-7"})
		require.NoError(t, err)

		assert.False(t, result.Replayed)
		assert.Equal(t, int64(4000), f.balance(t, f.bobAccount.ID))
	})

	t.Run("reference reused with another amount", func(t *testing.T) {
		f := newFixture(t, 0, 0)

		_, err := f.svc.Deposit(ctx, teller, DepositRequest{AccountID: f.aliceAccount.ID, Amount: "100", RefID: "dep-2"})
		require.NoError(t, err)
		_, err = f.svc.Deposit(ctx, teller, DepositRequest{AccountID: f.aliceAccount.ID, Amount: "101", RefID: "dep-2"})

		assertCode(t, err, ErrCodeDuplicateRef)
		assert.Equal(t, int64(10000), f.balance(t, f.aliceAccount.ID))
	})

	t.Run("reference reused by another operation", func(t *testing.T) {
		f := newFixture(t, 5000, 0)

		_, err := f.svc.Deposit(ctx, teller, DepositRequest{AccountID: f.aliceAccount.ID, Amount: "10", RefID: "op-1"})
		require.NoError(t, err)
		_, err = f.svc.Withdraw(ctx, f.alice, WithdrawRequest{AccountID: f.aliceAccount.ID, Amount: "10", RefID: "op-1"})

		assertCode(t, err, ErrCodeDuplicateRef)
		assert.Equal(t, int64(6000), f.balance(t, f.aliceAccount.ID))
	})

	t.Run("repeated transfer is applied once", func(t *testing.T) {
		f := newFixture(t, 10000, 1000)
		req := TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  f.bobAccount.AccountNumber,
			Amount:        "25",
			RefID:         "trf-42",
		}

		first, err := f.svc.Transfer(ctx, f.alice, req)
		require.NoError(t, err)
		second, err := f.svc.Transfer(ctx, f.alice, req)
		require.NoError(t, err)

		assert.Equal(t, "trf-42", first.TransferRef)
		assert.Equal(t, "trf-42", second.TransferRef)
		assert.True(t, second.Replayed)
		require.Len(t, second.Transactions, 2)
		assert.Equal(t, models.TransactionTypeDebit, second.Transactions[0].Type)
		assert.Equal(t, int64(7500), f.balance(t, f.aliceAccount.ID))
		assert.Equal(t, int64(3500), f.balance(t, f.bobAccount.ID))
		assert.Len(t, f.entriesWithRef("trf-42"), 2)
	})

	t.Run("transfer reference cannot be reused on either side", func(t *testing.T) {
		f := newFixture(t, 10000, 1000)

		_, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  f.bobAccount.AccountNumber,
			Amount:        "25",
			RefID:         "trf-43",
		})
		require.NoError(t, err)

		_, err = f.svc.Deposit(ctx, teller, DepositRequest{AccountID: f.bobAccount.ID, Amount: "25", RefID: "trf-43"})
		assertCode(t, err, ErrCodeDuplicateRef)

		_, err = f.svc.Transfer(ctx, f.bob, TransferRequest{
			FromAccountID: f.bobAccount.ID,
			ToIdentifier:  f.aliceAccount.AccountNumber,
			Amount:        "25",
			RefID:         "trf-43",
		})
		assertCode(t, err, ErrCodeDuplicateRef)

		assert.Equal(t, int64(3500), f.balance(t, f.bobAccount.ID))
	})

	t.Run("transfer reference is reserved on unrelated accounts", func(t *testing.T) {
		f := newFixture(t, 10000, 1000)
		carol := &models.User{Email: "carol@example.com", Role: "customer"}
		f.store.AddUser(carol, "")
		carolAccount := &models.Account{UserID: carol.ID, AccountNumber: "1000000003", Balance: 2000}
		f.store.AddAccount(carolAccount)

		req := TransferRequest{
			FromAccountID: f.aliceAccount.ID,
			ToIdentifier:  f.bobAccount.AccountNumber,
			Amount:        "25",
			RefID:         "r1",
		}
		_, err := f.svc.Transfer(ctx, f.alice, req)
		require.NoError(t, err)

		_, err = f.svc.Deposit(ctx, teller, DepositRequest{AccountID: carolAccount.ID, Amount: "5", RefID: "r1"})
		assertCode(t, err, ErrCodeDuplicateRef)
		_, err = f.svc.Withdraw(ctx, Caller{ID: carol.ID}, WithdrawRequest{AccountID: carolAccount.ID, Amount: "5", RefID: "r1"})
		assertCode(t, err, ErrCodeDuplicateRef)
		assert.Equal(t, int64(2000), f.balance(t, carolAccount.ID))

		retry, err := f.svc.Transfer(ctx, f.alice, req)
		require.NoError(t, err)
		assert.True(t, retry.Replayed)
		require.Len(t, retry.Transactions, 2)
		assert.Equal(t, f.aliceAccount.ID, retry.Transactions[0].AccountID)
		assert.Equal(t, f.bobAccount.ID, retry.Transactions[1].AccountID)
		assert.Len(t, f.entriesWithRef("r1"), 2)
	})
}

func TestLedgerService_ConcurrentWithdrawals(t *testing.T) {
	const workers = 10

	f := newFixture(t, 9000, 0)
	ctx := context.Background()

	var (
		wg           sync.WaitGroup
		succeeded    atomic.Int64
		insufficient atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Withdraw(ctx, f.alice, WithdrawRequest{
				AccountID: f.aliceAccount.ID,
				Amount:    "10",
			})
			switch ErrorCode(err) {
			case "":
				succeeded.Add(1)
			case ErrCodeInsufficientFunds:
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers-1), succeeded.Load())
	assert.Equal(t, int64(1), insufficient.Load())
	assert.Zero(t, f.balance(t, f.aliceAccount.ID))

	drift, err := f.store.FindBalanceDrift(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestLedgerService_ConcurrentTransfersBothWays(t *testing.T) {
	const rounds = 20

	f := newFixture(t, 10000, 10000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(ctx, f.alice, TransferRequest{
				FromAccountID: f.aliceAccount.ID,
				ToIdentifier:  f.bobAccount.AccountNumber,
				Amount:        "1",
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(ctx, f.bob, TransferRequest{
				FromAccountID: f.bobAccount.ID,
				ToIdentifier:  f.aliceAccount.AccountNumber,
				Amount:        "1",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10000), f.balance(t, f.aliceAccount.ID))
	assert.Equal(t, int64(10000), f.balance(t, f.bobAccount.ID))
}

func TestLedgerService_StoreFailures(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	account := &models.Account{
		ID:            uuid.New(),
		UserID:        owner,
		AccountNumber: "1000000009",
		Status:        models.AccountStatusActive,
		Balance:       5000,
	}

	t.Run("lost reference race replays the winner", func(t *testing.T) {
		store := mocks.NewMockStore(t)
		svc := NewLedgerService(store, config.NewNopLogger())

		recorded := &models.Transaction{
			ID:        uuid.New(),
			AccountID: account.ID,
			Type:      models.TransactionTypeDebit,
			Amount:    1000,
			RefID:     "wd-race",
			Metadata:  map[string]any{models.MetaOperation: string(models.OperationWithdraw)},
		}

		store.On("GetAccount", ctx, account.ID).Return(account, nil)
		store.On("FindTransactionsByRef", ctx, "wd-race", account.ID).
			Return([]*models.Transaction{}, nil).Once()
		store.On("ApplyAtomic", ctx, mock.AnythingOfType("ledger.Unit")).
			Return(nil, &ledger.RefClaimError{Scope: account.ID.String(), RefID: "wd-race"})
		store.On("FindTransactionsByRef", ctx, "wd-race", account.ID).
			Return([]*models.Transaction{recorded}, nil).Once()

		result, err := svc.Withdraw(ctx, Caller{ID: owner}, WithdrawRequest{
			AccountID: account.ID,
			Amount:    "10",
			RefID:     "wd-race",
		})

		require.NoError(t, err)
		assert.True(t, result.Replayed)
		assert.Equal(t, recorded.ID, result.Transactions[0].ID)
	})

	t.Run("lost reference race with nothing recorded", func(t *testing.T) {
		store := mocks.NewMockStore(t)
		svc := NewLedgerService(store, config.NewNopLogger())

		store.On("GetAccount", ctx, account.ID).Return(account, nil)
		store.On("FindTransactionsByRef", ctx, "wd-race", account.ID).Return([]*models.Transaction{}, nil)
		store.On("ApplyAtomic", ctx, mock.AnythingOfType("ledger.Unit")).
			Return(nil, &ledger.RefClaimError{Scope: account.ID.String(), RefID: "wd-race"})

		_, err := svc.Withdraw(ctx, Caller{ID: owner}, WithdrawRequest{
			AccountID: account.ID,
			Amount:    "10",
			RefID:     "wd-race",
		})

		assertCode(t, err, ErrCodeDuplicateRef)
	})

	t.Run("transfer replay ignores single-account entries sharing the ref", func(t *testing.T) {
		store := mocks.NewMockStore(t)
		svc := NewLedgerService(store, config.NewNopLogger())

		recipient := &models.Account{
			ID:            uuid.New(),
			UserID:        uuid.New(),
			AccountNumber: "1000000010",
			Status:        models.AccountStatusActive,
		}
		transferMeta := map[string]any{models.MetaOperation: string(models.OperationTransfer)}
		recorded := []*models.Transaction{
			{ID: uuid.New(), AccountID: account.ID, Type: models.TransactionTypeDebit, Amount: 1000, RefID: "r1", Metadata: transferMeta},
			{ID: uuid.New(), AccountID: recipient.ID, Type: models.TransactionTypeCredit, Amount: 1000, RefID: "r1", Metadata: transferMeta},
			{
				ID:        uuid.New(),
				AccountID: uuid.New(),
				Type:      models.TransactionTypeCredit,
				Amount:    500,
				RefID:     "r1",
				Metadata:  map[string]any{models.MetaOperation: string(models.OperationDeposit)},
			},
		}

		store.On("GetAccount", ctx, account.ID).Return(account, nil)
		store.On("GetAccount", ctx, recipient.ID).Return(recipient, nil)
		store.On("FindAccountByNumber", ctx, recipient.AccountNumber).Return(recipient, nil)
		store.On("FindTransactionsByRef", ctx, "r1", uuid.Nil).Return(recorded, nil)

		result, err := svc.Transfer(ctx, Caller{ID: owner}, TransferRequest{
			FromAccountID: account.ID,
			ToIdentifier:  recipient.AccountNumber,
			Amount:        "10",
			RefID:         "r1",
		})

		require.NoError(t, err)
		assert.True(t, result.Replayed)
		require.Len(t, result.Transactions, 2)
		assert.Equal(t, recorded[0].ID, result.Transactions[0].ID)
		assert.Equal(t, recorded[1].ID, result.Transactions[1].ID)
	})

	t.Run("storage errors become internal errors", func(t *testing.T) {
		for _, storeErr := range []error{
			errors.New("connection reset by peer"),
			ledger.ErrRetriesExhausted,
		} {
			store := mocks.NewMockStore(t)
			svc := NewLedgerService(store, config.NewNopLogger())

			store.On("GetAccount", ctx, account.ID).Return(account, nil)
			store.On("ApplyAtomic", ctx, mock.AnythingOfType("ledger.Unit")).Return(nil, storeErr)

			_, err := svc.Withdraw(ctx, Caller{ID: owner}, WithdrawRequest{AccountID: account.ID, Amount: "10"})

			assertCode(t, err, ErrCodeInternalError)
			assert.ErrorIs(t, err, storeErr)
		}
	})

	t.Run("account read failure", func(t *testing.T) {
		store := mocks.NewMockStore(t)
		svc := NewLedgerService(store, config.NewNopLogger())

		store.On("GetAccount", ctx, account.ID).Return(nil, errors.New("timeout"))

		_, err := svc.Withdraw(ctx, Caller{ID: owner}, WithdrawRequest{AccountID: account.ID, Amount: "10"})

		assertCode(t, err, ErrCodeInternalError)
	})

	t.Run("withdraw unit guards funds and status", func(t *testing.T) {
		store := mocks.NewMockStore(t)
		svc := NewLedgerService(store, config.NewNopLogger())

		store.On("GetAccount", ctx, account.ID).Return(account, nil)
		store.On("ApplyAtomic", ctx, mock.MatchedBy(func(unit ledger.Unit) bool {
			return len(unit.Postings) == 1 &&
				unit.Postings[0].Guards == ledger.GuardActive|ledger.GuardSufficientFunds &&
				unit.Postings[0].Delta() == -1000 &&
				len(unit.Claims) == 0
		})).Return(&ledger.Applied{
			Accounts: map[uuid.UUID]*models.Account{account.ID: account},
			Entries: []*models.Transaction{{
				AccountID: account.ID,
				Type:      models.TransactionTypeDebit,
				Amount:    1000,
			}},
		}, nil)

		_, err := svc.Withdraw(ctx, Caller{ID: owner}, WithdrawRequest{AccountID: account.ID, Amount: "10"})

		require.NoError(t, err)
	})
}
