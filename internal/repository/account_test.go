//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/benx421/bank-ledger/internal/db/dbtest"
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository(t *testing.T) {
	database := setupTestDB(t)
	repo := NewAccountRepository(database)
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		truncateTables(t, database)
		userID := dbtest.SeedUser(t, database, "alice@example.com", "")

		account := &models.Account{UserID: userID, AccountNumber: "2000000001", Type: models.AccountTypeCurrent}
		require.NoError(t, repo.Create(ctx, account))
		assert.NotEqual(t, uuid.Nil, account.ID)
		assert.False(t, account.CreatedAt.IsZero())

		byID, err := repo.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "2000000001", byID.AccountNumber)
		assert.Equal(t, models.AccountTypeCurrent, byID.Type)
		assert.Equal(t, models.DefaultCurrency, byID.Currency)
		assert.Equal(t, models.AccountStatusActive, byID.Status)
		assert.Zero(t, byID.Balance)

		byNumber, err := repo.FindByAccountNumber(ctx, "2000000001")
		require.NoError(t, err)
		assert.Equal(t, account.ID, byNumber.ID)

		err = repo.Create(ctx, &models.Account{UserID: userID, AccountNumber: "2000000001"})
		assert.ErrorIs(t, err, models.ErrDuplicate)
	})

	t.Run("not found", func(t *testing.T) {
		truncateTables(t, database)

		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = repo.FindByAccountNumber(ctx, "9999999999")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("find by email and phone", func(t *testing.T) {
		truncateTables(t, database)
		userID := dbtest.SeedUser(t, database, "Bob@Example.com", "+91 98765-43210")
		closed := dbtest.SeedAccount(t, database, userID, "2000000002", 0)
		active := dbtest.SeedAccount(t, database, userID, "2000000003", 0)
		require.NoError(t, repo.UpdateStatus(ctx, closed, models.AccountStatusClosed))

		byEmail, err := repo.FindByEmail(ctx, "BOB@example.com")
		require.NoError(t, err)
		assert.Equal(t, active, byEmail.ID, "active account preferred")

		byPhone, err := repo.FindByPhoneDigits(ctx, "919876543210")
		require.NoError(t, err)
		assert.Equal(t, active, byPhone.ID)

		_, err = repo.FindByPhoneDigits(ctx, "9876543210")
		assert.ErrorIs(t, err, models.ErrNotFound)

		accounts, err := repo.ListByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, closed, accounts[0].ID)
	})

	t.Run("apply delta keeps the balance non-negative", func(t *testing.T) {
		truncateTables(t, database)
		userID := dbtest.SeedUser(t, database, "carol@example.com", "")
		id := dbtest.SeedAccount(t, database, userID, "2000000004", 5000)

		balance, err := repo.ApplyDelta(ctx, id, -3000)
		require.NoError(t, err)
		assert.Equal(t, int64(2000), balance)

		_, err = repo.ApplyDelta(ctx, id, -2001)
		assert.ErrorIs(t, err, models.ErrNegativeBalance)

		_, err = repo.ApplyDelta(ctx, uuid.New(), 10)
		assert.ErrorIs(t, err, models.ErrNotFound)

		account, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(2000), account.Balance)
	})

	t.Run("lock returns accounts in id order", func(t *testing.T) {
		truncateTables(t, database)
		userID := dbtest.SeedUser(t, database, "dave@example.com", "")
		a := dbtest.SeedAccount(t, database, userID, "2000000005", 0)
		b := dbtest.SeedAccount(t, database, userID, "2000000006", 0)

		tx, err := database.BeginTx(ctx, nil)
		require.NoError(t, err)
		defer tx.Rollback() //nolint:errcheck // test cleanup

		locked, err := NewAccountRepository(tx).LockByIDs(ctx, []uuid.UUID{b, a})
		require.NoError(t, err)
		require.Len(t, locked, 2)
		assert.Less(t, locked[0].ID.String(), locked[1].ID.String())
	})
}
