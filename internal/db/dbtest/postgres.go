//go:build integration

// Package dbtest starts disposable PostgreSQL databases for integration tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/benx421/bank-ledger/internal/config"
	"github.com/benx421/bank-ledger/internal/db"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Start runs a PostgreSQL container, applies the migrations and returns a
// pool. The container is terminated when the test finishes.
func Start(t *testing.T) *db.DB {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	database, err := db.Open(ctx, connStr, config.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	require.NoError(t, database.Migrate(ctx))

	return database
}

// Reset empties every table. TRUNCATE does not fire the append-only row trigger.
func Reset(t *testing.T, database *db.DB) {
	t.Helper()

	_, err := database.ExecContext(context.Background(), `
		TRUNCATE TABLE event_outbox, ref_claims, transactions, accounts, customer_profiles, users CASCADE
	`)
	require.NoError(t, err, "failed to reset test data")
}

// SeedUser inserts a user and, when phone is not empty, a customer profile
func SeedUser(t *testing.T, database *db.DB, email, phone string) uuid.UUID {
	t.Helper()

	ctx := context.Background()
	var id uuid.UUID
	err := database.QueryRowContext(ctx,
		`INSERT INTO users (email) VALUES (LOWER($1)) RETURNING id`, email,
	).Scan(&id)
	require.NoError(t, err)

	if phone != "" {
		_, err = database.ExecContext(ctx,
			`INSERT INTO customer_profiles (user_id, phone) VALUES ($1, $2)`, id, phone)
		require.NoError(t, err)
	}

	return id
}

// SeedAccount inserts an active savings account. A positive balance is
// recorded as an opening CREDIT so the account reconciles.
func SeedAccount(t *testing.T, database *db.DB, userID uuid.UUID, accountNumber string, balance int64) uuid.UUID {
	t.Helper()

	ctx := context.Background()
	var id uuid.UUID
	err := database.QueryRowContext(ctx, `
		INSERT INTO accounts (account_number, user_id, balance)
		VALUES ($1, $2, $3)
		RETURNING id
	`, accountNumber, userID, balance).Scan(&id)
	require.NoError(t, err)

	if balance > 0 {
		_, err = database.ExecContext(ctx, `
			INSERT INTO transactions (account_id, type, amount, balance_after, description)
			VALUES ($1, 'CREDIT', $2, $2, 'Opening balance')
		`, id, balance)
		require.NoError(t, err)
	}

	return id
}
