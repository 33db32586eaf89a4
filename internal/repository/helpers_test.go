//go:build integration

package repository

import (
	"testing"

	"github.com/benx421/bank-ledger/internal/db"
	"github.com/benx421/bank-ledger/internal/db/dbtest"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	return dbtest.Start(t)
}

func truncateTables(t *testing.T, database *db.DB) {
	t.Helper()
	dbtest.Reset(t, database)
}
