// Package mocks holds testify mocks of the ledger contracts.
package mocks

import (
	"context"

	"github.com/benx421/bank-ledger/internal/ledger"
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock of ledger.Store
type MockStore struct {
	mock.Mock
}

// NewMockStore creates a MockStore whose expectations are asserted on cleanup
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	m := &MockStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockStore) ApplyAtomic(ctx context.Context, unit ledger.Unit) (*ledger.Applied, error) {
	args := m.Called(ctx, unit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Applied), args.Error(1)
}

func (m *MockStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockStore) FindAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	args := m.Called(ctx, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockStore) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockStore) FindAccountByPhone(ctx context.Context, digits string) (*models.Account, error) {
	args := m.Called(ctx, digits)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockStore) ListAccountsByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Account), args.Error(1)
}

func (m *MockStore) FindTransactionsByRef(ctx context.Context, refID string, accountID uuid.UUID) ([]*models.Transaction, error) {
	args := m.Called(ctx, refID, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockStore) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int, cursor *models.Cursor) ([]*models.Transaction, error) {
	args := m.Called(ctx, accountID, limit, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockStore) FindBalanceDrift(ctx context.Context) ([]models.BalanceDrift, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BalanceDrift), args.Error(1)
}

var _ ledger.Store = (*MockStore)(nil)
