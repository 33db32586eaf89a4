package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountType is the product type of an account
type AccountType string

const (
	AccountTypeSavings AccountType = "SAV"
	AccountTypeCurrent AccountType = "CUR"
)

// AccountStatus represents the lifecycle state of an account
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
	AccountStatusClosed AccountStatus = "closed"
)

// DefaultCurrency is used when an account is opened without an explicit currency
const DefaultCurrency = "INR"

// Account represents a customer account and its balance in minor units
type Account struct {
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
	AccountNumber string        `db:"account_number"`
	Currency      string        `db:"currency"`
	Type          AccountType   `db:"type"`
	Status        AccountStatus `db:"status"`
	Balance       int64         `db:"balance"`
	ID            uuid.UUID     `db:"id"`
	UserID        uuid.UUID     `db:"user_id"`
}

// IsActive reports whether the account may be debited or credited
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// OwnedBy reports whether userID owns the account
func (a *Account) OwnedBy(userID uuid.UUID) bool {
	return a.UserID == userID
}
