package service

import (
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/google/uuid"
)

// Caller is the authenticated identity on whose behalf an operation runs.
// It is supplied by the trusted collaborator that authenticated the request.
type Caller struct {
	ID         uuid.UUID
	Privileged bool
}

// CanOperate reports whether the caller owns the account or is privileged
func (c Caller) CanOperate(account *models.Account) bool {
	return c.Privileged || account.OwnedBy(c.ID)
}
