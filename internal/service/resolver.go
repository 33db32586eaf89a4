package service

import (
	"context"
	"errors"
	"strings"

	"github.com/benx421/bank-ledger/internal/ledger"
	"github.com/benx421/bank-ledger/internal/models"
)

// RecipientResolver finds the destination account of a transfer
type RecipientResolver struct {
	store ledger.Store
}

// NewRecipientResolver creates a new RecipientResolver
func NewRecipientResolver(store ledger.Store) *RecipientResolver {
	return &RecipientResolver{store: store}
}

// Resolve tries, in order, an exact account number, an email when the
// identifier contains "@", and otherwise a phone number compared digit by digit
func (r *RecipientResolver) Resolve(ctx context.Context, identifier string) (*models.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, recipientNotFound()
	}

	account, err := r.store.FindAccountByNumber(ctx, identifier)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, internalError("failed to resolve recipient", err)
	}

	if strings.Contains(identifier, "@") {
		account, err = r.store.FindAccountByEmail(ctx, identifier)
	} else {
		digits := onlyDigits(identifier)
		if digits == "" {
			return nil, recipientNotFound()
		}
		account, err = r.store.FindAccountByPhone(ctx, digits)
	}

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, models.ErrNotFound):
		return nil, recipientNotFound()
	default:
		return nil, internalError("failed to resolve recipient", err)
	}
}

func recipientNotFound() *ServiceError {
	return &ServiceError{
		Code:    ErrCodeRecipientNotFound,
		Message: "recipient not found",
	}
}
