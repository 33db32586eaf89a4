package models

import "errors"

// Domain errors that can be returned by repositories
var (
	// ErrDuplicate indicates a unique constraint was violated
	ErrDuplicate = errors.New("duplicate")

	// ErrNotFound indicates the requested entity was not found
	ErrNotFound = errors.New("not found")

	// ErrNegativeBalance indicates a balance update was refused because the result would be negative
	ErrNegativeBalance = errors.New("balance would become negative")
)
