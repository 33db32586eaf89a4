package service

import (
	"errors"
	"fmt"
)

// ServiceError represents a business logic error with a code
type ServiceError struct {
	Err     error
	Message string
	Code    string
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error codes returned to callers
const (
	ErrCodeNotFound          = "not_found"
	ErrCodeForbidden         = "forbidden"
	ErrCodeInvalidAmount     = "invalid_amount"
	ErrCodeInsufficientFunds = "insufficient_funds"
	ErrCodeRecipientNotFound = "recipient_not_found"
	ErrCodeInvalidOperation  = "invalid_operation"
	ErrCodeDuplicateRef      = "duplicate_ref"
	ErrCodeInternalError     = "internal_error"
)

// ErrorCode returns the code of a *ServiceError in err's chain, or internal_error
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ErrCodeInternalError
}

func internalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:    ErrCodeInternalError,
		Message: message,
		Err:     err,
	}
}
