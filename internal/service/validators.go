package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/benx421/bank-ledger/internal/money"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRequest checks the struct tags of a request
func ValidateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ServiceError{
			Code:    ErrCodeInvalidOperation,
			Message: describeFieldError(fe),
			Err:     err,
		}
	}

	return internalError("failed to validate request", err)
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// ValidateAmount converts a decimal amount to positive minor units
func ValidateAmount(amount money.Amount) (int64, error) {
	minor, err := amount.Minor()
	if err != nil {
		return 0, &ServiceError{
			Code:    ErrCodeInvalidAmount,
			Message: "amount must be a positive number",
			Err:     err,
		}
	}
	return minor, nil
}

// ValidatePageSize clamps a requested page size
func ValidatePageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}

// onlyDigits strips every non-digit character
func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
