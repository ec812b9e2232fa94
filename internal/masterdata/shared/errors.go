package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	internalshared "github.com/odyssey-erp/odyssey-pos/internal/shared"
)

var (
	ErrNotFound  = fmt.Errorf("resource %w", internalshared.ErrNotFound)
	ErrDuplicate = fmt.Errorf("masterdata: %w", internalshared.ErrDuplicate)
	ErrInvalidID = fmt.Errorf("masterdata: invalid ID: %w", internalshared.ErrValidation)
)

// ValidationError flattens validator field errors into one validation error.
func ValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", internalshared.ErrValidation, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", internalshared.ErrValidation, strings.Join(parts, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
