package warehouses

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
)

var codePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("warehouse_code", func(fl validator.FieldLevel) bool {
		return codePattern.MatchString(fl.Field().String())
	})
	return v
}

func (s *Service) validate(w Warehouse) error {
	if err := s.validator.Struct(w); err != nil {
		return shared.ValidationError(err)
	}
	if w.IsDefault && !w.IsActive {
		return ErrInactiveDefault
	}
	return nil
}

func normalize(w Warehouse) Warehouse {
	w.Name = strings.TrimSpace(w.Name)
	w.Code = strings.TrimSpace(w.Code)
	w.Address = strings.TrimSpace(w.Address)
	w.Phone = strings.TrimSpace(w.Phone)
	w.ContactPerson = strings.TrimSpace(w.ContactPerson)
	return w
}
