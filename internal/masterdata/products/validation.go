package products

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
	internalshared "github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func (s *Service) validate(p Product) error {
	if err := s.validator.Struct(p); err != nil {
		return shared.ValidationError(err)
	}
	if p.RetailPrice.IsNegative() || p.WholesalePrice.IsNegative() || p.Cost.IsNegative() {
		return fmt.Errorf("%w: prices must be >= 0", internalshared.ErrValidation)
	}
	return nil
}

func normalize(p Product) Product {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	return p
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}
