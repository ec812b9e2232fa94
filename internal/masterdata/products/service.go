package products

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
	internalshared "github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// ErrInactive is returned when a sale or stocktake references a disabled product.
var ErrInactive = fmt.Errorf("products: product is inactive: %w", internalshared.ErrValidation)

type Service struct {
	repo      Repository
	validator *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: newValidator()}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

// ListActive returns active products, optionally restricted to one category.
func (s *Service) ListActive(ctx context.Context, category string) ([]Product, error) {
	return s.repo.ListActive(ctx, category)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// GetActive returns the product only when it is active.
func (s *Service) GetActive(ctx context.Context, id int64) (Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if !p.IsActive {
		return Product{}, fmt.Errorf("product %d: %w", id, ErrInactive)
	}
	return p, nil
}

// GetMany loads several products keyed by id. Missing ids are absent from the map.
func (s *Service) GetMany(ctx context.Context, ids []int64) (map[int64]Product, error) {
	if len(ids) == 0 {
		return map[int64]Product{}, nil
	}
	return s.repo.GetMany(ctx, ids)
}

func (s *Service) Create(ctx context.Context, input Input) (Product, error) {
	p := normalize(input.apply(Product{IsActive: true}))
	if err := s.validate(p); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Update(ctx context.Context, id int64, input Input) (Product, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	p := normalize(input.apply(current))
	if err := s.validate(p); err != nil {
		return Product{}, err
	}
	return s.repo.Update(ctx, p)
}

// Input is the writable subset of a product. Nil fields keep their current value.
type Input struct {
	SKU            *string          `json:"sku"`
	Name           *string          `json:"name"`
	Category       *string          `json:"category"`
	RetailPrice    *decimal.Decimal `json:"retail_price"`
	WholesalePrice *decimal.Decimal `json:"wholesale_price"`
	Cost           *decimal.Decimal `json:"cost"`
	IsActive       *bool            `json:"is_active"`
}

func (in Input) apply(p Product) Product {
	if in.SKU != nil {
		p.SKU = *in.SKU
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.RetailPrice != nil {
		p.RetailPrice = *in.RetailPrice
	}
	if in.WholesalePrice != nil {
		p.WholesalePrice = *in.WholesalePrice
	}
	if in.Cost != nil {
		p.Cost = *in.Cost
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return p
}
