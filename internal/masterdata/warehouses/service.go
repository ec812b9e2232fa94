package warehouses

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
)

// Service is the warehouse directory. It is the only reader of the default
// warehouse flag.
type Service struct {
	repo      Repository
	validator *validator.Validate
	logger    *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validator: newValidator(), logger: logger.With(slog.String("module", "warehouses"))}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

// ListActive returns active warehouses ordered by name.
func (s *Service) ListActive(ctx context.Context) ([]Warehouse, error) {
	return s.repo.ListActive(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// Default returns the active system default warehouse or nil.
func (s *Service) Default(ctx context.Context) (*Warehouse, error) {
	w, err := s.repo.GetDefault(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Service) Create(ctx context.Context, input Input) (Warehouse, error) {
	w := normalize(input.apply(Warehouse{IsActive: true}))
	if err := s.validate(w); err != nil {
		return Warehouse{}, err
	}
	created, err := s.repo.Create(ctx, w)
	if err != nil {
		return Warehouse{}, err
	}
	s.logger.Info("warehouse created", slog.Int64("warehouse_id", created.ID), slog.String("code", created.Code), slog.Bool("default", created.IsDefault))
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, input Input) (Warehouse, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Warehouse{}, err
	}
	w := normalize(input.apply(current))
	if !w.IsActive {
		w.IsDefault = false
	}
	if err := s.validate(w); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Update(ctx, w)
}

// SetDefault flags id as the system default and demotes every other warehouse.
func (s *Service) SetDefault(ctx context.Context, id int64) (Warehouse, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Warehouse{}, err
	}
	if !current.IsActive {
		return Warehouse{}, ErrInactiveDefault
	}
	if current.IsDefault {
		return current, nil
	}
	current.IsDefault = true
	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return Warehouse{}, err
	}
	s.logger.Info("default warehouse changed", slog.Int64("warehouse_id", id))
	return updated, nil
}

// Deactivate hides the warehouse from every scope resolution. History is kept.
func (s *Service) Deactivate(ctx context.Context, id int64) (Warehouse, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Warehouse{}, err
	}
	current.IsActive = false
	current.IsDefault = false
	return s.repo.Update(ctx, current)
}

// Delete removes a warehouse that never held stock.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	used, err := s.repo.HasLedgerRows(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return ErrInUse
	}
	return s.repo.Delete(ctx, id)
}
