package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

var (
	ErrGrantNotSaved    = errors.New("access: grant not saved")
	ErrInvalidGrant     = fmt.Errorf("access: invalid grant: %w", shared.ErrValidation)
	ErrWarehouseMissing = fmt.Errorf("access: warehouse %w", shared.ErrNotFound)
)

// WarehouseDirectory is the slice of the warehouse directory the registry reads.
type WarehouseDirectory interface {
	ListActive(ctx context.Context) ([]warehouses.Warehouse, error)
	Get(ctx context.Context, id int64) (warehouses.Warehouse, error)
	Default(ctx context.Context) (*warehouses.Warehouse, error)
}

// Service answers warehouse authorization questions.
type Service struct {
	repo       Repository
	warehouses WarehouseDirectory
	cache      *Cache
	logger     *slog.Logger
}

// NewService wires the registry. cache may be nil.
func NewService(repo Repository, directory WarehouseDirectory, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, warehouses: directory, cache: cache, logger: logger}
}

func (s *Service) grants(ctx context.Context, userID int64) ([]Grant, error) {
	return s.cache.Grants(ctx, userID, func(ctx context.Context) ([]Grant, error) {
		return s.repo.ListGrants(ctx, userID)
	})
}

func (s *Service) grantFor(ctx context.Context, userID, warehouseID int64) (*Grant, error) {
	grants, err := s.grants(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range grants {
		if grants[i].WarehouseID == warehouseID && grants[i].IsActive {
			return &grants[i], nil
		}
	}
	return nil, nil
}

// AccessibleWarehouses lists the active warehouses p can use, ordered by name.
// A non-zero perm additionally requires that bit on the grant.
func (s *Service) AccessibleWarehouses(ctx context.Context, p Principal, perm Permission) ([]warehouses.Warehouse, error) {
	if p == nil {
		return nil, nil
	}
	active, err := s.warehouses.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if IsAdmin(p) {
		sortByName(active)
		return active, nil
	}
	grants, err := s.grants(ctx, p.GetID())
	if err != nil {
		return nil, err
	}
	allowed := make(map[int64]struct{}, len(grants))
	for _, g := range grants {
		if !g.IsActive {
			continue
		}
		if perm != PermNone && !g.Permissions.Intersects(perm) {
			continue
		}
		allowed[g.WarehouseID] = struct{}{}
	}
	out := make([]warehouses.Warehouse, 0, len(allowed))
	for _, w := range active {
		if _, ok := allowed[w.ID]; ok {
			out = append(out, w)
		}
	}
	sortByName(out)
	return out, nil
}

func sortByName(list []warehouses.Warehouse) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
}

// DefaultWarehouse resolves the warehouse p works in when none is given.
func (s *Service) DefaultWarehouse(ctx context.Context, p Principal) (*warehouses.Warehouse, error) {
	if p == nil {
		return nil, nil
	}
	if IsAdmin(p) {
		return s.warehouses.Default(ctx)
	}
	grants, err := s.grants(ctx, p.GetID())
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		if !g.IsActive || !g.IsDefault {
			continue
		}
		w, err := s.warehouses.Get(ctx, g.WarehouseID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				break
			}
			return nil, err
		}
		if w.IsActive {
			return &w, nil
		}
	}
	list, err := s.AccessibleWarehouses(ctx, p, PermNone)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// CanAccessWarehouse is the boolean form of EnsureWarehousePermission.
func (s *Service) CanAccessWarehouse(ctx context.Context, p Principal, w *warehouses.Warehouse, perm Permission) bool {
	return s.EnsureWarehousePermission(ctx, p, w, perm) == nil
}

// EnsureWarehousePermission returns nil when p may act on w with perm.
func (s *Service) EnsureWarehousePermission(ctx context.Context, p Principal, w *warehouses.Warehouse, perm Permission) error {
	if w == nil {
		return scopeDenied(p, 0, perm)
	}
	if !w.IsActive {
		return scopeDenied(p, w.ID, perm)
	}
	if IsAdmin(p) {
		return nil
	}
	if p == nil {
		return scopeDenied(nil, w.ID, perm)
	}
	grant, err := s.grantFor(ctx, p.GetID(), w.ID)
	if err != nil {
		s.logger.Error("load warehouse grants", slog.Int64("user_id", p.GetID()), slog.Any("error", err))
		return fmt.Errorf("access: load grants: %w", err)
	}
	if grant == nil {
		return scopeDenied(p, w.ID, perm)
	}
	if perm != PermNone && !grant.Permissions.Has(perm) {
		return actionDenied(p, w.ID, perm)
	}
	return nil
}

// EnsureWarehouseAccess checks scope without a specific permission.
func (s *Service) EnsureWarehouseAccess(ctx context.Context, p Principal, w *warehouses.Warehouse) error {
	return s.EnsureWarehousePermission(ctx, p, w, PermNone)
}

// EnsureWarehouseByID loads the warehouse and runs EnsureWarehousePermission.
// Unknown ids are reported as out of scope.
func (s *Service) EnsureWarehouseByID(ctx context.Context, p Principal, warehouseID int64, perm Permission) (*warehouses.Warehouse, error) {
	if warehouseID <= 0 {
		return nil, scopeDenied(p, warehouseID, perm)
	}
	w, err := s.warehouses.Get(ctx, warehouseID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, scopeDenied(p, warehouseID, perm)
		}
		return nil, err
	}
	if err := s.EnsureWarehousePermission(ctx, p, &w, perm); err != nil {
		return nil, err
	}
	return &w, nil
}

// EnsureAnyWarehousePermission guards module entry points.
func (s *Service) EnsureAnyWarehousePermission(ctx context.Context, p Principal, perm Permission) error {
	if IsAdmin(p) {
		return nil
	}
	list, err := s.AccessibleWarehouses(ctx, p, perm)
	if err != nil {
		return err
	}
	if len(list) > 0 {
		return nil
	}
	if perm != PermNone {
		return actionDenied(p, 0, perm)
	}
	return scopeDenied(p, 0, perm)
}

func (s *Service) ensureBound(ctx context.Context, p Principal, doc WarehouseBound, perm Permission) error {
	var id *int64
	if doc != nil {
		id = doc.BoundWarehouseID()
	}
	if id == nil {
		return scopeDenied(p, 0, perm)
	}
	_, err := s.EnsureWarehouseByID(ctx, p, *id, perm)
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		authErr.Code = CodeScopeDenied
	}
	return err
}

// EnsureSaleAccess checks SALE on the sale's warehouse.
func (s *Service) EnsureSaleAccess(ctx context.Context, p Principal, sale WarehouseBound) error {
	return s.ensureBound(ctx, p, sale, PermSale)
}

// EnsureInventoryCheckAccess checks INVENTORY_CHECK on the check's warehouse.
func (s *Service) EnsureInventoryCheckAccess(ctx context.Context, p Principal, check WarehouseBound) error {
	return s.ensureBound(ctx, p, check, PermInventoryCheck)
}

// ScopeFor returns the list filter for p and perm.
func (s *Service) ScopeFor(ctx context.Context, p Principal, perm Permission) (Scope, error) {
	if IsAdmin(p) {
		return Unrestricted(), nil
	}
	list, err := s.AccessibleWarehouses(ctx, p, perm)
	if err != nil {
		return Deny(), err
	}
	return Restrict(warehouseIDs(list)), nil
}

// ResolveSelection interprets the warehouse query parameter of a list screen.
// Anything that is not an accessible id falls back to all. When includeAll is
// false the fallback is the caller's default warehouse instead.
func (s *Service) ResolveSelection(ctx context.Context, p Principal, param string, includeAll bool, perm Permission) (Selection, error) {
	list, err := s.AccessibleWarehouses(ctx, p, perm)
	if err != nil {
		return Selection{Scope: Deny()}, err
	}
	sel := Selection{Warehouses: list, SelectedValue: SelectionAll}

	var selected *warehouses.Warehouse
	if id, err := strconv.ParseInt(strings.TrimSpace(param), 10, 64); err == nil && id > 0 {
		selected = findWarehouse(list, id)
	}
	if selected == nil && !includeAll {
		def, err := s.DefaultWarehouse(ctx, p)
		if err != nil {
			return Selection{Scope: Deny()}, err
		}
		if def != nil {
			selected = findWarehouse(list, def.ID)
		}
		if selected == nil && len(list) > 0 {
			selected = &list[0]
		}
	}

	switch {
	case selected != nil:
		sel.Selected = selected
		sel.SelectedValue = strconv.FormatInt(selected.ID, 10)
		sel.Scope = Restrict([]int64{selected.ID})
		sel.ScopeLabel = selected.Name
	case IsAdmin(p):
		sel.Scope = Unrestricted()
		sel.ScopeLabel = labelAllAdmin
	default:
		sel.Scope = Restrict(warehouseIDs(list))
		sel.ScopeLabel = labelAllPrincipal
	}
	return sel, nil
}

func findWarehouse(list []warehouses.Warehouse, id int64) *warehouses.Warehouse {
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}

func warehouseIDs(list []warehouses.Warehouse) []int64 {
	ids := make([]int64, 0, len(list))
	for _, w := range list {
		ids = append(ids, w.ID)
	}
	return ids
}

// ListGrants returns every grant of userID, bypassing the cache.
func (s *Service) ListGrants(ctx context.Context, userID int64) ([]Grant, error) {
	if userID <= 0 {
		return nil, ErrInvalidGrant
	}
	return s.repo.ListGrants(ctx, userID)
}

// UpsertGrant creates or replaces a grant and invalidates cached lookups.
func (s *Service) UpsertGrant(ctx context.Context, input GrantInput) (Grant, error) {
	if input.UserID <= 0 || input.WarehouseID <= 0 {
		return Grant{}, ErrInvalidGrant
	}
	if _, err := s.warehouses.Get(ctx, input.WarehouseID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Grant{}, ErrWarehouseMissing
		}
		return Grant{}, err
	}
	bits := DefaultGrantPermissions
	if input.Permissions != nil {
		parsed, err := ParsePermissions(input.Permissions)
		if err != nil {
			return Grant{}, err
		}
		bits = parsed
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	saved, err := s.repo.UpsertGrant(ctx, Grant{
		UserID:      input.UserID,
		WarehouseID: input.WarehouseID,
		IsActive:    active,
		IsDefault:   input.IsDefault && active,
		Permissions: bits,
	})
	if err != nil {
		return Grant{}, err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump access cache", slog.Any("error", err))
	}
	s.logger.Info("warehouse grant saved",
		slog.Int64("user_id", saved.UserID),
		slog.Int64("warehouse_id", saved.WarehouseID),
		slog.String("permissions", saved.Permissions.String()),
	)
	return saved, nil
}
