package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/products"
	mdshared "github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
)

// WarehouseRepository adapts the store to warehouses.Repository.
type WarehouseRepository struct {
	s *Store
}

func (s *Store) Warehouses() *WarehouseRepository {
	return &WarehouseRepository{s: s}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func pageOf[T any](items []T, filters mdshared.ListFilters) []T {
	if filters.Limit <= 0 {
		return items
	}
	offset := filters.Offset()
	if offset >= len(items) {
		return nil
	}
	end := offset + filters.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (r *WarehouseRepository) List(_ context.Context, filters mdshared.ListFilters) ([]warehouses.Warehouse, int, error) {
	r.s.mu.Lock()
	var out []warehouses.Warehouse
	for _, w := range r.s.warehouses {
		if filters.Search != "" && !containsFold(w.Name, filters.Search) && !containsFold(w.Code, filters.Search) {
			continue
		}
		if filters.IsActive != nil && w.IsActive != *filters.IsActive {
			continue
		}
		out = append(out, w)
	}
	r.s.mu.Unlock()
	desc := filters.SortDirection() == "DESC"
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		switch filters.SortBy {
		case "code":
			return a.Code < b.Code
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		}
	})
	return pageOf(out, filters), len(out), nil
}

func (r *WarehouseRepository) ListActive(_ context.Context) ([]warehouses.Warehouse, error) {
	r.s.mu.Lock()
	var out []warehouses.Warehouse
	for _, w := range r.s.warehouses {
		if w.IsActive {
			out = append(out, w)
		}
	}
	r.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *WarehouseRepository) Get(_ context.Context, id int64) (warehouses.Warehouse, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.warehouses[id]
	if !ok {
		return warehouses.Warehouse{}, mdshared.ErrNotFound
	}
	return w, nil
}

func (r *WarehouseRepository) GetDefault(_ context.Context) (warehouses.Warehouse, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *warehouses.Warehouse
	for _, w := range r.s.warehouses {
		if w.IsDefault && w.IsActive && (found == nil || w.ID < found.ID) {
			w := w
			found = &w
		}
	}
	if found == nil {
		return warehouses.Warehouse{}, mdshared.ErrNotFound
	}
	return *found, nil
}

// save must be called with mu held.
func (r *WarehouseRepository) save(w warehouses.Warehouse) (warehouses.Warehouse, error) {
	for _, other := range r.s.warehouses {
		if other.ID != w.ID && (strings.EqualFold(other.Name, w.Name) || strings.EqualFold(other.Code, w.Code)) {
			return warehouses.Warehouse{}, fmt.Errorf("warehouse name or code already exists: %w", mdshared.ErrDuplicate)
		}
	}
	now := r.s.now()
	if w.IsDefault {
		for id, other := range r.s.warehouses {
			if id != w.ID && other.IsDefault {
				other.IsDefault = false
				other.UpdatedAt = now
				r.s.warehouses[id] = other
			}
		}
	}
	if w.ID == 0 {
		w.ID = r.s.nextID("warehouses")
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	r.s.warehouses[w.ID] = w
	return w, nil
}

func (r *WarehouseRepository) Create(_ context.Context, w warehouses.Warehouse) (warehouses.Warehouse, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w.ID = 0
	return r.save(w)
}

func (r *WarehouseRepository) Update(_ context.Context, w warehouses.Warehouse) (warehouses.Warehouse, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.warehouses[w.ID]
	if !ok {
		return warehouses.Warehouse{}, mdshared.ErrNotFound
	}
	w.CreatedAt = prev.CreatedAt
	return r.save(w)
}

func (r *WarehouseRepository) HasLedgerRows(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key := range r.s.stock {
		if key.warehouseID == id {
			return true, nil
		}
	}
	for _, txn := range r.s.transactions {
		if txn.WarehouseID != nil && *txn.WarehouseID == id {
			return true, nil
		}
	}
	for _, sale := range r.s.sales {
		if sale.WarehouseID != nil && *sale.WarehouseID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *WarehouseRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.warehouses[id]; !ok {
		return mdshared.ErrNotFound
	}
	delete(r.s.warehouses, id)
	return nil
}

// ProductRepository adapts the store to products.Repository.
type ProductRepository struct {
	s *Store
}

func (s *Store) Products() *ProductRepository {
	return &ProductRepository{s: s}
}

func (r *ProductRepository) List(_ context.Context, filters mdshared.ListFilters) ([]products.Product, int, error) {
	r.s.mu.Lock()
	var out []products.Product
	for _, p := range r.s.products {
		if filters.Category != "" && p.Category != filters.Category {
			continue
		}
		if filters.Search != "" && !containsFold(p.Name, filters.Search) && !containsFold(p.SKU, filters.Search) {
			continue
		}
		if filters.IsActive != nil && p.IsActive != *filters.IsActive {
			continue
		}
		out = append(out, p)
	}
	r.s.mu.Unlock()
	desc := filters.SortDirection() == "DESC"
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		switch filters.SortBy {
		case "sku":
			return a.SKU < b.SKU
		case "category":
			if a.Category != b.Category {
				return a.Category < b.Category
			}
			return a.Name < b.Name
		default:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		}
	})
	return pageOf(out, filters), len(out), nil
}

func (r *ProductRepository) ListActive(_ context.Context, category string) ([]products.Product, error) {
	r.s.mu.Lock()
	var out []products.Product
	for _, p := range r.s.products {
		if p.IsActive && (category == "" || p.Category == category) {
			out = append(out, p)
		}
	}
	r.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ProductRepository) Get(_ context.Context, id int64) (products.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return products.Product{}, mdshared.ErrNotFound
	}
	return p, nil
}

func (r *ProductRepository) GetMany(_ context.Context, ids []int64) (map[int64]products.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]products.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// save must be called with mu held.
func (r *ProductRepository) save(p products.Product) (products.Product, error) {
	for _, other := range r.s.products {
		if other.ID != p.ID && other.SKU == p.SKU {
			return products.Product{}, fmt.Errorf("product sku already exists: %w", mdshared.ErrDuplicate)
		}
	}
	now := r.s.now()
	if p.ID == 0 {
		p.ID = r.s.nextID("products")
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.s.products[p.ID] = p
	return p, nil
}

func (r *ProductRepository) Create(_ context.Context, p products.Product) (products.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = 0
	return r.save(p)
}

func (r *ProductRepository) Update(_ context.Context, p products.Product) (products.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.products[p.ID]
	if !ok {
		return products.Product{}, mdshared.ErrNotFound
	}
	p.CreatedAt = prev.CreatedAt
	return r.save(p)
}

var (
	_ warehouses.Repository = (*WarehouseRepository)(nil)
	_ products.Repository   = (*ProductRepository)(nil)
)
