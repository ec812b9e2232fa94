package memory

import (
	"context"
	"sort"
	"strconv"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/stockcheck"
)

func (t *memTx) InsertCheck(_ context.Context, c stockcheck.Check) (stockcheck.Check, error) {
	t.write(func() func() {
		now := t.s.now()
		c.ID = t.s.nextID("inventory_checks")
		c.CreatedAt, c.UpdatedAt = now, now
		c.Items = nil
		t.s.checks[c.ID] = c
		id := c.ID
		return func() { delete(t.s.checks, id) }
	})
	return c, nil
}

func (t *memTx) GetCheckForUpdate(ctx context.Context, id int64) (stockcheck.Check, error) {
	if err := t.lock(ctx, "check:"+strconv.FormatInt(id, 10)); err != nil {
		return stockcheck.Check{}, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.loadCheck(id)
}

// loadCheck must be called with mu held.
func (s *Store) loadCheck(id int64) (stockcheck.Check, error) {
	c, ok := s.checks[id]
	if !ok {
		return stockcheck.Check{}, stockcheck.ErrNotFound
	}
	for _, it := range s.checkItems {
		if it.CheckID == id {
			c.Items = append(c.Items, it)
		}
	}
	sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].ProductID < c.Items[j].ProductID })
	return c, nil
}

func (t *memTx) UpdateCheck(_ context.Context, c stockcheck.Check) (stockcheck.Check, error) {
	var (
		out   stockcheck.Check
		found bool
	)
	t.write(func() func() {
		prev, ok := t.s.checks[c.ID]
		if !ok {
			return nil
		}
		found = true
		out = prev
		out.Status = c.Status
		out.ApprovedBy = c.ApprovedBy
		out.ApprovedAt = c.ApprovedAt
		out.CompletedAt = c.CompletedAt
		out.UpdatedAt = t.s.now()
		t.s.checks[c.ID] = out
		return func() { t.s.checks[prev.ID] = prev }
	})
	if !found {
		return stockcheck.Check{}, stockcheck.ErrNotFound
	}
	return out, nil
}

func (t *memTx) InsertCheckItems(_ context.Context, checkID int64, items []stockcheck.Item) ([]stockcheck.Item, error) {
	out := make([]stockcheck.Item, 0, len(items))
	t.write(func() func() {
		ids := make([]int64, 0, len(items))
		for _, it := range items {
			it.ID = t.s.nextID("inventory_check_items")
			it.CheckID = checkID
			t.s.checkItems[it.ID] = it
			ids = append(ids, it.ID)
			out = append(out, it)
		}
		return func() {
			for _, id := range ids {
				delete(t.s.checkItems, id)
			}
		}
	})
	return out, nil
}

func (t *memTx) UpdateCheckItem(_ context.Context, it stockcheck.Item) (stockcheck.Item, error) {
	found := false
	t.write(func() func() {
		prev, ok := t.s.checkItems[it.ID]
		if !ok {
			return nil
		}
		found = true
		it.CheckID, it.ProductID, it.SystemQuantity = prev.CheckID, prev.ProductID, prev.SystemQuantity
		t.s.checkItems[it.ID] = it
		return func() { t.s.checkItems[prev.ID] = prev }
	})
	if !found {
		return stockcheck.Item{}, stockcheck.ErrItemNotFound
	}
	return it, nil
}

func (t *memTx) StockQuantities(_ context.Context, warehouseID int64) (map[int64]int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := map[int64]int64{}
	for key, row := range t.s.stock {
		if key.warehouseID == warehouseID {
			out[key.productID] = row.Quantity
		}
	}
	return out, nil
}

// CheckRepository adapts the store to stockcheck.Repository.
type CheckRepository struct {
	s *Store
}

// Checks returns the stocktake view of the store.
func (s *Store) Checks() *CheckRepository {
	return &CheckRepository{s: s}
}

func (r *CheckRepository) WithTx(ctx context.Context, fn func(context.Context, stockcheck.TxRepository) error) error {
	return r.s.run(ctx, func(t *memTx) error { return fn(ctx, t) })
}

func (r *CheckRepository) GetCheck(_ context.Context, id int64) (stockcheck.Check, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.loadCheck(id)
}

func (r *CheckRepository) ListChecks(_ context.Context, scope access.Scope, filter stockcheck.ListFilter) ([]stockcheck.Check, int, error) {
	r.s.mu.Lock()
	var out []stockcheck.Check
	for _, c := range r.s.checks {
		if !scopeAllowsRef(scope, c.WarehouseID) {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	r.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, filter.Page), len(out), nil
}

var (
	_ stockcheck.Repository   = (*CheckRepository)(nil)
	_ stockcheck.TxRepository = (*memTx)(nil)
)
