package memory

import (
	"context"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
)

func (t *memTx) InsertSale(_ context.Context, sale sales.Sale) (sales.Sale, error) {
	t.write(func() func() {
		now := t.s.now()
		sale.ID = t.s.nextID("sales")
		sale.CreatedAt, sale.UpdatedAt = now, now
		sale.Items = nil
		t.s.sales[sale.ID] = sale
		id := sale.ID
		return func() { delete(t.s.sales, id) }
	})
	return sale, nil
}

func (t *memTx) GetSaleForUpdate(ctx context.Context, id int64) (sales.Sale, error) {
	if err := t.lock(ctx, "sale:"+strconv.FormatInt(id, 10)); err != nil {
		return sales.Sale{}, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.loadSale(id)
}

// loadSale must be called with mu held.
func (s *Store) loadSale(id int64) (sales.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return sales.Sale{}, sales.ErrNotFound
	}
	for _, it := range s.saleItems {
		if it.SaleID == id {
			sale.Items = append(sale.Items, it)
		}
	}
	sort.Slice(sale.Items, func(i, j int) bool {
		if sale.Items[i].ProductID != sale.Items[j].ProductID {
			return sale.Items[i].ProductID < sale.Items[j].ProductID
		}
		return sale.Items[i].ID < sale.Items[j].ID
	})
	return sale, nil
}

func (t *memTx) UpdateSale(_ context.Context, sale sales.Sale) (sales.Sale, error) {
	var (
		out   sales.Sale
		found bool
	)
	t.write(func() func() {
		prev, ok := t.s.sales[sale.ID]
		if !ok {
			return nil
		}
		found = true
		out = prev
		out.Status = sale.Status
		out.TotalAmount = sale.TotalAmount
		out.DiscountAmount = sale.DiscountAmount
		out.DepositAmount = sale.DepositAmount
		out.FinalAmount = sale.FinalAmount
		out.PaymentMethod = sale.PaymentMethod
		out.Remark = sale.Remark
		out.CompletedAt = sale.CompletedAt
		out.DeletedAt = sale.DeletedAt
		out.UpdatedAt = t.s.now()
		t.s.sales[sale.ID] = out
		return func() { t.s.sales[prev.ID] = prev }
	})
	if !found {
		return sales.Sale{}, sales.ErrNotFound
	}
	return out, nil
}

func (t *memTx) InsertSaleItem(_ context.Context, item sales.Item) (sales.Item, error) {
	t.write(func() func() {
		item.ID = t.s.nextID("sale_items")
		item.CreatedAt = t.s.now()
		t.s.saleItems[item.ID] = item
		id := item.ID
		return func() { delete(t.s.saleItems, id) }
	})
	return item, nil
}

func (t *memTx) SetSaleItemCommitted(_ context.Context, itemID int64, committed bool) error {
	found := false
	t.write(func() func() {
		prev, ok := t.s.saleItems[itemID]
		if !ok {
			return nil
		}
		found = true
		next := prev
		next.StockCommitted = committed
		t.s.saleItems[itemID] = next
		return func() { t.s.saleItems[itemID] = prev }
	})
	if !found {
		return sales.ErrItemNotFound
	}
	return nil
}

func (t *memTx) DeleteSaleItem(_ context.Context, itemID int64) error {
	found := false
	t.write(func() func() {
		prev, ok := t.s.saleItems[itemID]
		if !ok {
			return nil
		}
		found = true
		delete(t.s.saleItems, itemID)
		return func() { t.s.saleItems[itemID] = prev }
	})
	if !found {
		return sales.ErrItemNotFound
	}
	return nil
}

// SalesRepository adapts the store to sales.Repository.
type SalesRepository struct {
	s *Store
}

// Sales returns the sale view of the store.
func (s *Store) Sales() *SalesRepository {
	return &SalesRepository{s: s}
}

func (r *SalesRepository) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.s.run(ctx, func(t *memTx) error { return fn(ctx, t) })
}

func (r *SalesRepository) GetSale(_ context.Context, id int64) (sales.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.loadSale(id)
}

func (r *SalesRepository) ListSales(_ context.Context, scope access.Scope, filter sales.ListFilter) ([]sales.Sale, int, error) {
	r.s.mu.Lock()
	var out []sales.Sale
	for _, sale := range r.s.sales {
		if !scopeAllowsRef(scope, sale.WarehouseID) {
			continue
		}
		if filter.Status != "" {
			if sale.Status != filter.Status {
				continue
			}
		} else if !filter.IncludeDeleted && sale.Status == sales.StatusDeleted {
			continue
		}
		if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.CreatedAt.Before(filter.To) {
			continue
		}
		out = append(out, sale)
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

func (r *SalesRepository) SummaryFacts(_ context.Context, scope access.Scope, filter sales.SummaryFilter) (sales.SummaryFacts, error) {
	facts := sales.SummaryFacts{RevenueByType: map[sales.SaleType]decimal.Decimal{}, Counts: map[sales.Status]int{}}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	completed := map[int64]bool{}
	for _, sale := range r.s.sales {
		if !scopeAllowsRef(scope, sale.WarehouseID) {
			continue
		}
		if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.CreatedAt.Before(filter.To) {
			continue
		}
		facts.Counts[sale.Status]++
		switch sale.Status {
		case sales.StatusCompleted:
			completed[sale.ID] = true
			facts.Discount = facts.Discount.Add(sale.DiscountAmount)
		case sales.StatusAbandoned:
			facts.ForfeitedDeposits = facts.ForfeitedDeposits.Add(sale.DepositAmount)
		}
	}
	for _, it := range r.s.saleItems {
		if completed[it.SaleID] {
			facts.RevenueByType[it.SaleType] = facts.RevenueByType[it.SaleType].Add(it.Subtotal)
		}
	}
	return facts, nil
}

var (
	_ sales.Repository   = (*SalesRepository)(nil)
	_ sales.TxRepository = (*memTx)(nil)
)
