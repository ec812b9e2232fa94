package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-pos/internal/reconcile"
)

// ReconcileSource scans the store's tables. Stock rows are keyed by pair, so
// duplicate_stock_row never fires here.
type ReconcileSource struct {
	s *Store
}

func (s *Store) Reconcile() *ReconcileSource {
	return &ReconcileSource{s: s}
}

func (r *ReconcileSource) Scan(ctx context.Context, category reconcile.Category, limit int) (int, []reconcile.Finding, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	r.s.mu.Lock()
	findings, err := r.collect(category)
	r.s.mu.Unlock()
	if err != nil {
		return 0, nil, err
	}
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		return derefOr(a.WarehouseID) < derefOr(b.WarehouseID)
	})
	count := len(findings)
	if limit >= 0 && len(findings) > limit {
		findings = findings[:limit]
	}
	return count, findings, nil
}

func derefOr(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func ptr(v int64) *int64 { return &v }

// collect must be called with mu held.
func (r *ReconcileSource) collect(category reconcile.Category) ([]reconcile.Finding, error) {
	s := r.s
	ledger := map[pair]int64{}
	for _, txn := range s.transactions {
		if txn.WarehouseID != nil {
			ledger[pair{txn.ProductID, *txn.WarehouseID}] += txn.Signed()
		}
	}
	var out []reconcile.Finding
	switch category {
	case reconcile.QuantityMismatch:
		for key, row := range s.stock {
			if sum := ledger[key]; row.Quantity != sum {
				out = append(out, reconcile.Finding{
					ProductID:      key.productID,
					WarehouseID:    ptr(key.warehouseID),
					StockQuantity:  ptr(row.Quantity),
					LedgerQuantity: ptr(sum),
					Difference:     ptr(row.Quantity - sum),
				})
			}
		}
	case reconcile.NegativeQuantity:
		for key, row := range s.stock {
			if row.Quantity < 0 {
				out = append(out, reconcile.Finding{ProductID: key.productID, WarehouseID: ptr(key.warehouseID), StockQuantity: ptr(row.Quantity)})
			}
		}
	case reconcile.DuplicateStockRow:
	case reconcile.MissingStockRow:
		for key, sum := range ledger {
			if _, ok := s.stock[key]; !ok {
				out = append(out, reconcile.Finding{ProductID: key.productID, WarehouseID: ptr(key.warehouseID), LedgerQuantity: ptr(sum)})
			}
		}
	case reconcile.UntrackedProduct:
		tracked := map[int64]bool{}
		for key := range s.stock {
			if w, ok := s.warehouses[key.warehouseID]; ok && w.IsActive {
				tracked[key.productID] = true
			}
		}
		for id, p := range s.products {
			if p.IsActive && !tracked[id] {
				out = append(out, reconcile.Finding{ProductID: id})
			}
		}
	case reconcile.SaleWithoutWarehouse:
		for id, sale := range s.sales {
			if sale.WarehouseID == nil {
				out = append(out, reconcile.Finding{DocumentID: id})
			}
		}
	case reconcile.CheckWithoutWarehouse:
		for id, c := range s.checks {
			if c.WarehouseID == nil {
				out = append(out, reconcile.Finding{DocumentID: id})
			}
		}
	case reconcile.TransactionWithoutWarehouse:
		for _, txn := range s.transactions {
			if txn.WarehouseID == nil {
				out = append(out, reconcile.Finding{DocumentID: txn.ID, ProductID: txn.ProductID})
			}
		}
	default:
		return nil, fmt.Errorf("unknown category %q", category)
	}
	return out, nil
}

var _ reconcile.Source = (*ReconcileSource)(nil)
