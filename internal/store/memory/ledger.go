package memory

import (
	"context"
	"sort"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func (t *memTx) GetStockForUpdate(ctx context.Context, productID, warehouseID int64) (inventory.Stock, error) {
	// The pair key is locked even when the row is missing, so a later
	// CreateStock in this transaction cannot race another creator.
	if err := t.lock(ctx, stockKey(productID, warehouseID)); err != nil {
		return inventory.Stock{}, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	row, ok := t.s.stock[pair{productID, warehouseID}]
	if !ok {
		return inventory.Stock{}, inventory.ErrStockNotFound
	}
	return row, nil
}

func (t *memTx) CreateStock(ctx context.Context, productID, warehouseID, warningLevel int64) (inventory.Stock, error) {
	if err := t.lock(ctx, stockKey(productID, warehouseID)); err != nil {
		return inventory.Stock{}, err
	}
	var (
		row    inventory.Stock
		exists bool
	)
	t.write(func() func() {
		key := pair{productID, warehouseID}
		if _, exists = t.s.stock[key]; exists {
			return nil
		}
		now := t.s.now()
		row = inventory.Stock{
			ID:           t.s.nextID("warehouse_stock"),
			ProductID:    productID,
			WarehouseID:  warehouseID,
			WarningLevel: warningLevel,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		t.s.stock[key] = row
		t.s.stockByID[row.ID] = key
		return func() {
			delete(t.s.stock, key)
			delete(t.s.stockByID, row.ID)
		}
	})
	if exists {
		return inventory.Stock{}, inventory.ErrStockExists
	}
	return row, nil
}

func (t *memTx) UpdateStockQuantity(ctx context.Context, stockID, quantity int64) (inventory.Stock, error) {
	t.s.mu.Lock()
	key, ok := t.s.stockByID[stockID]
	t.s.mu.Unlock()
	if !ok {
		return inventory.Stock{}, inventory.ErrStockNotFound
	}
	if err := t.lock(ctx, stockKey(key.productID, key.warehouseID)); err != nil {
		return inventory.Stock{}, err
	}
	var row inventory.Stock
	t.write(func() func() {
		prev := t.s.stock[key]
		row = prev
		row.Quantity = quantity
		row.UpdatedAt = t.s.now()
		t.s.stock[key] = row
		return func() { t.s.stock[key] = prev }
	})
	return row, nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn inventory.Transaction) (inventory.Transaction, error) {
	t.write(func() func() {
		txn.ID = t.s.nextID("stock_transactions")
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = t.s.now()
		}
		t.s.transactions = append(t.s.transactions, txn)
		id := txn.ID
		return func() { t.s.transactions = removeTransaction(t.s.transactions, id) }
	})
	return txn, nil
}

func removeTransaction(list []inventory.Transaction, id int64) []inventory.Transaction {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].ID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (t *memTx) InsertOperationLog(ctx context.Context, log shared.OperationLog) (int64, error) {
	if err := log.Validate(); err != nil {
		return 0, err
	}
	log = log.WithRequest(ctx)
	t.write(func() func() {
		log.ID = t.s.nextID("operation_logs")
		if log.At.IsZero() {
			log.At = t.s.now()
		}
		t.s.oplogs = append(t.s.oplogs, log)
		id := log.ID
		return func() {
			for i := len(t.s.oplogs) - 1; i >= 0; i-- {
				if t.s.oplogs[i].ID == id {
					t.s.oplogs = append(t.s.oplogs[:i], t.s.oplogs[i+1:]...)
					return
				}
			}
		}
	})
	return log.ID, nil
}

// InventoryRepository adapts the store to inventory.Repository.
type InventoryRepository struct {
	s *Store
}

// Inventory returns the ledger view of the store.
func (s *Store) Inventory() *InventoryRepository {
	return &InventoryRepository{s: s}
}

func (r *InventoryRepository) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.run(ctx, func(t *memTx) error { return fn(ctx, t) })
}

func (r *InventoryRepository) GetStock(_ context.Context, productID, warehouseID int64) (inventory.Stock, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.stock[pair{productID, warehouseID}]
	if !ok {
		return inventory.Stock{}, inventory.ErrStockNotFound
	}
	return row, nil
}

func (r *InventoryRepository) ListStock(_ context.Context, scope access.Scope, filter inventory.StockFilter) ([]inventory.Stock, int, error) {
	r.s.mu.Lock()
	var out []inventory.Stock
	for _, row := range r.s.stock {
		if !scope.Allows(row.WarehouseID) {
			continue
		}
		if filter.ProductID > 0 && row.ProductID != filter.ProductID {
			continue
		}
		if filter.LowStockOnly && !row.IsLow() {
			continue
		}
		out = append(out, row)
	}
	r.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].WarehouseID != out[j].WarehouseID {
			return out[i].WarehouseID < out[j].WarehouseID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return paginate(out, filter.Page), len(out), nil
}

func (r *InventoryRepository) ListTransactions(_ context.Context, scope access.Scope, filter inventory.TransactionFilter) ([]inventory.Transaction, int, error) {
	r.s.mu.Lock()
	var out []inventory.Transaction
	for _, txn := range r.s.transactions {
		if !scopeAllowsRef(scope, txn.WarehouseID) {
			continue
		}
		if filter.ProductID > 0 && txn.ProductID != filter.ProductID {
			continue
		}
		if filter.Type != "" && txn.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && txn.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !txn.CreatedAt.Before(filter.To) {
			continue
		}
		out = append(out, txn)
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

func (r *InventoryRepository) SetWarningLevel(_ context.Context, productID, warehouseID, level int64) (inventory.Stock, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pair{productID, warehouseID}
	now := r.s.now()
	row, ok := r.s.stock[key]
	if !ok {
		row = inventory.Stock{ID: r.s.nextID("warehouse_stock"), ProductID: productID, WarehouseID: warehouseID, CreatedAt: now}
		r.s.stockByID[row.ID] = key
	}
	row.WarningLevel = level
	row.UpdatedAt = now
	r.s.stock[key] = row
	return row, nil
}

// Transactions returns a copy of the ledger in insertion order.
func (s *Store) Transactions() []inventory.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.Transaction(nil), s.transactions...)
}

// OperationLogs returns a copy of the operation log in insertion order.
func (s *Store) OperationLogs() []shared.OperationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shared.OperationLog(nil), s.oplogs...)
}

// scopeAllowsRef treats a missing warehouse as visible only to an
// unrestricted scope, like a NULL column under the SQL clause.
func scopeAllowsRef(scope access.Scope, warehouseID *int64) bool {
	if scope.IsUnrestricted() {
		return true
	}
	return warehouseID != nil && scope.Allows(*warehouseID)
}

func paginate[T any](items []T, page shared.PageRequest) []T {
	offset, limit := page.Offset(), page.Limit()
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

var (
	_ inventory.Repository   = (*InventoryRepository)(nil)
	_ inventory.TxRepository = (*memTx)(nil)
)
