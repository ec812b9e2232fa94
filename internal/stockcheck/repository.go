package stockcheck

import (
	"context"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

// TxRepository exposes transactional operations, including the ledger
// statements used when approval posts adjustments.
type TxRepository interface {
	inventory.TxRepository

	InsertCheck(ctx context.Context, check Check) (Check, error)
	// GetCheckForUpdate locks the header and loads its items.
	GetCheckForUpdate(ctx context.Context, id int64) (Check, error)
	UpdateCheck(ctx context.Context, check Check) (Check, error)
	InsertCheckItems(ctx context.Context, checkID int64, items []Item) ([]Item, error)
	UpdateCheckItem(ctx context.Context, item Item) (Item, error)
	// StockQuantities returns the current quantity per product of a warehouse.
	StockQuantities(ctx context.Context, warehouseID int64) (map[int64]int64, error)
}

// Repository persists inventory checks.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetCheck(ctx context.Context, id int64) (Check, error)
	ListChecks(ctx context.Context, scope access.Scope, filter ListFilter) ([]Check, int, error)
}
