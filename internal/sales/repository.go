package sales

import (
	"context"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

// TxRepository exposes transactional operations. It embeds the ledger
// statements so line mutations share the sale's transaction.
type TxRepository interface {
	inventory.TxRepository

	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	// GetSaleForUpdate locks the header row and loads its items.
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	UpdateSale(ctx context.Context, sale Sale) (Sale, error)
	InsertSaleItem(ctx context.Context, item Item) (Item, error)
	SetSaleItemCommitted(ctx context.Context, itemID int64, committed bool) error
	DeleteSaleItem(ctx context.Context, itemID int64) error
}

// Repository provides persistence for sales.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, scope access.Scope, filter ListFilter) ([]Sale, int, error)
	SummaryFacts(ctx context.Context, scope access.Scope, filter SummaryFilter) (SummaryFacts, error)
}

// IdempotencyStore guards sale creation against client retries.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}
