package inventory

import (
	"context"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// TxRepository is the in-transaction view of the ledger. Engines that compose
// several mutations embed it in their own transactional repositories.
type TxRepository interface {
	// GetStockForUpdate locks the (product, warehouse) row. Returns ErrStockNotFound.
	GetStockForUpdate(ctx context.Context, productID, warehouseID int64) (Stock, error)
	// CreateStock inserts a zero row. Returns ErrStockExists when a concurrent
	// insert won; the transaction stays usable.
	CreateStock(ctx context.Context, productID, warehouseID, warningLevel int64) (Stock, error)
	UpdateStockQuantity(ctx context.Context, stockID, quantity int64) (Stock, error)
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	InsertOperationLog(ctx context.Context, log shared.OperationLog) (int64, error)
}

// Repository is the ledger store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, productID, warehouseID int64) (Stock, error)
	ListStock(ctx context.Context, scope access.Scope, filter StockFilter) ([]Stock, int, error)
	ListTransactions(ctx context.Context, scope access.Scope, filter TransactionFilter) ([]Transaction, int, error)
	// SetWarningLevel upserts the row's warning level without touching quantity.
	SetWarningLevel(ctx context.Context, productID, warehouseID, level int64) (Stock, error)
}
