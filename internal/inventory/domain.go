package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// TransactionType enumerates supported ledger movements.
type TransactionType string

const (
	// TransactionTypeIn represents an inbound movement.
	TransactionTypeIn TransactionType = "IN"
	// TransactionTypeOut represents an outbound movement.
	TransactionTypeOut TransactionType = "OUT"
	// TransactionTypeAdjust carries the sign of the caller's delta.
	TransactionTypeAdjust TransactionType = "ADJUST"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIn, TransactionTypeOut, TransactionTypeAdjust:
		return true
	}
	return false
}

// DefaultWarningLevel is applied to lazily created stock rows.
const DefaultWarningLevel int64 = 10

// Stock is the current quantity of one product in one warehouse.
type Stock struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	WarehouseID  int64     `json:"warehouse_id"`
	Quantity     int64     `json:"quantity"`
	WarningLevel int64     `json:"warning_level"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsLow reports whether the row is at or below its warning level.
func (s Stock) IsLow() bool {
	return s.Quantity <= s.WarningLevel
}

// Metadata describes why a ledger row exists.
type Metadata struct {
	Source         string `json:"source,omitempty"`
	Intent         string `json:"intent,omitempty"`
	DocumentType   string `json:"document_type,omitempty"`
	DocumentID     int64  `json:"document_id,omitempty"`
	DocumentLineID int64  `json:"document_line_id,omitempty"`
	SystemQuantity *int64 `json:"system_quantity,omitempty"`
	ActualQuantity *int64 `json:"actual_quantity,omitempty"`
}

// Ledger sources.
const (
	SourceManualStockIn    = "manual_stock_in"
	SourceManualStockOut   = "manual_stock_out"
	SourceManualAdjust     = "manual_adjust"
	SourceSaleCreate       = "sale_create"
	SourceSaleComplete     = "sale_complete"
	SourceSaleItemCreate   = "sale_item_create"
	SourceSaleDelete       = "sale_delete"
	SourceSaleDeleteItem   = "sale_delete_item"
	SourceCheckApprove     = "inventory_check_approve"
	DocumentSale           = "sale"
	DocumentInventoryCheck = "inventory_check"
)

// Transaction is one append-only ledger row. Quantity is a magnitude; the
// signed movement is Direction * Quantity.
type Transaction struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	WarehouseID *int64          `json:"warehouse_id"`
	Type        TransactionType `json:"type"`
	Quantity    int64           `json:"quantity"`
	Direction   int             `json:"direction"`
	OperatorID  int64           `json:"operator_id"`
	Metadata    Metadata        `json:"metadata"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Signed returns the movement applied to the stock row.
func (t Transaction) Signed() int64 {
	return int64(t.Direction) * t.Quantity
}

// UpdateRequest is the input of the mutation primitive.
type UpdateRequest struct {
	ProductID   int64
	WarehouseID int64
	Quantity    int64
	Type        TransactionType
	OperatorID  int64
	Metadata    Metadata
	Notes       string
}

// Result is the outcome of one applied mutation.
type Result struct {
	Stock       Stock       `json:"stock"`
	Transaction Transaction `json:"transaction"`
	Delta       int64       `json:"delta"`
}

// MovementInput is the payload of the manual stock endpoints.
type MovementInput struct {
	ProductID   int64  `json:"product_id"`
	WarehouseID int64  `json:"warehouse_id"`
	Quantity    int64  `json:"quantity"`
	Notes       string `json:"notes"`
}

// StockFilter narrows ListStock. Warehouse is the raw selection parameter.
type StockFilter struct {
	Warehouse    string
	ProductID    int64
	LowStockOnly bool
	Page         shared.PageRequest
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	Warehouse string
	ProductID int64
	Type      TransactionType
	From      time.Time
	To        time.Time
	Page      shared.PageRequest
}

var (
	ErrInvalidTransactionType = fmt.Errorf("inventory: invalid transaction type: %w", shared.ErrValidation)
	ErrMissingWarehouse       = fmt.Errorf("inventory: warehouse is required: %w", shared.ErrValidation)
	ErrMissingProduct         = fmt.Errorf("inventory: product is required: %w", shared.ErrValidation)
	ErrInvalidOperator        = fmt.Errorf("inventory: operator must be an active user: %w", shared.ErrValidation)
	ErrInvalidQuantity        = fmt.Errorf("inventory: quantity must be non zero: %w", shared.ErrValidation)
	ErrInvalidWarningLevel    = fmt.Errorf("inventory: warning level must be >= 0: %w", shared.ErrValidation)
	ErrStockNotFound          = fmt.Errorf("inventory: stock row %w", shared.ErrNotFound)
	// ErrStockExists is returned by CreateStock when another transaction won the insert.
	ErrStockExists = errors.New("inventory: stock row already exists")
	// ErrStockBusy reports a stock row lock that was not granted within the pool's lock_timeout.
	ErrStockBusy = fmt.Errorf("inventory: stock row busy: %w: %w", shared.ErrConflict, shared.ErrTemporary)
	// ErrInsufficientStock matches every *InsufficientStockError.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// InsufficientStockError reports a movement that would drive stock below zero.
type InsufficientStockError struct {
	ProductID   int64
	WarehouseID int64
	Current     int64
	Requested   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d, current stock: %d, requested: %d", e.ProductID, e.Current, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func (e *InsufficientStockError) Unwrap() error {
	return shared.ErrConflict
}

func (e *InsufficientStockError) ErrorCode() string {
	return "insufficient_stock"
}
