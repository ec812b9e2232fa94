package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Status is the lifecycle state of a sale.
type Status string

const (
	StatusUnsettled Status = "UNSETTLED"
	StatusCompleted Status = "COMPLETED"
	StatusAbandoned Status = "ABANDONED"
	StatusDeleted   Status = "DELETED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUnsettled, StatusCompleted, StatusAbandoned, StatusDeleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDeleted || s == StatusAbandoned
}

// PaymentMethod is how the customer paid.
type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentCard    PaymentMethod = "card"
	PaymentBalance PaymentMethod = "balance"
	PaymentMixed   PaymentMethod = "mixed"
	PaymentOther   PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentBalance, PaymentMixed, PaymentOther:
		return true
	}
	return false
}

// SaleType selects the price list of a line.
type SaleType string

const (
	SaleTypeRetail    SaleType = "retail"
	SaleTypeWholesale SaleType = "wholesale"
)

func (t SaleType) Valid() bool {
	return t == SaleTypeRetail || t == SaleTypeWholesale
}

// Sale is the POS document header.
type Sale struct {
	ID             int64           `json:"id"`
	Status         Status          `json:"status"`
	WarehouseID    *int64          `json:"warehouse_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DepositAmount  decimal.Decimal `json:"deposit_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	OperatorID     int64           `json:"operator_id"`
	Remark         string          `json:"remark,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
	Items          []Item          `json:"items,omitempty"`
}

// BoundWarehouseID returns the warehouse the sale belongs to.
func (s Sale) BoundWarehouseID() *int64 {
	return s.WarehouseID
}

// Item is one sale line.
type Item struct {
	ID             int64           `json:"id"`
	SaleID         int64           `json:"sale_id"`
	ProductID      int64           `json:"product_id"`
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	ActualPrice    decimal.Decimal `json:"actual_price"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	SaleType       SaleType        `json:"sale_type"`
	StockCommitted bool            `json:"stock_committed"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ItemInput describes a line to add.
type ItemInput struct {
	ProductID   int64           `json:"product_id"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	ActualPrice decimal.Decimal `json:"actual_price"`
	SaleType    SaleType        `json:"sale_type"`
}

// CreateInput is the payload of Create.
type CreateInput struct {
	WarehouseID    int64           `json:"warehouse_id"`
	Status         Status          `json:"status"`
	Items          []ItemInput     `json:"items"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DepositAmount  decimal.Decimal `json:"deposit_amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	Remark         string          `json:"remark"`
	IdempotencyKey string          `json:"-"`
}

// CompleteInput settles an unsettled sale.
type CompleteInput struct {
	DiscountAmount *decimal.Decimal `json:"discount_amount"`
	PaymentMethod  PaymentMethod    `json:"payment_method"`
}

// Result wraps a transition outcome.
type Result struct {
	Sale           Sale `json:"sale"`
	AlreadyDeleted bool `json:"already_deleted,omitempty"`
}

// ListFilter narrows List.
type ListFilter struct {
	Warehouse      string
	Status         Status
	IncludeDeleted bool
	From           time.Time
	To             time.Time
	Page           shared.PageRequest
}

// SummaryFilter narrows Summary.
type SummaryFilter struct {
	Warehouse string
	From      time.Time
	To        time.Time
}

// SummaryFacts are the raw aggregates behind Summary.
type SummaryFacts struct {
	RevenueByType     map[SaleType]decimal.Decimal
	Discount          decimal.Decimal
	ForfeitedDeposits decimal.Decimal
	Counts            map[Status]int
}

// Summary is the sales report of a scope and period.
type Summary struct {
	ScopeLabel        string                       `json:"scope_label"`
	RevenueByType     map[SaleType]decimal.Decimal `json:"revenue_by_type"`
	GrossRevenue      decimal.Decimal              `json:"gross_revenue"`
	Discount          decimal.Decimal              `json:"discount"`
	NetRevenue        decimal.Decimal              `json:"net_revenue"`
	ForfeitedDeposits decimal.Decimal              `json:"forfeited_deposits"`
	Counts            map[Status]int               `json:"counts"`
	Degraded          bool                         `json:"degraded,omitempty"`
}

var (
	ErrNotFound          = fmt.Errorf("sale %w", shared.ErrNotFound)
	ErrInvalidTransition = fmt.Errorf("sales: invalid status transition: %w", shared.ErrConflict)
	ErrAlreadyCompleted  = fmt.Errorf("sales: sale already completed: %w", shared.ErrConflict)
	ErrNoWarehouse       = fmt.Errorf("sales: sale has no warehouse: %w", shared.ErrConflict)
	ErrNoItems           = fmt.Errorf("sales: at least one item is required: %w", shared.ErrValidation)
	ErrInvalidItem       = fmt.Errorf("sales: invalid item: %w", shared.ErrValidation)
	ErrInvalidStatus     = fmt.Errorf("sales: status must be COMPLETED or UNSETTLED: %w", shared.ErrValidation)
	ErrInvalidPayment    = fmt.Errorf("sales: invalid payment method: %w", shared.ErrValidation)
	ErrInvalidDiscount   = fmt.Errorf("sales: discount must not be negative: %w", shared.ErrValidation)
	ErrInvalidDeposit    = fmt.Errorf("sales: deposit must be positive and not exceed total: %w", shared.ErrValidation)
	ErrItemNotFound      = fmt.Errorf("sale item %w", shared.ErrNotFound)
	ErrProductInactive   = fmt.Errorf("sales: product is not available: %w", shared.ErrValidation)
)
