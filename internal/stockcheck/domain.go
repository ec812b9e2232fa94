package stockcheck

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Status enumerates stocktake lifecycle values.
type Status string

const (
	// StatusDraft indicates the snapshot is taken but counting has not started.
	StatusDraft Status = "draft"
	// StatusInProgress indicates counting is under way.
	StatusInProgress Status = "in_progress"
	// StatusCompleted indicates every item has been counted.
	StatusCompleted Status = "completed"
	// StatusApproved indicates the result was accepted, optionally with adjustments.
	StatusApproved Status = "approved"
	// StatusCancelled indicates the check was abandoned.
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusCompleted, StatusApproved, StatusCancelled:
		return true
	}
	return false
}

// Check is a stocktake of one warehouse.
type Check struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	WarehouseID *int64     `json:"warehouse_id"`
	Status      Status     `json:"status"`
	CreatedBy   int64      `json:"created_by"`
	ApprovedBy  *int64     `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Items       []Item     `json:"items,omitempty"`
}

// BoundWarehouseID returns the counted warehouse.
func (c Check) BoundWarehouseID() *int64 {
	return c.WarehouseID
}

// Item is the count of one product.
type Item struct {
	ID             int64      `json:"id"`
	CheckID        int64      `json:"check_id"`
	ProductID      int64      `json:"product_id"`
	SystemQuantity int64      `json:"system_quantity"`
	ActualQuantity *int64     `json:"actual_quantity"`
	Difference     *int64     `json:"difference"`
	Notes          string     `json:"notes,omitempty"`
	CheckedBy      *int64     `json:"checked_by,omitempty"`
	CheckedAt      *time.Time `json:"checked_at,omitempty"`
}

// Recorded reports whether the item has been counted.
func (i Item) Recorded() bool {
	return i.ActualQuantity != nil
}

// CreateInput starts a new check.
type CreateInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	WarehouseID int64  `json:"warehouse_id"`
	Category    string `json:"category"`
}

// RecordInput is one count.
type RecordInput struct {
	ActualQuantity int64  `json:"actual_quantity"`
	Notes          string `json:"notes"`
}

// ListFilter narrows List.
type ListFilter struct {
	Warehouse string
	Status    Status
	Page      shared.PageRequest
}

// Summary aggregates the counts of one check.
type Summary struct {
	CheckID         int64           `json:"check_id"`
	TotalItems      int             `json:"total_items"`
	CheckedItems    int             `json:"checked_items"`
	PendingItems    int             `json:"pending_items"`
	DiscrepantItems int             `json:"discrepant_items"`
	SystemValue     decimal.Decimal `json:"system_value"`
	ActualValue     decimal.Decimal `json:"actual_value"`
	ValueDifference decimal.Decimal `json:"value_difference"`
}

var (
	ErrNotFound          = fmt.Errorf("inventory check %w", shared.ErrNotFound)
	ErrItemNotFound      = fmt.Errorf("inventory check item %w", shared.ErrNotFound)
	ErrInvalidTransition = fmt.Errorf("stockcheck: invalid status transition: %w", shared.ErrConflict)
	ErrIncomplete        = fmt.Errorf("stockcheck: every item must be counted first: %w", shared.ErrConflict)
	ErrInvalidQuantity   = fmt.Errorf("stockcheck: actual quantity must be >= 0: %w", shared.ErrValidation)
	ErrNoWarehouse       = fmt.Errorf("stockcheck: no active warehouse available: %w", shared.ErrValidation)
	ErrNoProducts        = fmt.Errorf("stockcheck: no active products to count: %w", shared.ErrValidation)
)
