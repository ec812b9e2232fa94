package warehouses

import (
	"fmt"
	"time"

	internalshared "github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Warehouse represents a stock holding location.
type Warehouse struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name" validate:"required,max=100"`
	Code          string    `json:"code" validate:"required,max=20,warehouse_code"`
	Address       string    `json:"address" validate:"max=200"`
	Phone         string    `json:"phone" validate:"max=20"`
	ContactPerson string    `json:"contact_person" validate:"max=50"`
	IsActive      bool      `json:"is_active"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

var (
	// ErrInactiveDefault rejects flagging an inactive warehouse as default.
	ErrInactiveDefault = fmt.Errorf("warehouses: an inactive warehouse cannot be the default: %w", internalshared.ErrValidation)
	// ErrInUse rejects deleting a warehouse that still has stock or ledger rows.
	ErrInUse = fmt.Errorf("warehouses: warehouse has stock or ledger rows, deactivate it instead: %w", internalshared.ErrConflict)
)
