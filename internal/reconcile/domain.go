// Package reconcile scans the ledger for inconsistencies between stock rows,
// ledger sums and document scoping, and reports them by category.
package reconcile

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Category names one kind of finding.
type Category string

const (
	QuantityMismatch            Category = "quantity_mismatch"
	NegativeQuantity            Category = "negative_quantity"
	DuplicateStockRow           Category = "duplicate_stock_row"
	MissingStockRow             Category = "missing_stock_row"
	UntrackedProduct            Category = "untracked_product"
	SaleWithoutWarehouse        Category = "sale_without_warehouse"
	CheckWithoutWarehouse       Category = "check_without_warehouse"
	TransactionWithoutWarehouse Category = "transaction_without_warehouse"
)

// Categories lists every category in report order.
var Categories = []Category{
	QuantityMismatch,
	NegativeQuantity,
	DuplicateStockRow,
	MissingStockRow,
	UntrackedProduct,
	SaleWithoutWarehouse,
	CheckWithoutWarehouse,
	TransactionWithoutWarehouse,
}

// Group classifies categories by how they can be resolved.
type Group string

const (
	GroupAutoFix      Group = "auto_fix_candidates"
	GroupManualReview Group = "manual_review_required"
	GroupLegacyGaps   Group = "legacy_scope_gaps"
)

// GroupOf returns the classification group of c.
func GroupOf(c Category) Group {
	switch c {
	case MissingStockRow, UntrackedProduct:
		return GroupAutoFix
	case QuantityMismatch, NegativeQuantity, DuplicateStockRow:
		return GroupManualReview
	default:
		return GroupLegacyGaps
	}
}

// SuggestedAction is the recommended resolution for findings of c.
func SuggestedAction(c Category) string {
	switch c {
	case QuantityMismatch:
		return "manual_reconcile_quantity"
	case NegativeQuantity:
		return "manual_review_negative_stock"
	case DuplicateStockRow:
		return "manual_merge_duplicate_rows"
	case MissingStockRow:
		return "auto_create_stock_row_from_ledger"
	case UntrackedProduct:
		return "auto_create_zero_stock_row"
	default:
		return "manual_backfill_warehouse"
	}
}

// Finding is one sampled row.
type Finding struct {
	Category        Category `json:"-"`
	ProductID       int64    `json:"product_id,omitempty"`
	WarehouseID     *int64   `json:"warehouse_id,omitempty"`
	DocumentID      int64    `json:"document_id,omitempty"`
	StockQuantity   *int64   `json:"stock_quantity,omitempty"`
	LedgerQuantity  *int64   `json:"ledger_quantity,omitempty"`
	Difference      *int64   `json:"difference,omitempty"`
	Rows            int      `json:"rows,omitempty"`
	SuggestedAction string   `json:"suggested_action"`
}

// Summary counts findings per category.
type Summary struct {
	Counts map[Category]int `json:"counts"`
	Total  int              `json:"total"`
}

// Report is the result of one scan.
type Report struct {
	GeneratedAt          time.Time                  `json:"generated_at"`
	SampleSize           int                        `json:"sample_size"`
	Summary              Summary                    `json:"summary"`
	Classification       map[Group]map[Category]int `json:"classification"`
	Samples              map[Category][]Finding     `json:"samples"`
	RequiresManualReview bool                       `json:"requires_manual_review"`
}

// CriticalCount is the number of findings that need manual review.
func (r Report) CriticalCount() int {
	n := 0
	for _, count := range r.Classification[GroupManualReview] {
		n += count
	}
	return n
}

const (
	DefaultSampleSize = 20
	// ExitCodeCritical is returned by the CLI when -fail-on-critical trips.
	ExitCodeCritical = 10
)

var ErrNoSource = fmt.Errorf("reconcile: no source configured: %w", shared.ErrValidation)
