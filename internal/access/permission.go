package access

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Permission is a bit in a grant's permission mask.
type Permission uint32

const (
	PermView Permission = 1 << iota
	PermSale
	PermStockIn
	PermStockOut
	PermInventoryCheck
	PermStockAdjust
	PermProductManage
	PermReportView
)

// PermNone means no specific permission is required.
const PermNone Permission = 0

// DefaultGrantPermissions is applied to grants created without explicit bits.
const DefaultGrantPermissions = PermView | PermSale

var permissionTable = []struct {
	bit   Permission
	label string
}{
	{PermView, "VIEW"},
	{PermSale, "SALE"},
	{PermStockIn, "STOCK_IN"},
	{PermStockOut, "STOCK_OUT"},
	{PermInventoryCheck, "INVENTORY_CHECK"},
	{PermStockAdjust, "STOCK_ADJUST"},
	{PermProductManage, "PRODUCT_MANAGE"},
	{PermReportView, "REPORT_VIEW"},
}

// AllPermissions is the union of every known bit.
var AllPermissions = func() Permission {
	var all Permission
	for _, row := range permissionTable {
		all |= row.bit
	}
	return all
}()

// ErrUnknownPermission is returned for labels outside the catalog.
var ErrUnknownPermission = fmt.Errorf("access: unknown permission: %w", shared.ErrValidation)

// ParsePermission resolves a single label such as "stock_in".
func ParsePermission(label string) (Permission, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" {
		return PermNone, nil
	}
	for _, row := range permissionTable {
		if row.label == label {
			return row.bit, nil
		}
	}
	return PermNone, fmt.Errorf("%w: %q", ErrUnknownPermission, label)
}

// ParsePermissions folds labels into one mask.
func ParsePermissions(labels []string) (Permission, error) {
	var mask Permission
	for _, label := range labels {
		bit, err := ParsePermission(label)
		if err != nil {
			return PermNone, err
		}
		mask |= bit
	}
	return mask, nil
}

// Has reports whether every bit of want is present.
func (p Permission) Has(want Permission) bool {
	return p&want == want
}

// Intersects reports whether any bit of want is present.
func (p Permission) Intersects(want Permission) bool {
	return p&want != 0
}

// Valid reports whether p only uses known bits.
func (p Permission) Valid() bool {
	return p&^AllPermissions == 0
}

func (p Permission) String() string {
	if p == PermNone {
		return "NONE"
	}
	return strings.Join(Labels(p), "|")
}

// Labels lists the labels of the bits set in mask, in catalog order.
func Labels(mask Permission) []string {
	out := make([]string, 0, len(permissionTable))
	for _, row := range permissionTable {
		if mask&row.bit != 0 {
			out = append(out, row.label)
		}
	}
	return out
}
