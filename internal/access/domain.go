package access

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Principal is the authenticated caller.
type Principal interface {
	GetID() int64
	IsSuperUser() bool
}

// IsAdmin reports whether p bypasses per-warehouse grants.
func IsAdmin(p Principal) bool {
	return p != nil && p.IsSuperUser()
}

type principalKey struct{}

// ContextWithPrincipal stores p on ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller or nil.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

// Grant links a user to a warehouse with a permission mask.
type Grant struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	WarehouseID int64      `json:"warehouse_id"`
	IsActive    bool       `json:"is_active"`
	IsDefault   bool       `json:"is_default"`
	Permissions Permission `json:"permission_bits"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// GrantInput is the admin payload for UpsertGrant.
type GrantInput struct {
	UserID      int64    `json:"user_id"`
	WarehouseID int64    `json:"warehouse_id"`
	IsActive    *bool    `json:"is_active"`
	IsDefault   bool     `json:"is_default"`
	Permissions []string `json:"permissions"`
}

// WarehouseBound is implemented by documents pinned to a warehouse.
type WarehouseBound interface {
	BoundWarehouseID() *int64
}

const (
	CodeScopeDenied  = "warehouse_scope_denied"
	CodeActionDenied = "warehouse_action_denied"
)

// AuthorizationError reports a failed warehouse check.
type AuthorizationError struct {
	Code        string
	Message     string
	UserID      int64
	WarehouseID int64
	Permission  Permission
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

func (e *AuthorizationError) ErrorCode() string {
	return e.Code
}

func (e *AuthorizationError) Unwrap() error {
	return shared.ErrForbidden
}

func scopeDenied(p Principal, warehouseID int64, perm Permission) *AuthorizationError {
	return &AuthorizationError{
		Code:        CodeScopeDenied,
		Message:     "warehouse is outside your scope",
		UserID:      principalID(p),
		WarehouseID: warehouseID,
		Permission:  perm,
	}
}

func actionDenied(p Principal, warehouseID int64, perm Permission) *AuthorizationError {
	return &AuthorizationError{
		Code:        CodeActionDenied,
		Message:     fmt.Sprintf("missing %s permission", perm),
		UserID:      principalID(p),
		WarehouseID: warehouseID,
		Permission:  perm,
	}
}

func principalID(p Principal) int64 {
	if p == nil {
		return 0
	}
	return p.GetID()
}

type scopeMode uint8

const (
	scopeDeny scopeMode = iota
	scopeAll
	scopeRestricted
)

// Scope is a warehouse filter: unrestricted, restricted to ids, or denied.
// The zero value denies.
type Scope struct {
	mode scopeMode
	ids  []int64
}

// Unrestricted matches every warehouse.
func Unrestricted() Scope {
	return Scope{mode: scopeAll}
}

// Deny matches nothing.
func Deny() Scope {
	return Scope{mode: scopeDeny}
}

// Restrict matches the given ids. An empty list denies.
func Restrict(ids []int64) Scope {
	if len(ids) == 0 {
		return Deny()
	}
	cp := make([]int64, len(ids))
	copy(cp, ids)
	return Scope{mode: scopeRestricted, ids: cp}
}

func (s Scope) IsUnrestricted() bool { return s.mode == scopeAll }

func (s Scope) IsDenied() bool { return s.mode == scopeDeny }

// IDs returns nil when unrestricted and an empty slice when denied.
func (s Scope) IDs() []int64 {
	switch s.mode {
	case scopeAll:
		return nil
	case scopeDeny:
		return []int64{}
	}
	cp := make([]int64, len(s.ids))
	copy(cp, s.ids)
	return cp
}

// Allows reports whether id passes the filter.
func (s Scope) Allows(id int64) bool {
	switch s.mode {
	case scopeAll:
		return true
	case scopeDeny:
		return false
	}
	for _, v := range s.ids {
		if v == id {
			return true
		}
	}
	return false
}

// Clause renders the filter as SQL against column, using placeholder $argPos.
func (s Scope) Clause(column string, argPos int) (string, []any) {
	switch s.mode {
	case scopeAll:
		return "TRUE", nil
	case scopeDeny:
		return "FALSE", nil
	}
	return column + " = ANY($" + strconv.Itoa(argPos) + ")", []any{s.IDs()}
}

// Selection is the resolved warehouse picker state for list screens.
type Selection struct {
	Warehouses    []warehouses.Warehouse `json:"warehouses"`
	Selected      *warehouses.Warehouse  `json:"selected,omitempty"`
	SelectedValue string                 `json:"selected_value"`
	Scope         Scope                  `json:"-"`
	ScopeLabel    string                 `json:"scope_label"`
}

const (
	SelectionAll      = "all"
	labelAllAdmin     = "All warehouses"
	labelAllPrincipal = "All visible warehouses"
)
