// Package fixture wires the services over a fresh memory store for tests.
package fixture

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/stockcheck"
	"github.com/odyssey-erp/odyssey-pos/internal/store/memory"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
)

// Env is a fully wired service graph.
type Env struct {
	Store      *memory.Store
	Logger     *slog.Logger
	Users      *users.Service
	Warehouses *warehouses.Service
	Products   *products.Service
	Access     *access.Service
	Inventory  *inventory.Service
	Sales      *sales.Service
	Checks     *stockcheck.Service
	Admin      *users.User
}

// Option adjusts the environment before services are built.
type Option func(*options)

type options struct {
	cache   *access.Cache
	metrics inventory.MutationRecorder
}

// WithCache routes grant lookups through cache.
func WithCache(cache *access.Cache) Option {
	return func(o *options) { o.cache = cache }
}

// WithMetrics records ledger outcomes into m.
func WithMetrics(m inventory.MutationRecorder) Option {
	return func(o *options) { o.metrics = m }
}

// New builds an environment with one superuser.
func New(t testing.TB, opts ...Option) *Env {
	t.Helper()
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()

	env := &Env{Store: store, Logger: logger}
	env.Users = users.NewService(store.Users(), logger)
	env.Warehouses = warehouses.NewService(store.Warehouses(), logger)
	env.Products = products.NewService(store.Products())
	env.Access = access.NewService(store.Grants(), env.Warehouses, o.cache, logger)
	env.Inventory = inventory.NewService(store.Inventory(), env.Users, env.Access, o.metrics, logger)
	env.Sales = sales.NewService(store.Sales(), env.Inventory, env.Access, env.Products, store.Idempotency(), logger)
	env.Checks = stockcheck.NewService(store.Checks(), env.Inventory, env.Access, env.Products, logger)

	admin, err := env.Users.EnsureAdmin(context.Background(), "admin", "admin-secret")
	require.NoError(t, err)
	env.Admin = admin
	return env
}

// User creates an active, non-admin user.
func (e *Env) User(t testing.TB, username string) *users.User {
	t.Helper()
	u, err := e.Store.Users().CreateUser(context.Background(), users.User{Username: username, Email: username + "@example.test", IsActive: true})
	require.NoError(t, err)
	return &u
}

// Warehouse creates an active warehouse.
func (e *Env) Warehouse(t testing.TB, code string, isDefault bool) warehouses.Warehouse {
	t.Helper()
	w, err := e.Store.Warehouses().Create(context.Background(), warehouses.Warehouse{
		Name:      "Warehouse " + code,
		Code:      code,
		IsActive:  true,
		IsDefault: isDefault,
	})
	require.NoError(t, err)
	return w
}

// Product creates an active product with the given retail price.
func (e *Env) Product(t testing.TB, sku, retail string) products.Product {
	t.Helper()
	price := decimal.RequireFromString(retail)
	p, err := e.Store.Products().Create(context.Background(), products.Product{
		SKU:            sku,
		Name:           "Product " + sku,
		RetailPrice:    price,
		WholesalePrice: price,
		Cost:           price.Div(decimal.NewFromInt(2)).Round(2),
		IsActive:       true,
	})
	require.NoError(t, err)
	return p
}

// Grant gives u perms on warehouseID. No perms means the default grant.
func (e *Env) Grant(t testing.TB, u *users.User, warehouseID int64, isDefault bool, perms ...access.Permission) access.Grant {
	t.Helper()
	var labels []string
	for _, p := range perms {
		labels = append(labels, access.Labels(p)...)
	}
	g, err := e.Access.UpsertGrant(context.Background(), access.GrantInput{
		UserID:      u.ID,
		WarehouseID: warehouseID,
		IsDefault:   isDefault,
		Permissions: labels,
	})
	require.NoError(t, err)
	return g
}

// Stock receives qty units as the admin.
func (e *Env) Stock(t testing.TB, productID, warehouseID, qty int64) {
	t.Helper()
	_, err := e.Inventory.StockIn(context.Background(), e.Admin, inventory.MovementInput{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    qty,
	})
	require.NoError(t, err)
}

// Quantity returns the current quantity of a pair, 0 when the row is missing.
func (e *Env) Quantity(t testing.TB, productID, warehouseID int64) int64 {
	t.Helper()
	row, err := e.Store.Inventory().GetStock(context.Background(), productID, warehouseID)
	if err != nil {
		require.ErrorIs(t, err, inventory.ErrStockNotFound)
		return 0
	}
	return row.Quantity
}

// LedgerSum is the signed sum of ledger rows for a pair.
func (e *Env) LedgerSum(productID, warehouseID int64) int64 {
	var sum int64
	for _, txn := range e.Store.Transactions() {
		if txn.ProductID == productID && txn.WarehouseID != nil && *txn.WarehouseID == warehouseID {
			sum += txn.Signed()
		}
	}
	return sum
}
