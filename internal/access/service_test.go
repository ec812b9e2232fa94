package access_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/testing/fixture"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

type bound struct{ id *int64 }

func (b bound) BoundWarehouseID() *int64 { return b.id }

func ids(list []warehouses.Warehouse) []int64 {
	out := make([]int64, 0, len(list))
	for _, w := range list {
		out = append(out, w.ID)
	}
	return out
}

func TestAccessibleWarehouses(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	b := env.Warehouse(t, "B", true)
	a := env.Warehouse(t, "A", false)
	c := env.Warehouse(t, "C", false)
	_, err := env.Warehouses.Deactivate(ctx, c.ID)
	require.NoError(t, err)

	clerk := env.User(t, "clerk")
	env.Grant(t, clerk, b.ID, false, access.PermView|access.PermStockIn)
	env.Grant(t, clerk, a.ID, false)
	env.Grant(t, clerk, c.ID, false, access.PermView)

	all, err := env.Access.AccessibleWarehouses(ctx, clerk, access.PermNone)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, ids(all), "inactive warehouses are hidden, order by name")

	receiving, err := env.Access.AccessibleWarehouses(ctx, clerk, access.PermStockIn|access.PermStockOut)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, ids(receiving))

	admin, err := env.Access.AccessibleWarehouses(ctx, env.Admin, access.PermReportView)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, ids(admin))

	none, err := env.Access.AccessibleWarehouses(ctx, nil, access.PermNone)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEnsureWarehousePermission(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	main := env.Warehouse(t, "MAIN", true)
	other := env.Warehouse(t, "OTHER", false)
	clerk := env.User(t, "clerk")
	env.Grant(t, clerk, main.ID, true, access.PermView|access.PermSale)

	_, err := env.Access.EnsureWarehouseByID(ctx, clerk, main.ID, access.PermSale)
	require.NoError(t, err)

	var authErr *access.AuthorizationError
	_, err = env.Access.EnsureWarehouseByID(ctx, clerk, main.ID, access.PermSale|access.PermStockOut)
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, access.CodeActionDenied, authErr.Code)

	_, err = env.Access.EnsureWarehouseByID(ctx, clerk, other.ID, access.PermView)
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, access.CodeScopeDenied, authErr.Code)

	_, err = env.Access.EnsureWarehouseByID(ctx, clerk, 4040, access.PermView)
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, access.CodeScopeDenied, authErr.Code)

	_, err = env.Warehouses.Deactivate(ctx, other.ID)
	require.NoError(t, err)
	_, err = env.Access.EnsureWarehouseByID(ctx, env.Admin, other.ID, access.PermView)
	require.ErrorAs(t, err, &authErr, "inactive warehouses deny even superusers")

	assert.True(t, env.Access.CanAccessWarehouse(ctx, env.Admin, &main, access.AllPermissions))
}

func TestDocumentAccessUsesScopeCode(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	main := env.Warehouse(t, "MAIN", true)
	clerk := env.User(t, "clerk")
	env.Grant(t, clerk, main.ID, true, access.PermView)

	var authErr *access.AuthorizationError
	err := env.Access.EnsureSaleAccess(ctx, clerk, bound{id: &main.ID})
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, access.CodeScopeDenied, authErr.Code)

	err = env.Access.EnsureInventoryCheckAccess(ctx, env.Admin, bound{})
	require.ErrorAs(t, err, &authErr, "documents without a warehouse are out of scope")

	require.NoError(t, env.Access.EnsureSaleAccess(ctx, env.Admin, bound{id: &main.ID}))
}

func TestDefaultWarehouse(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	main := env.Warehouse(t, "MAIN", true)
	east := env.Warehouse(t, "EAST", false)
	west := env.Warehouse(t, "WEST", false)

	def, err := env.Access.DefaultWarehouse(ctx, env.Admin)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, main.ID, def.ID)

	clerk := env.User(t, "clerk")
	env.Grant(t, clerk, west.ID, false)
	env.Grant(t, clerk, east.ID, false)
	def, err = env.Access.DefaultWarehouse(ctx, clerk)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, east.ID, def.ID, "first accessible by name without a default grant")

	env.Grant(t, clerk, west.ID, true)
	def, err = env.Access.DefaultWarehouse(ctx, clerk)
	require.NoError(t, err)
	assert.Equal(t, west.ID, def.ID)

	stranger := env.User(t, "stranger")
	def, err = env.Access.DefaultWarehouse(ctx, stranger)
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestResolveSelection(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	main := env.Warehouse(t, "MAIN", true)
	east := env.Warehouse(t, "EAST", false)
	other := env.Warehouse(t, "OTHER", false)
	clerk := env.User(t, "clerk")
	env.Grant(t, clerk, main.ID, true)
	env.Grant(t, clerk, east.ID, false)

	sel, err := env.Access.ResolveSelection(ctx, clerk, "", true, access.PermView)
	require.NoError(t, err)
	assert.Equal(t, access.SelectionAll, sel.SelectedValue)
	assert.True(t, sel.Scope.Allows(main.ID))
	assert.True(t, sel.Scope.Allows(east.ID))
	assert.False(t, sel.Scope.Allows(other.ID))

	sel, err = env.Access.ResolveSelection(ctx, clerk, "  "+itoa(east.ID), true, access.PermView)
	require.NoError(t, err)
	require.NotNil(t, sel.Selected)
	assert.Equal(t, east.ID, sel.Selected.ID)
	assert.False(t, sel.Scope.Allows(main.ID))

	sel, err = env.Access.ResolveSelection(ctx, clerk, itoa(other.ID), true, access.PermView)
	require.NoError(t, err)
	assert.Nil(t, sel.Selected)
	assert.False(t, sel.Scope.Allows(other.ID))

	sel, err = env.Access.ResolveSelection(ctx, clerk, "junk", false, access.PermView)
	require.NoError(t, err)
	require.NotNil(t, sel.Selected)
	assert.Equal(t, main.ID, sel.Selected.ID)

	sel, err = env.Access.ResolveSelection(ctx, env.Admin, "", true, access.PermView)
	require.NoError(t, err)
	assert.True(t, sel.Scope.IsUnrestricted())

	stranger := env.User(t, "stranger")
	sel, err = env.Access.ResolveSelection(ctx, stranger, "", false, access.PermView)
	require.NoError(t, err)
	assert.True(t, sel.Scope.IsDenied())
}

func TestScopeFor(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	main := env.Warehouse(t, "MAIN", true)
	clerk := env.User(t, "clerk")
	env.Grant(t, clerk, main.ID, true, access.PermView)

	scope, err := env.Access.ScopeFor(ctx, clerk, access.PermReportView)
	require.NoError(t, err)
	assert.True(t, scope.IsDenied())

	scope, err = env.Access.ScopeFor(ctx, clerk, access.PermView)
	require.NoError(t, err)
	assert.Equal(t, []int64{main.ID}, scope.IDs())

	require.Error(t, env.Access.EnsureAnyWarehousePermission(ctx, clerk, access.PermSale))
	require.NoError(t, env.Access.EnsureAnyWarehousePermission(ctx, clerk, access.PermView))
}

func TestUpsertGrantValidation(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	main := env.Warehouse(t, "MAIN", true)
	clerk := env.User(t, "clerk")

	_, err := env.Access.UpsertGrant(ctx, access.GrantInput{UserID: clerk.ID, WarehouseID: 999})
	require.ErrorIs(t, err, access.ErrWarehouseMissing)

	_, err = env.Access.UpsertGrant(ctx, access.GrantInput{UserID: clerk.ID, WarehouseID: main.ID, Permissions: []string{"TELEPORT"}})
	require.ErrorIs(t, err, access.ErrUnknownPermission)

	inactive := false
	g, err := env.Access.UpsertGrant(ctx, access.GrantInput{UserID: clerk.ID, WarehouseID: main.ID, IsActive: &inactive, IsDefault: true})
	require.NoError(t, err)
	assert.False(t, g.IsDefault, "inactive grants are never default")
	assert.Equal(t, access.DefaultGrantPermissions, g.Permissions)

	list, err := env.Access.AccessibleWarehouses(ctx, clerk, access.PermNone)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGrantCacheInvalidatesOnUpsert(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := access.NewCache(client, time.Minute)
	env := fixture.New(t, fixture.WithCache(cache))
	ctx := context.Background()
	main := env.Warehouse(t, "MAIN", true)
	east := env.Warehouse(t, "EAST", false)
	clerk := env.User(t, "clerk")
	env.Grant(t, clerk, main.ID, true)

	list, err := env.Access.AccessibleWarehouses(ctx, clerk, access.PermNone)
	require.NoError(t, err)
	assert.Equal(t, []int64{main.ID}, ids(list))
	assert.NotEmpty(t, mr.Keys())

	env.Grant(t, clerk, east.ID, false)
	list, err = env.Access.AccessibleWarehouses(ctx, clerk, access.PermNone)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{main.ID, east.ID}, ids(list))

	ver, err := client.Get(ctx, "access:grants:version").Int64()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ver, int64(2))
}

func TestGrantCacheFallsBackWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := access.NewCache(client, time.Minute)

	calls := 0
	load := func(context.Context) ([]access.Grant, error) {
		calls++
		return []access.Grant{{UserID: 1, WarehouseID: 2, IsActive: true}}, nil
	}
	ctx := context.Background()
	_, err := cache.Grants(ctx, 1, load)
	require.NoError(t, err)
	_, err = cache.Grants(ctx, 1, load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	mr.Close()
	grants, err := cache.Grants(ctx, 1, load)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
	assert.Equal(t, 2, calls)

	var nilCache *access.Cache
	_, err = nilCache.Grants(ctx, 1, load)
	require.NoError(t, err)
	assert.NoError(t, nilCache.Bump(ctx))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
