package stockcheck_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/stockcheck"
	"github.com/odyssey-erp/odyssey-pos/internal/testing/fixture"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

func itemFor(t *testing.T, c *stockcheck.Check, productID int64) stockcheck.Item {
	t.Helper()
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it
		}
	}
	t.Fatalf("no item for product %d", productID)
	return stockcheck.Item{}
}

func TestCheckLifecycleWithAdjustments(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	a := env.Product(t, "SKU-A", "10.00")
	b := env.Product(t, "SKU-B", "4.00")
	c := env.Product(t, "SKU-C", "2.00")
	env.Stock(t, a.ID, wh.ID, 10)
	env.Stock(t, b.ID, wh.ID, 3)

	check, err := env.Checks.Create(ctx, env.Admin, stockcheck.CreateInput{Name: "  Month end  "})
	require.NoError(t, err)
	assert.Equal(t, "Month end", check.Name)
	assert.Equal(t, stockcheck.StatusDraft, check.Status)
	assert.Equal(t, wh.ID, *check.WarehouseID)
	require.Len(t, check.Items, 3)
	assert.Equal(t, int64(10), itemFor(t, check, a.ID).SystemQuantity)
	assert.Equal(t, int64(0), itemFor(t, check, c.ID).SystemQuantity, "products without a row count from zero")

	_, err = env.Checks.RecordItem(ctx, env.Admin, check.ID, itemFor(t, check, a.ID).ID, stockcheck.RecordInput{ActualQuantity: 8})
	require.ErrorIs(t, err, stockcheck.ErrInvalidTransition, "counting needs a started check")

	check, err = env.Checks.Start(ctx, env.Admin, check.ID)
	require.NoError(t, err)
	assert.Equal(t, stockcheck.StatusInProgress, check.Status)

	counts := map[int64]int64{a.ID: 8, b.ID: 3, c.ID: 2}
	for _, it := range check.Items {
		recorded, err := env.Checks.RecordItem(ctx, env.Admin, check.ID, it.ID, stockcheck.RecordInput{ActualQuantity: counts[it.ProductID], Notes: "shelf"})
		require.NoError(t, err)
		assert.Equal(t, counts[it.ProductID]-it.SystemQuantity, *recorded.Difference)
		assert.Equal(t, env.Admin.ID, *recorded.CheckedBy)
		assert.NotNil(t, recorded.CheckedAt)
	}

	summary, err := env.Checks.Summary(ctx, env.Admin, check.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, 3, summary.CheckedItems)
	assert.Equal(t, 2, summary.DiscrepantItems)
	// cost is half the retail price: a 5.00, b 2.00, c 1.00
	assert.Equal(t, "56.00", summary.SystemValue.StringFixed(2))
	assert.Equal(t, "48.00", summary.ActualValue.StringFixed(2))
	assert.Equal(t, "-8.00", summary.ValueDifference.StringFixed(2))

	check, err = env.Checks.Complete(ctx, env.Admin, check.ID)
	require.NoError(t, err)
	assert.Equal(t, stockcheck.StatusCompleted, check.Status)
	require.NotNil(t, check.CompletedAt)

	check, err = env.Checks.Approve(ctx, env.Admin, check.ID, true)
	require.NoError(t, err)
	assert.Equal(t, stockcheck.StatusApproved, check.Status)
	assert.Equal(t, env.Admin.ID, *check.ApprovedBy)

	assert.Equal(t, int64(8), env.Quantity(t, a.ID, wh.ID))
	assert.Equal(t, int64(3), env.Quantity(t, b.ID, wh.ID))
	assert.Equal(t, int64(2), env.Quantity(t, c.ID, wh.ID))
	for _, pid := range []int64{a.ID, b.ID, c.ID} {
		assert.Equal(t, env.Quantity(t, pid, wh.ID), env.LedgerSum(pid, wh.ID))
	}

	var adjustments []inventory.Transaction
	for _, txn := range env.Store.Transactions() {
		if txn.Metadata.Source == inventory.SourceCheckApprove {
			adjustments = append(adjustments, txn)
		}
	}
	require.Len(t, adjustments, 2)
	assert.Equal(t, a.ID, adjustments[0].ProductID)
	assert.Equal(t, int64(-2), adjustments[0].Signed())
	assert.Equal(t, int64(10), *adjustments[0].Metadata.SystemQuantity)
	assert.Equal(t, int64(8), *adjustments[0].Metadata.ActualQuantity)
	assert.Equal(t, check.ID, adjustments[0].Metadata.DocumentID)
	assert.Equal(t, int64(2), adjustments[1].Signed())

	_, err = env.Checks.Cancel(ctx, env.Admin, check.ID)
	require.ErrorIs(t, err, stockcheck.ErrInvalidTransition)
}

func TestCompleteRequiresEveryItemCounted(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	env.Warehouse(t, "MAIN", true)
	a := env.Product(t, "SKU-A", "10.00")
	env.Product(t, "SKU-B", "4.00")

	check, err := env.Checks.Create(ctx, env.Admin, stockcheck.CreateInput{Name: "Spot"})
	require.NoError(t, err)
	_, err = env.Checks.Start(ctx, env.Admin, check.ID)
	require.NoError(t, err)
	_, err = env.Checks.RecordItem(ctx, env.Admin, check.ID, itemFor(t, check, a.ID).ID, stockcheck.RecordInput{ActualQuantity: 1})
	require.NoError(t, err)

	_, err = env.Checks.Complete(ctx, env.Admin, check.ID)
	require.ErrorIs(t, err, stockcheck.ErrIncomplete)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = env.Checks.RecordItem(ctx, env.Admin, check.ID, itemFor(t, check, a.ID).ID, stockcheck.RecordInput{ActualQuantity: -1})
	require.ErrorIs(t, err, stockcheck.ErrInvalidQuantity)
	_, err = env.Checks.RecordItem(ctx, env.Admin, check.ID, 9999, stockcheck.RecordInput{ActualQuantity: 1})
	require.ErrorIs(t, err, stockcheck.ErrItemNotFound)

	_, err = env.Checks.Approve(ctx, env.Admin, check.ID, false)
	require.ErrorIs(t, err, stockcheck.ErrInvalidTransition)

	cancelled, err := env.Checks.Cancel(ctx, env.Admin, check.ID)
	require.NoError(t, err)
	assert.Equal(t, stockcheck.StatusCancelled, cancelled.Status)
}

func TestApproveWithoutAdjustLeavesStock(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	a := env.Product(t, "SKU-A", "10.00")
	env.Stock(t, a.ID, wh.ID, 5)

	check, err := env.Checks.Create(ctx, env.Admin, stockcheck.CreateInput{Name: "Blind"})
	require.NoError(t, err)
	_, err = env.Checks.Start(ctx, env.Admin, check.ID)
	require.NoError(t, err)
	_, err = env.Checks.RecordItem(ctx, env.Admin, check.ID, check.Items[0].ID, stockcheck.RecordInput{ActualQuantity: 1})
	require.NoError(t, err)
	_, err = env.Checks.Complete(ctx, env.Admin, check.ID)
	require.NoError(t, err)

	approved, err := env.Checks.Approve(ctx, env.Admin, check.ID, false)
	require.NoError(t, err)
	assert.Equal(t, stockcheck.StatusApproved, approved.Status)
	assert.Equal(t, int64(5), env.Quantity(t, a.ID, wh.ID))
}

func TestAdjustingApprovalRollsBackOnNegativeStock(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	a := env.Product(t, "SKU-A", "10.00")
	env.Stock(t, a.ID, wh.ID, 5)

	check, err := env.Checks.Create(ctx, env.Admin, stockcheck.CreateInput{Name: "Race"})
	require.NoError(t, err)
	_, err = env.Checks.Start(ctx, env.Admin, check.ID)
	require.NoError(t, err)
	_, err = env.Checks.RecordItem(ctx, env.Admin, check.ID, check.Items[0].ID, stockcheck.RecordInput{ActualQuantity: 0})
	require.NoError(t, err)
	_, err = env.Checks.Complete(ctx, env.Admin, check.ID)
	require.NoError(t, err)

	// Stock sold after the snapshot makes the -5 correction impossible.
	_, err = env.Inventory.StockOut(ctx, env.Admin, inventory.MovementInput{ProductID: a.ID, WarehouseID: wh.ID, Quantity: 2})
	require.NoError(t, err)

	_, err = env.Checks.Approve(ctx, env.Admin, check.ID, true)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	got, err := env.Checks.Get(ctx, env.Admin, check.ID)
	require.NoError(t, err)
	assert.Equal(t, stockcheck.StatusCompleted, got.Status)
	assert.Equal(t, int64(3), env.Quantity(t, a.ID, wh.ID))
}

func TestCheckPermissions(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	main := env.Warehouse(t, "MAIN", true)
	other := env.Warehouse(t, "OTHER", false)
	a := env.Product(t, "SKU-A", "10.00")
	env.Stock(t, a.ID, main.ID, 4)

	counter := env.User(t, "counter")
	env.Grant(t, counter, main.ID, true, access.PermView|access.PermInventoryCheck)

	_, err := env.Checks.Create(ctx, counter, stockcheck.CreateInput{Name: "Elsewhere", WarehouseID: other.ID})
	var authErr *access.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, access.CodeScopeDenied, authErr.Code)

	check, err := env.Checks.Create(ctx, counter, stockcheck.CreateInput{Name: "Mine"})
	require.NoError(t, err)
	assert.Equal(t, main.ID, *check.WarehouseID)
	_, err = env.Checks.Start(ctx, counter, check.ID)
	require.NoError(t, err)
	_, err = env.Checks.RecordItem(ctx, counter, check.ID, check.Items[0].ID, stockcheck.RecordInput{ActualQuantity: 3})
	require.NoError(t, err)
	_, err = env.Checks.Complete(ctx, counter, check.ID)
	require.NoError(t, err)

	_, err = env.Checks.Approve(ctx, counter, check.ID, true)
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, access.CodeActionDenied, authErr.Code)
	assert.Equal(t, int64(4), env.Quantity(t, a.ID, main.ID))

	_, err = env.Checks.Approve(ctx, counter, check.ID, false)
	require.NoError(t, err)

	seller := env.User(t, "seller")
	env.Grant(t, seller, main.ID, true)
	_, err = env.Checks.Get(ctx, seller, check.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
	page, err := env.Checks.List(ctx, seller, stockcheck.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = env.Checks.List(ctx, counter, stockcheck.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestCreateValidation(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()

	_, err := env.Checks.Create(ctx, env.Admin, stockcheck.CreateInput{Name: "No warehouse"})
	require.ErrorIs(t, err, stockcheck.ErrNoWarehouse)

	env.Warehouse(t, "MAIN", true)
	_, err = env.Checks.Create(ctx, env.Admin, stockcheck.CreateInput{Name: "Empty catalog"})
	require.ErrorIs(t, err, stockcheck.ErrNoProducts)

	_, err = env.Checks.Create(ctx, env.Admin, stockcheck.CreateInput{Name: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = env.Checks.Create(ctx, env.Admin, stockcheck.CreateInput{Name: string(make([]byte, 101))})
	require.ErrorIs(t, err, shared.ErrValidation)
}
