package sales_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/testing/fixture"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

func TestCompletedSaleRoundTrip(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	p := env.Product(t, "SKU-1", "10.00")
	env.Stock(t, p.ID, wh.ID, 10)

	sale, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{
		WarehouseID:    wh.ID,
		Items:          []sales.ItemInput{{ProductID: p.ID, Quantity: 3}},
		DiscountAmount: dec("2.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, sales.StatusCompleted, sale.Status)
	assertMoney(t, "30.00", sale.TotalAmount)
	assertMoney(t, "27.50", sale.FinalAmount)
	require.NotNil(t, sale.CompletedAt)
	require.Len(t, sale.Items, 1)
	assert.True(t, sale.Items[0].StockCommitted)
	assert.Equal(t, int64(7), env.Quantity(t, p.ID, wh.ID))

	res, err := env.Sales.Delete(ctx, env.Admin, sale.ID, "customer returned")
	require.NoError(t, err)
	assert.False(t, res.AlreadyDeleted)
	assert.Equal(t, sales.StatusDeleted, res.Sale.Status)
	assert.True(t, res.Sale.TotalAmount.IsZero())
	assert.True(t, res.Sale.FinalAmount.IsZero())
	assert.Contains(t, res.Sale.Remark, "deleted: customer returned")
	assert.Equal(t, int64(10), env.Quantity(t, p.ID, wh.ID))

	again, err := env.Sales.Delete(ctx, env.Admin, sale.ID, "")
	require.NoError(t, err)
	assert.True(t, again.AlreadyDeleted)
	assert.Equal(t, int64(10), env.Quantity(t, p.ID, wh.ID))
	assert.Equal(t, env.Quantity(t, p.ID, wh.ID), env.LedgerSum(p.ID, wh.ID))

	var sources []string
	for _, txn := range env.Store.Transactions() {
		sources = append(sources, txn.Metadata.Source)
		if txn.Metadata.DocumentType == inventory.DocumentSale {
			assert.Equal(t, sale.ID, txn.Metadata.DocumentID)
		}
	}
	assert.Equal(t, []string{inventory.SourceManualStockIn, inventory.SourceSaleCreate, inventory.SourceSaleDelete}, sources)

	var saleLogs int
	for _, l := range env.Store.OperationLogs() {
		if l.OperationType == shared.OperationSale {
			saleLogs++
			assert.Equal(t, "sale", l.RelatedType)
			assert.Equal(t, sale.ID, l.RelatedID)
		}
	}
	assert.Equal(t, 2, saleLogs)
}

func TestCreateRollsBackOnInsufficientStock(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	a := env.Product(t, "SKU-A", "5.00")
	b := env.Product(t, "SKU-B", "7.00")
	env.Stock(t, a.ID, wh.ID, 10)
	env.Stock(t, b.ID, wh.ID, 1)

	in := sales.CreateInput{
		WarehouseID:    wh.ID,
		Items:          []sales.ItemInput{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 2}},
		IdempotencyKey: "till-1-0001",
	}
	_, err := env.Sales.Create(ctx, env.Admin, in)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	assert.Equal(t, int64(10), env.Quantity(t, a.ID, wh.ID))
	assert.Equal(t, int64(1), env.Quantity(t, b.ID, wh.ID))
	page, err := env.Sales.List(ctx, env.Admin, sales.ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	// The key was released, so the retry after restocking goes through.
	env.Stock(t, b.ID, wh.ID, 5)
	sale, err := env.Sales.Create(ctx, env.Admin, in)
	require.NoError(t, err)
	assertMoney(t, "24.00", sale.TotalAmount)

	_, err = env.Sales.Create(ctx, env.Admin, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Equal(t, int64(4), env.Quantity(t, b.ID, wh.ID))
}

func TestCreateValidation(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	p := env.Product(t, "SKU-1", "10.00")
	item := []sales.ItemInput{{ProductID: p.ID, Quantity: 1}}

	cases := []struct {
		name string
		in   sales.CreateInput
		want error
	}{
		{"no items", sales.CreateInput{WarehouseID: wh.ID}, sales.ErrNoItems},
		{"bad status", sales.CreateInput{WarehouseID: wh.ID, Status: sales.StatusDeleted, Items: item}, sales.ErrInvalidStatus},
		{"bad payment", sales.CreateInput{WarehouseID: wh.ID, PaymentMethod: "barter", Items: item}, sales.ErrInvalidPayment},
		{"negative discount", sales.CreateInput{WarehouseID: wh.ID, DiscountAmount: dec("-1"), Items: item}, sales.ErrInvalidDiscount},
		{"zero quantity", sales.CreateInput{WarehouseID: wh.ID, Items: []sales.ItemInput{{ProductID: p.ID}}}, sales.ErrInvalidItem},
		{"unknown product", sales.CreateInput{WarehouseID: wh.ID, Items: []sales.ItemInput{{ProductID: 999, Quantity: 1}}}, sales.ErrProductInactive},
		{"missing deposit", sales.CreateInput{WarehouseID: wh.ID, Status: sales.StatusUnsettled, Items: item}, sales.ErrInvalidDeposit},
		{"deposit over total", sales.CreateInput{WarehouseID: wh.ID, Status: sales.StatusUnsettled, DepositAmount: dec("10.01"), Items: item}, sales.ErrInvalidDeposit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Sales.Create(ctx, env.Admin, tc.in)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	_, err := env.Sales.Create(ctx, nil, sales.CreateInput{Items: item})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestDiscountIsClampedToTotal(t *testing.T) {
	env := fixture.New(t)
	wh := env.Warehouse(t, "MAIN", true)
	p := env.Product(t, "SKU-1", "4.00")
	env.Stock(t, p.ID, wh.ID, 5)

	sale, err := env.Sales.Create(context.Background(), env.Admin, sales.CreateInput{
		Items:          []sales.ItemInput{{ProductID: p.ID, Quantity: 2, ActualPrice: dec("3.50"), SaleType: sales.SaleTypeWholesale}},
		DiscountAmount: dec("100"),
	})
	require.NoError(t, err)
	assertMoney(t, "7.00", sale.TotalAmount)
	assertMoney(t, "7.00", sale.DiscountAmount)
	assert.True(t, sale.FinalAmount.IsZero())
	assertMoney(t, "4.00", sale.Items[0].Price)
	assertMoney(t, "3.50", sale.Items[0].ActualPrice)
	assert.Equal(t, wh.ID, *sale.WarehouseID, "no warehouse requested falls back to the default")
}

func TestUnsettledSaleLifecycle(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	a := env.Product(t, "SKU-A", "10.00")
	b := env.Product(t, "SKU-B", "5.00")
	env.Stock(t, a.ID, wh.ID, 4)
	env.Stock(t, b.ID, wh.ID, 4)

	sale, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{
		WarehouseID:   wh.ID,
		Status:        sales.StatusUnsettled,
		Items:         []sales.ItemInput{{ProductID: a.ID, Quantity: 2}},
		DepositAmount: dec("5"),
	})
	require.NoError(t, err)
	assert.Equal(t, sales.StatusUnsettled, sale.Status)
	assertMoney(t, "5.00", sale.FinalAmount)
	assert.False(t, sale.Items[0].StockCommitted)
	assert.Equal(t, int64(4), env.Quantity(t, a.ID, wh.ID), "deposits do not move stock")

	sale, err = env.Sales.AddItem(ctx, env.Admin, sale.ID, sales.ItemInput{ProductID: b.ID, Quantity: 1})
	require.NoError(t, err)
	assertMoney(t, "25.00", sale.TotalAmount)
	require.Len(t, sale.Items, 2)

	var lineA int64
	for _, it := range sale.Items {
		if it.ProductID == a.ID {
			lineA = it.ID
		}
	}
	sale, err = env.Sales.RemoveItem(ctx, env.Admin, sale.ID, lineA)
	require.NoError(t, err)
	assertMoney(t, "5.00", sale.TotalAmount)

	_, err = env.Sales.RemoveItem(ctx, env.Admin, sale.ID, sale.Items[0].ID)
	require.ErrorIs(t, err, sales.ErrInvalidDeposit, "removing the last line would leave the deposit uncovered")

	_, err = env.Sales.RemoveItem(ctx, env.Admin, sale.ID, 9999)
	require.ErrorIs(t, err, sales.ErrItemNotFound)

	discount := dec("1")
	sale, err = env.Sales.Complete(ctx, env.Admin, sale.ID, sales.CompleteInput{DiscountAmount: &discount, PaymentMethod: sales.PaymentCard})
	require.NoError(t, err)
	assert.Equal(t, sales.StatusCompleted, sale.Status)
	assert.Equal(t, sales.PaymentCard, sale.PaymentMethod)
	assertMoney(t, "4.00", sale.FinalAmount)
	assert.Equal(t, int64(3), env.Quantity(t, b.ID, wh.ID))
	assert.Equal(t, int64(4), env.Quantity(t, a.ID, wh.ID))

	_, err = env.Sales.Complete(ctx, env.Admin, sale.ID, sales.CompleteInput{})
	require.ErrorIs(t, err, sales.ErrAlreadyCompleted)
	_, err = env.Sales.AddItem(ctx, env.Admin, sale.ID, sales.ItemInput{ProductID: a.ID, Quantity: 1})
	require.ErrorIs(t, err, sales.ErrInvalidTransition)
	assert.Equal(t, int64(3), env.LedgerSum(b.ID, wh.ID))
}

func TestCompleteFailsWholeSaleOnShortLine(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	a := env.Product(t, "SKU-A", "10.00")
	b := env.Product(t, "SKU-B", "5.00")
	env.Stock(t, a.ID, wh.ID, 5)

	sale, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{
		Status:        sales.StatusUnsettled,
		Items:         []sales.ItemInput{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}},
		DepositAmount: dec("1"),
	})
	require.NoError(t, err)

	_, err = env.Sales.Complete(ctx, env.Admin, sale.ID, sales.CompleteInput{})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, int64(5), env.Quantity(t, a.ID, wh.ID))

	got, err := env.Sales.Get(ctx, env.Admin, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.StatusUnsettled, got.Status)
	for _, it := range got.Items {
		assert.False(t, it.StockCommitted)
	}
}

func TestAbandonKeepsDeposit(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	p := env.Product(t, "SKU-1", "10.00")
	env.Stock(t, p.ID, wh.ID, 3)

	sale, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{
		Status:        sales.StatusUnsettled,
		Items:         []sales.ItemInput{{ProductID: p.ID, Quantity: 1}},
		DepositAmount: dec("4"),
	})
	require.NoError(t, err)

	abandoned, err := env.Sales.Abandon(ctx, env.Admin, sale.ID, "no show")
	require.NoError(t, err)
	assert.Equal(t, sales.StatusAbandoned, abandoned.Status)
	assertMoney(t, "4.00", abandoned.DepositAmount)

	again, err := env.Sales.Abandon(ctx, env.Admin, sale.ID, "")
	require.NoError(t, err)
	assert.Equal(t, sales.StatusAbandoned, again.Status)

	_, err = env.Sales.Complete(ctx, env.Admin, sale.ID, sales.CompleteInput{})
	require.ErrorIs(t, err, sales.ErrInvalidTransition)
	_, err = env.Sales.Delete(ctx, env.Admin, sale.ID, "")
	require.ErrorIs(t, err, sales.ErrInvalidTransition)
	assert.Equal(t, int64(3), env.Quantity(t, p.ID, wh.ID))
}

func TestSaleRefusesUnauthorizedRequestedWarehouse(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	main := env.Warehouse(t, "MAIN", true)
	shop := env.Warehouse(t, "SHOP", false)
	p := env.Product(t, "SKU-1", "10.00")
	env.Stock(t, p.ID, main.ID, 5)
	env.Stock(t, p.ID, shop.ID, 5)
	clerk := env.User(t, "clerk")
	env.Grant(t, clerk, shop.ID, true)

	for _, requested := range []int64{main.ID, 9999} {
		_, err := env.Sales.Create(ctx, clerk, sales.CreateInput{
			WarehouseID: requested,
			Items:       []sales.ItemInput{{ProductID: p.ID, Quantity: 2}},
		})
		var authErr *access.AuthorizationError
		require.ErrorAs(t, err, &authErr, "warehouse %d", requested)
		assert.Equal(t, access.CodeScopeDenied, authErr.Code)
	}
	assert.Equal(t, int64(5), env.Quantity(t, p.ID, main.ID))
	assert.Equal(t, int64(5), env.Quantity(t, p.ID, shop.ID))
	assert.Equal(t, int64(5), env.LedgerSum(p.ID, main.ID))

	// An invalid body is still refused on authorization first.
	_, err := env.Sales.Create(ctx, clerk, sales.CreateInput{WarehouseID: main.ID})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestSaleWarehouseFallback(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	env.Warehouse(t, "MAIN", true)
	shop := env.Warehouse(t, "SHOP", false)
	p := env.Product(t, "SKU-1", "10.00")
	env.Stock(t, p.ID, shop.ID, 2)
	clerk := env.User(t, "clerk")
	env.Grant(t, clerk, shop.ID, false)

	sale, err := env.Sales.Create(ctx, clerk, sales.CreateInput{
		Items: []sales.ItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, shop.ID, *sale.WarehouseID)
	assert.Equal(t, int64(1), env.Quantity(t, p.ID, shop.ID))

	viewer := env.User(t, "viewer")
	env.Grant(t, viewer, shop.ID, true, access.PermView)
	_, err = env.Sales.Create(ctx, viewer, sales.CreateInput{Items: []sales.ItemInput{{ProductID: p.ID, Quantity: 1}}})
	var authErr *access.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, access.CodeActionDenied, authErr.Code)

	_, err = env.Sales.Get(ctx, viewer, sale.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestLegacySaleWithoutWarehouseIsOutOfScope(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	env.Warehouse(t, "MAIN", true)

	var legacy sales.Sale
	err := env.Store.Sales().WithTx(ctx, func(ctx context.Context, tx sales.TxRepository) error {
		var err error
		legacy, err = tx.InsertSale(ctx, sales.Sale{Status: sales.StatusCompleted, OperatorID: env.Admin.ID, PaymentMethod: sales.PaymentCash})
		return err
	})
	require.NoError(t, err)

	_, err = env.Sales.Delete(ctx, env.Admin, legacy.ID, "")
	var authErr *access.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, access.CodeScopeDenied, authErr.Code)

	_, err = env.Sales.Get(ctx, env.Admin, 4040)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentSalesLockInProductOrder(t *testing.T) {
	env := fixture.New(t)
	wh := env.Warehouse(t, "MAIN", true)
	a := env.Product(t, "SKU-A", "1.00")
	b := env.Product(t, "SKU-B", "1.00")
	env.Stock(t, a.ID, wh.ID, 6)
	env.Stock(t, b.ID, wh.ID, 6)

	var (
		wg  sync.WaitGroup
		ok  atomic.Int64
		bad atomic.Int64
	)
	for i := 0; i < 12; i++ {
		items := []sales.ItemInput{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}}
		if i%2 == 1 {
			items[0], items[1] = items[1], items[0]
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Sales.Create(context.Background(), env.Admin, sales.CreateInput{WarehouseID: wh.ID, Items: items})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, inventory.ErrInsufficientStock):
				bad.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(6), ok.Load())
	assert.Equal(t, int64(6), bad.Load())
	assert.Zero(t, env.Quantity(t, a.ID, wh.ID))
	assert.Zero(t, env.Quantity(t, b.ID, wh.ID))
	assert.Zero(t, env.LedgerSum(a.ID, wh.ID))
	assert.Zero(t, env.LedgerSum(b.ID, wh.ID))
}

func TestSummary(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	p := env.Product(t, "SKU-1", "10.00")
	env.Stock(t, p.ID, wh.ID, 20)

	_, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{
		Items:          []sales.ItemInput{{ProductID: p.ID, Quantity: 2}, {ProductID: p.ID, Quantity: 1, ActualPrice: dec("8"), SaleType: sales.SaleTypeWholesale}},
		DiscountAmount: dec("3"),
	})
	require.NoError(t, err)
	deleted, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{Items: []sales.ItemInput{{ProductID: p.ID, Quantity: 5}}})
	require.NoError(t, err)
	_, err = env.Sales.Delete(ctx, env.Admin, deleted.ID, "")
	require.NoError(t, err)
	pending, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{
		Status: sales.StatusUnsettled, Items: []sales.ItemInput{{ProductID: p.ID, Quantity: 1}}, DepositAmount: dec("2.5"),
	})
	require.NoError(t, err)
	_, err = env.Sales.Abandon(ctx, env.Admin, pending.ID, "")
	require.NoError(t, err)

	sum, err := env.Sales.Summary(ctx, env.Admin, sales.SummaryFilter{})
	require.NoError(t, err)
	assertMoney(t, "20.00", sum.RevenueByType[sales.SaleTypeRetail])
	assertMoney(t, "8.00", sum.RevenueByType[sales.SaleTypeWholesale])
	assertMoney(t, "28.00", sum.GrossRevenue)
	assertMoney(t, "3.00", sum.Discount)
	assertMoney(t, "25.00", sum.NetRevenue)
	assertMoney(t, "2.50", sum.ForfeitedDeposits)
	assert.Equal(t, 1, sum.Counts[sales.StatusCompleted])
	assert.Equal(t, 1, sum.Counts[sales.StatusDeleted])
	assert.Equal(t, 1, sum.Counts[sales.StatusAbandoned])
	assert.False(t, sum.Degraded)

	clerk := env.User(t, "clerk")
	env.Grant(t, clerk, wh.ID, true)
	_, err = env.Sales.Summary(ctx, clerk, sales.SummaryFilter{})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

// countsDown keeps the revenue and totals but loses the status counts.
type countsDown struct {
	sales.Repository
}

func (r countsDown) SummaryFacts(ctx context.Context, scope access.Scope, filter sales.SummaryFilter) (sales.SummaryFacts, error) {
	facts, err := r.Repository.SummaryFacts(ctx, scope, filter)
	if err != nil {
		return facts, err
	}
	facts.Counts = map[sales.Status]int{}
	return facts, errors.New("sales summary counts: connection reset")
}

func TestSummaryKeepsSucceededPartsWhenDegraded(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	p := env.Product(t, "SKU-1", "10.00")
	env.Stock(t, p.ID, wh.ID, 5)
	_, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{
		Items:          []sales.ItemInput{{ProductID: p.ID, Quantity: 2}},
		DiscountAmount: dec("1"),
	})
	require.NoError(t, err)

	svc := sales.NewService(countsDown{env.Store.Sales()}, env.Inventory, env.Access, env.Products, nil, env.Logger)
	sum, err := svc.Summary(ctx, env.Admin, sales.SummaryFilter{})
	require.NoError(t, err)
	assert.True(t, sum.Degraded)
	assertMoney(t, "20.00", sum.GrossRevenue)
	assertMoney(t, "19.00", sum.NetRevenue)
	assert.Empty(t, sum.Counts)
}

func TestListHidesDeletedByDefault(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	p := env.Product(t, "SKU-1", "10.00")
	env.Stock(t, p.ID, wh.ID, 5)

	keep, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{Items: []sales.ItemInput{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	gone, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{Items: []sales.ItemInput{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	_, err = env.Sales.Delete(ctx, env.Admin, gone.ID, "")
	require.NoError(t, err)

	page, err := env.Sales.List(ctx, env.Admin, sales.ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, keep.ID, page.Items[0].ID)

	page, err = env.Sales.List(ctx, env.Admin, sales.ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	_, err = env.Sales.List(ctx, env.Admin, sales.ListFilter{Status: "PAID"})
	require.ErrorIs(t, err, sales.ErrInvalidStatus)
}

type transitionLog struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *transitionLog) ObserveSaleTransition(status string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	l.counts[status]++
}

func TestTransitionsAreRecordedOncePerChange(t *testing.T) {
	env := fixture.New(t)
	log := &transitionLog{}
	env.Sales.WithRecorder(log)
	ctx := context.Background()
	wh := env.Warehouse(t, "MAIN", true)
	p := env.Product(t, "SKU-1", "10.00")
	env.Stock(t, p.ID, wh.ID, 5)

	open, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{
		Status:        sales.StatusUnsettled,
		Items:         []sales.ItemInput{{ProductID: p.ID, Quantity: 1}},
		DepositAmount: dec("2"),
	})
	require.NoError(t, err)
	_, err = env.Sales.Abandon(ctx, env.Admin, open.ID, "")
	require.NoError(t, err)
	_, err = env.Sales.Abandon(ctx, env.Admin, open.ID, "")
	require.NoError(t, err)

	done, err := env.Sales.Create(ctx, env.Admin, sales.CreateInput{
		Status: sales.StatusCompleted,
		Items:  []sales.ItemInput{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	_, err = env.Sales.Delete(ctx, env.Admin, done.ID, "")
	require.NoError(t, err)
	_, err = env.Sales.Delete(ctx, env.Admin, done.ID, "")
	require.NoError(t, err)

	_, err = env.Sales.Complete(ctx, env.Admin, done.ID, sales.CompleteInput{})
	require.Error(t, err)

	assert.Equal(t, map[string]int{
		"UNSETTLED": 1,
		"ABANDONED": 1,
		"COMPLETED": 1,
		"DELETED":   1,
	}, log.counts)
}
