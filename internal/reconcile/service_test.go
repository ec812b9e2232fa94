package reconcile_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/reconcile"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/store/memory"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

type fakeSource struct {
	mu     sync.Mutex
	counts map[reconcile.Category]int
	fail   reconcile.Category
	limits []int
}

func (f *fakeSource) Scan(_ context.Context, c reconcile.Category, limit int) (int, []reconcile.Finding, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if c == f.fail {
		return 0, nil, errors.New("boom")
	}
	n := f.counts[c]
	samples := make([]reconcile.Finding, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, reconcile.Finding{ProductID: int64(i + 1)})
	}
	return n, samples, nil
}

func TestRunClassifiesAndSamples(t *testing.T) {
	src := &fakeSource{counts: map[reconcile.Category]int{
		reconcile.QuantityMismatch:     3,
		reconcile.MissingStockRow:      1,
		reconcile.SaleWithoutWarehouse: 2,
	}}
	report, err := reconcile.NewService(src, nil).Run(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Summary.Total)
	assert.Equal(t, 3, report.Classification[reconcile.GroupManualReview][reconcile.QuantityMismatch])
	assert.Equal(t, 1, report.Classification[reconcile.GroupAutoFix][reconcile.MissingStockRow])
	assert.Equal(t, 2, report.Classification[reconcile.GroupLegacyGaps][reconcile.SaleWithoutWarehouse])
	assert.Len(t, report.Samples[reconcile.QuantityMismatch], 2)
	assert.Equal(t, "manual_reconcile_quantity", report.Samples[reconcile.QuantityMismatch][0].SuggestedAction)
	assert.True(t, report.RequiresManualReview)
	assert.Equal(t, 3, report.CriticalCount())
	assert.Len(t, report.Summary.Counts, len(reconcile.Categories))
}

func TestRunSampleSizeBounds(t *testing.T) {
	src := &fakeSource{}
	report, err := reconcile.NewService(src, nil).Run(context.Background(), -5)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SampleSize)
	assert.False(t, report.RequiresManualReview)

	report, err = reconcile.NewService(src, nil).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, reconcile.DefaultSampleSize, report.SampleSize)
}

func TestRunPropagatesSourceError(t *testing.T) {
	src := &fakeSource{fail: reconcile.NegativeQuantity}
	_, err := reconcile.NewService(src, nil).Run(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative_quantity")
}

func TestRunWithoutSource(t *testing.T) {
	_, err := reconcile.NewService(nil, nil).Run(context.Background(), 5)
	require.ErrorIs(t, err, reconcile.ErrNoSource)
}

func TestRunAgainstMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	wh, err := store.Warehouses().Create(ctx, warehouses.Warehouse{Name: "Main", Code: "MAIN", IsActive: true})
	require.NoError(t, err)
	tracked, err := store.Products().Create(ctx, products.Product{SKU: "A", Name: "Tracked", IsActive: true})
	require.NoError(t, err)
	untracked, err := store.Products().Create(ctx, products.Product{SKU: "B", Name: "Untracked", IsActive: true})
	require.NoError(t, err)

	whID := wh.ID
	err = store.Inventory().WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		row, err := tx.CreateStock(ctx, tracked.ID, wh.ID, 0)
		if err != nil {
			return err
		}
		// Quantity drifts from the ledger: 5 recorded, 4 posted.
		if _, err := tx.UpdateStockQuantity(ctx, row.ID, 5); err != nil {
			return err
		}
		if _, err := tx.InsertTransaction(ctx, inventory.Transaction{ProductID: tracked.ID, WarehouseID: &whID, Type: inventory.TransactionTypeIn, Quantity: 4, Direction: 1, OperatorID: 1}); err != nil {
			return err
		}
		// Ledger rows for a pair with no stock row.
		other := whID + 100
		if _, err := tx.InsertTransaction(ctx, inventory.Transaction{ProductID: untracked.ID, WarehouseID: &other, Type: inventory.TransactionTypeIn, Quantity: 2, Direction: 1, OperatorID: 1}); err != nil {
			return err
		}
		_, err = tx.InsertTransaction(ctx, inventory.Transaction{ProductID: tracked.ID, Type: inventory.TransactionTypeIn, Quantity: 1, Direction: 1, OperatorID: 1})
		return err
	})
	require.NoError(t, err)
	err = store.Sales().WithTx(ctx, func(ctx context.Context, tx sales.TxRepository) error {
		_, err := tx.InsertSale(ctx, sales.Sale{Status: sales.StatusCompleted, OperatorID: 1})
		return err
	})
	require.NoError(t, err)

	report, err := reconcile.NewService(store.Reconcile(), nil).Run(ctx, 10)
	require.NoError(t, err)

	counts := report.Summary.Counts
	assert.Equal(t, 1, counts[reconcile.QuantityMismatch])
	assert.Equal(t, 0, counts[reconcile.NegativeQuantity])
	assert.Equal(t, 1, counts[reconcile.MissingStockRow])
	assert.Equal(t, 1, counts[reconcile.UntrackedProduct])
	assert.Equal(t, 1, counts[reconcile.SaleWithoutWarehouse])
	assert.Equal(t, 1, counts[reconcile.TransactionWithoutWarehouse])
	assert.Equal(t, 0, counts[reconcile.CheckWithoutWarehouse])

	mismatch := report.Samples[reconcile.QuantityMismatch][0]
	assert.Equal(t, int64(1), *mismatch.Difference)
	assert.Equal(t, untracked.ID, report.Samples[reconcile.UntrackedProduct][0].ProductID)
	assert.True(t, report.RequiresManualReview)
}

type recordingPutter struct {
	name string
	data []byte
}

func (r *recordingPutter) Put(_ context.Context, name, _ string, data []byte) error {
	r.name, r.data = name, data
	return nil
}

func TestSinks(t *testing.T) {
	report, err := reconcile.NewService(&fakeSource{}, nil).Run(context.Background(), 3)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "report.json")
	require.NoError(t, reconcile.WriteFile(path, report))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "classification")
	assert.Contains(t, decoded, "requires_manual_review")

	putter := &recordingPutter{}
	name, err := reconcile.Archive(context.Background(), putter, report)
	require.NoError(t, err)
	assert.Equal(t, name, putter.name)
	assert.Contains(t, name, "reconciliation/"+report.GeneratedAt.Format("2006-01-02"))

	var buf bytes.Buffer
	require.NoError(t, reconcile.Encode(&buf, report))
	assert.JSONEq(t, buf.String(), string(putter.data))
}
