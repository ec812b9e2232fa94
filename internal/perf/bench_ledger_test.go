package perf

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/testing/fixture"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

func TestStockOutContentionLatency(t *testing.T) {
	env := fixture.New(t)
	wh := env.Warehouse(t, "PERF", true)
	p := env.Product(t, "PERF-1", "1000")
	env.Stock(t, p.ID, wh.ID, 150)

	const workers = 200
	var (
		mu        sync.Mutex
		samples   = make([]time.Duration, 0, workers)
		succeeded int
		short     int
		wg        sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			_, err := env.Inventory.StockOut(context.Background(), env.Admin, inventory.MovementInput{
				ProductID:   p.ID,
				WarehouseID: wh.ID,
				Quantity:    1,
			})
			elapsed := time.Since(start)
			mu.Lock()
			defer mu.Unlock()
			samples = append(samples, elapsed)
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, inventory.ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected stock out error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 150, succeeded)
	require.Equal(t, workers-150, short)
	require.Zero(t, env.Quantity(t, p.ID, wh.ID))
	require.Zero(t, env.LedgerSum(p.ID, wh.ID))

	if p95 := percentile95(samples); p95 > 250*time.Millisecond {
		t.Fatalf("stock out latency regression: p95=%s", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
