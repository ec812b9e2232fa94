package stockcheck

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

func counted(productID, system, actual int64) Item {
	diff := actual - system
	return Item{ProductID: productID, SystemQuantity: system, ActualQuantity: &actual, Difference: &diff}
}

func TestSummarize(t *testing.T) {
	items := []Item{
		counted(1, 10, 8),
		counted(2, 5, 5),
		{ProductID: 3, SystemQuantity: 4},
	}
	costs := map[int64]decimal.Decimal{
		1: decimal.RequireFromString("2.50"),
		2: decimal.RequireFromString("1.00"),
		3: decimal.RequireFromString("3.00"),
	}
	sum := Summarize(7, items, costs)

	assert.Equal(t, int64(7), sum.CheckID)
	assert.Equal(t, 3, sum.TotalItems)
	assert.Equal(t, 2, sum.CheckedItems)
	assert.Equal(t, 1, sum.PendingItems)
	assert.Equal(t, 1, sum.DiscrepantItems)
	assert.Equal(t, "42.00", sum.SystemValue.StringFixed(2))
	assert.Equal(t, "37.00", sum.ActualValue.StringFixed(2))
	assert.Equal(t, "-5.00", sum.ValueDifference.StringFixed(2))
}

func TestSummarizeUnknownCostIsZero(t *testing.T) {
	sum := Summarize(1, []Item{counted(9, 3, 1)}, nil)
	assert.True(t, sum.SystemValue.IsZero())
	assert.Equal(t, 1, sum.DiscrepantItems)
}

func TestAdjustmentsOrderedByProduct(t *testing.T) {
	items := []Item{
		counted(5, 1, 3),
		counted(2, 4, 4),
		{ProductID: 1, SystemQuantity: 2},
		counted(3, 6, 0),
	}
	adj := Adjustments(items)
	require.Len(t, adj, 2)
	assert.Equal(t, int64(3), adj[0].ProductID)
	assert.Equal(t, int64(-6), *adj[0].Difference)
	assert.Equal(t, int64(5), adj[1].ProductID)
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusInProgress, StatusCompleted, StatusApproved, StatusCancelled} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("closed").Valid())
}
