package stockcheck

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Summarize aggregates the items of a check. costs maps product id to unit
// cost; unknown products count as zero value.
func Summarize(checkID int64, items []Item, costs map[int64]decimal.Decimal) Summary {
	out := Summary{CheckID: checkID, TotalItems: len(items)}
	for _, it := range items {
		cost := costs[it.ProductID]
		out.SystemValue = out.SystemValue.Add(cost.Mul(decimal.NewFromInt(it.SystemQuantity)))
		if !it.Recorded() {
			out.PendingItems++
			// Uncounted items are valued at the system quantity.
			out.ActualValue = out.ActualValue.Add(cost.Mul(decimal.NewFromInt(it.SystemQuantity)))
			continue
		}
		out.CheckedItems++
		out.ActualValue = out.ActualValue.Add(cost.Mul(decimal.NewFromInt(*it.ActualQuantity)))
		if it.Difference != nil && *it.Difference != 0 {
			out.DiscrepantItems++
		}
	}
	out.SystemValue = out.SystemValue.Round(2)
	out.ActualValue = out.ActualValue.Round(2)
	out.ValueDifference = out.ActualValue.Sub(out.SystemValue)
	return out
}

// Adjustments returns the recorded items with a nonzero difference, ordered
// by product so stock rows are locked in a stable order.
func Adjustments(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Difference != nil && *it.Difference != 0 {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
