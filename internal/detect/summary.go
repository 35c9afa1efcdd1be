package detect

import (
	"sort"

	"github.com/shopspring/decimal"

	"ricorrenti/internal/core"
)

type groupKey struct {
	vendor string
	amount string
}

type groupAcc struct {
	vendor string
	amount decimal.Decimal
	dates  []core.Date
}

// Summarize aggregates enriched transactions by (vendor key, bucket amount),
// drops groups with fewer than minCount occurrences and attaches the cadence.
// Rows are ordered by count descending, then vendor key and amount ascending.
func Summarize(txs []core.EnrichedTransaction, minCount int) []core.RecurringGroup {
	accs := make(map[groupKey]*groupAcc)
	for _, tx := range txs {
		k := groupKey{vendor: tx.VendorKey, amount: tx.BucketAmount.String()}
		acc, ok := accs[k]
		if !ok {
			acc = &groupAcc{vendor: tx.VendorKey, amount: tx.BucketAmount}
			accs[k] = acc
		}
		acc.dates = append(acc.dates, tx.Date)
	}

	groups := make([]core.RecurringGroup, 0, len(accs))
	for _, acc := range accs {
		if len(acc.dates) < minCount {
			continue
		}
		sort.Slice(acc.dates, func(i, j int) bool { return acc.dates[i].Before(acc.dates[j].Time) })
		groups = append(groups, core.RecurringGroup{
			VendorKey: acc.vendor,
			Amount:    acc.amount,
			Count:     len(acc.dates),
			FirstDate: acc.dates[0],
			LastDate:  acc.dates[len(acc.dates)-1],
			Cadence:   DetectPeriodicity(acc.dates),
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.VendorKey != b.VendorKey {
			return a.VendorKey < b.VendorKey
		}
		return a.Amount.LessThan(b.Amount)
	})
	return groups
}
