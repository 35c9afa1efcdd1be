package ledger

import (
	"strconv"

	"ricorrenti/internal/core"
)

// Column names of the two report tables.
var (
	SummaryHeader = []string{
		"vendor_group", "amount_grouped", "count", "first_date", "last_date", "median_freq_days", "pattern",
	}
	groupedColumns = []string{"vendor_group", "amount_grouped"}
)

// SummaryRow renders one recurring group. Cadence cells are empty when the
// group has no cadence.
func SummaryRow(g core.RecurringGroup) []string {
	median, pattern := "", ""
	if g.Cadence != nil {
		median = strconv.Itoa(g.Cadence.MedianGapDays)
		pattern = string(g.Cadence.Pattern)
	}
	return []string{
		g.VendorKey,
		g.Amount.String(),
		strconv.Itoa(g.Count),
		g.FirstDate.String(),
		g.LastDate.String(),
		median,
		pattern,
	}
}

// TransactionsHeader is the input column set followed by the grouping columns.
func TransactionsHeader(cols Columns) []string {
	return append([]string{cols.Date, cols.Description, cols.Amount}, groupedColumns...)
}

func TransactionRow(tx core.EnrichedTransaction) []string {
	return []string{
		tx.Date.String(),
		tx.Description,
		tx.Amount.String(),
		tx.VendorKey,
		tx.BucketAmount.String(),
	}
}
