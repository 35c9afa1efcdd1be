package detect

import (
	"testing"

	"github.com/shopspring/decimal"

	"ricorrenti/internal/core"
)

func enriched(vendor, amount string, dates ...core.Date) []core.EnrichedTransaction {
	out := make([]core.EnrichedTransaction, 0, len(dates))
	for _, d := range dates {
		out = append(out, core.EnrichedTransaction{
			Transaction:  core.Transaction{Date: d, Description: vendor, Amount: money(amount)},
			VendorKey:    vendor,
			BucketAmount: decimal.RequireFromString(amount),
		})
	}
	return out
}

func TestSummarize_OrderAndFilter(t *testing.T) {
	var txs []core.EnrichedTransaction
	txs = append(txs, enriched("ZOOM", "14.99", datesFromGaps(30, 31)...)...)
	txs = append(txs, enriched("GYM", "40.00", datesFromGaps(30, 31, 30)...)...)
	txs = append(txs, enriched("ACME", "9.99", datesFromGaps(7, 7)...)...)
	txs = append(txs, enriched("ACME", "5.00", datesFromGaps(7, 7)...)...)
	txs = append(txs, enriched("ONCE", "3.00", datesFromGaps(1)...)...)

	got := Summarize(txs, 3)

	want := []struct {
		vendor string
		amount string
		count  int
	}{
		{"GYM", "40", 4},
		{"ACME", "5", 3},
		{"ACME", "9.99", 3},
		{"ZOOM", "14.99", 3},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d groups, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		g := got[i]
		if g.VendorKey != w.vendor || !g.Amount.Equal(decimal.RequireFromString(w.amount)) || g.Count != w.count {
			t.Errorf("row %d = (%s, %s, %d), want (%s, %s, %d)", i, g.VendorKey, g.Amount, g.Count, w.vendor, w.amount, w.count)
		}
	}
}

func TestSummarize_DatesAndCadence(t *testing.T) {
	dates := []core.Date{core.NewDate(2024, 3, 1), core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1)}
	got := Summarize(enriched("NETFLIX.COM", "15.49", dates...), 3)
	if len(got) != 1 {
		t.Fatalf("got %d groups, want 1", len(got))
	}
	g := got[0]
	if !g.FirstDate.Equal(core.NewDate(2024, 1, 1).Time) {
		t.Errorf("FirstDate = %s, want 2024-01-01", g.FirstDate)
	}
	if !g.LastDate.Equal(core.NewDate(2024, 3, 1).Time) {
		t.Errorf("LastDate = %s, want 2024-03-01", g.LastDate)
	}
	if !g.HasCadence() || g.Cadence.Pattern != core.Monthly || g.Cadence.MedianGapDays != 30 {
		t.Errorf("Cadence = %+v, want 30 days Monthly", g.Cadence)
	}
}

func TestSummarize_MinCountOneKeepsSingletons(t *testing.T) {
	got := Summarize(enriched("ONCE", "3.00", core.NewDate(2024, 5, 1)), 1)
	if len(got) != 1 {
		t.Fatalf("got %d groups, want 1", len(got))
	}
	if got[0].HasCadence() {
		t.Errorf("single occurrence should have no cadence, got %+v", got[0].Cadence)
	}
}

func TestSummarize_Empty(t *testing.T) {
	if got := Summarize(nil, 3); len(got) != 0 {
		t.Errorf("Summarize(nil) = %+v, want empty", got)
	}
}
