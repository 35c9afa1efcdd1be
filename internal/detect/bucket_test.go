package detect

import (
	"testing"

	"github.com/shopspring/decimal"

	"ricorrenti/internal/core"
)

func money(s string) core.Money {
	return core.MustParseMoney(s)
}

func moneys(ss ...string) []core.Money {
	out := make([]core.Money, len(ss))
	for i, s := range ss {
		out[i] = money(s)
	}
	return out
}

func TestAmountBucketer_Bucket(t *testing.T) {
	tests := []struct {
		name      string
		tolerance core.Money
		amounts   []core.Money
		wantSizes []int
		wantMeans []string
	}{
		{
			name:      "near-equal amounts collapse",
			tolerance: DefaultTolerance,
			amounts:   moneys("60.01", "59.98"),
			wantSizes: []int{2},
			wantMeans: []string{"59.995"},
		},
		{
			name:      "comparison uses the first member, not the mean",
			tolerance: DefaultTolerance,
			amounts:   moneys("11.20", "10.00", "11.00", "10.60"),
			wantSizes: []int{3, 1},
			wantMeans: []string{"10.5333333333333333", "11.2"},
		},
		{
			name:      "tolerance is inclusive",
			tolerance: DefaultTolerance,
			amounts:   moneys("20.00", "21.00", "21.01"),
			wantSizes: []int{2, 1},
			wantMeans: []string{"20.5", "21.01"},
		},
		{
			name:      "duplicates count once in the mean",
			tolerance: DefaultTolerance,
			amounts:   moneys("15.49", "15.49", "15.49", "16.49"),
			wantSizes: []int{2},
			wantMeans: []string{"15.99"},
		},
		{
			name:      "zero tolerance keeps every amount apart",
			tolerance: core.Money{},
			amounts:   moneys("10.00", "10.01"),
			wantSizes: []int{1, 1},
			wantMeans: []string{"10", "10.01"},
		},
		{
			name:      "no amounts",
			tolerance: DefaultTolerance,
			amounts:   nil,
			wantSizes: nil,
			wantMeans: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAmountBucketer(tt.tolerance).Bucket(tt.amounts)
			if len(got.List) != len(tt.wantSizes) {
				t.Fatalf("got %d buckets, want %d: %+v", len(got.List), len(tt.wantSizes), got.List)
			}
			for i, b := range got.List {
				if len(b.Members) != tt.wantSizes[i] {
					t.Errorf("bucket %d has %d members, want %d", i, len(b.Members), tt.wantSizes[i])
				}
				want := decimal.RequireFromString(tt.wantMeans[i])
				if !b.Mean.Equal(want) {
					t.Errorf("bucket %d mean = %s, want %s", i, b.Mean, want)
				}
			}
			for _, amt := range tt.amounts {
				if _, ok := got.Lookup(amt); !ok {
					t.Errorf("Lookup(%s) missing", amt)
				}
			}
		})
	}
}

func TestAmountBucketer_ToleranceBound(t *testing.T) {
	amounts := moneys(
		"9.99", "10.49", "10.99", "11.00", "11.01", "11.98", "12.50",
		"12.99", "13.00", "14.75", "15.49", "15.50", "16.49", "16.50",
	)
	tolerance := DefaultTolerance

	got := NewAmountBucketer(tolerance).Bucket(amounts)
	for i, b := range got.List {
		first := b.Members[0]
		for _, m := range b.Members {
			if d := abs(m.Cents - first.Cents); d > tolerance.Cents {
				t.Errorf("bucket %d: member %s is %d cents from first member %s", i, m, d, first)
			}
		}
	}
}

func TestAmountBucketer_LookupMapsToBucketMean(t *testing.T) {
	got := NewAmountBucketer(DefaultTolerance).Bucket(moneys("59.98", "60.01", "75.00"))

	a, _ := got.Lookup(money("59.98"))
	b, _ := got.Lookup(money("60.01"))
	c, _ := got.Lookup(money("75.00"))
	if !a.Equal(b) {
		t.Errorf("59.98 and 60.01 map to %s and %s, want the same mean", a, b)
	}
	if !c.Equal(decimal.RequireFromString("75")) {
		t.Errorf("75.00 maps to %s", c)
	}
	if _, ok := got.Lookup(money("1.00")); ok {
		t.Error("Lookup of an unseen amount should fail")
	}
}
