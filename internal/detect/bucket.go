package detect

import (
	"sort"

	"github.com/shopspring/decimal"

	"ricorrenti/internal/core"
)

// Bucket is a cluster of near-equal amounts within one vendor group.
type Bucket struct {
	Members []core.Money // distinct amounts, ascending; Members[0] is the reference
	Mean    decimal.Decimal
}

// Buckets is the outcome of bucketing one vendor group's amounts.
type Buckets struct {
	List  []Bucket
	means map[int64]decimal.Decimal
}

// Lookup returns the representative amount of the bucket m belongs to.
func (b Buckets) Lookup(m core.Money) (decimal.Decimal, bool) {
	mean, ok := b.means[m.Cents]
	return mean, ok
}

// AmountBucketer collapses near-equal amounts (e.g. 59.98 and 60.01) into a
// single representative value.
type AmountBucketer struct {
	tolerance core.Money
}

func NewAmountBucketer(tolerance core.Money) *AmountBucketer {
	return &AmountBucketer{tolerance: tolerance}
}

// Bucket sweeps the distinct amounts in ascending order. Each amount joins
// the first bucket, in creation order, whose first member is within the
// tolerance; otherwise it opens a new bucket. Comparing against the first
// member instead of a running mean keeps every member within the tolerance of
// the bucket minimum.
func (b *AmountBucketer) Bucket(amounts []core.Money) Buckets {
	distinct := distinctAscending(amounts)

	var list []Bucket
	for _, amt := range distinct {
		joined := false
		for i := range list {
			if abs(list[i].Members[0].Cents-amt.Cents) <= b.tolerance.Cents {
				list[i].Members = append(list[i].Members, amt)
				joined = true
				break
			}
		}
		if !joined {
			list = append(list, Bucket{Members: []core.Money{amt}})
		}
	}

	means := make(map[int64]decimal.Decimal, len(distinct))
	for i := range list {
		list[i].Mean = mean(list[i].Members)
		for _, m := range list[i].Members {
			means[m.Cents] = list[i].Mean
		}
	}
	return Buckets{List: list, means: means}
}

func distinctAscending(amounts []core.Money) []core.Money {
	seen := make(map[int64]struct{}, len(amounts))
	out := make([]core.Money, 0, len(amounts))
	for _, a := range amounts {
		if _, ok := seen[a.Cents]; ok {
			continue
		}
		seen[a.Cents] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cents < out[j].Cents })
	return out
}

func mean(members []core.Money) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range members {
		sum = sum.Add(m.Decimal())
	}
	return sum.Div(decimal.NewFromInt(int64(len(members))))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
