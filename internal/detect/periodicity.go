package detect

import (
	"sort"

	"ricorrenti/internal/core"
)

// cadenceRange labels median gaps falling within [MinDays, MaxDays].
type cadenceRange struct {
	MinDays int
	MaxDays int
	Pattern core.Pattern
}

// cadenceRanges are checked in order; the first match wins. The bounds are
// wide enough to absorb bills that land on different weekdays or month lengths.
var cadenceRanges = []cadenceRange{
	{MinDays: 27, MaxDays: 33, Pattern: core.Monthly},
	{MinDays: 6, MaxDays: 8, Pattern: core.Weekly},
	{MinDays: 13, MaxDays: 16, Pattern: core.BiWeekly},
	{MinDays: 350, MaxDays: 380, Pattern: core.Yearly},
}

// ClassifyGap returns the pattern label for a median gap in days.
func ClassifyGap(days int) core.Pattern {
	for _, r := range cadenceRanges {
		if days >= r.MinDays && days <= r.MaxDays {
			return r.Pattern
		}
	}
	return core.Irregular
}

// MedianGap returns the integer median of gaps. For an even number of gaps
// the two middle values are averaged and the result truncated.
func MedianGap(gaps []int) (int, bool) {
	if len(gaps) == 0 {
		return 0, false
	}
	sorted := append([]int(nil), gaps...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

// Gaps returns the day gaps between consecutive dates after sorting them.
func Gaps(dates []core.Date) []int {
	if len(dates) < 2 {
		return nil
	}
	sorted := append([]core.Date(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j].Time) })

	gaps := make([]int, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i-1].DaysUntil(sorted[i]))
	}
	return gaps
}

// DetectPeriodicity classifies the cadence of a group's occurrence dates.
// It returns nil when fewer than two dates are given.
func DetectPeriodicity(dates []core.Date) *core.Cadence {
	median, ok := MedianGap(Gaps(dates))
	if !ok {
		return nil
	}
	return &core.Cadence{MedianGapDays: median, Pattern: ClassifyGap(median)}
}
