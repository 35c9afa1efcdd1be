package detect

import "ricorrenti/internal/core"

// VendorGrouper clusters raw descriptions into vendor groups with an ordered
// sweep: the first unassigned description claims every later unassigned one
// scoring at or above the threshold. A claimed description is never moved to
// a later cluster, so the outcome depends on input order. That tie-break is
// deliberate and part of the observable output.
type VendorGrouper struct {
	matcher   Matcher
	threshold float64
}

func NewVendorGrouper(matcher Matcher, threshold float64) *VendorGrouper {
	return &VendorGrouper{matcher: matcher, threshold: threshold}
}

// Mode reports the matching capability in use.
func (g *VendorGrouper) Mode() core.MatchMode {
	return g.matcher.Mode()
}

// Group maps each description to its vendor key, itself a description from
// the input. Duplicates in descriptions are ignored after their first
// occurrence.
func (g *VendorGrouper) Group(descriptions []string) map[string]string {
	names := uniqueInOrder(descriptions)
	keys := make(map[string]string, len(names))

	for i, name := range names {
		if _, ok := keys[name]; ok {
			continue
		}
		keys[name] = name
		for _, candidate := range names[i+1:] {
			if _, ok := keys[candidate]; ok {
				continue
			}
			if g.matcher.Score(name, candidate) >= g.threshold {
				keys[candidate] = name
			}
		}
	}
	return keys
}

// Descriptions returns the distinct descriptions of txs in first-seen order.
func Descriptions(txs []core.Transaction) []string {
	out := make([]string, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.Description)
	}
	return uniqueInOrder(out)
}

func uniqueInOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
