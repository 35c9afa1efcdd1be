package detect

import (
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"ricorrenti/internal/cache"
	"ricorrenti/internal/core"
)

// Matcher scores the similarity of two vendor descriptions on a 0-100 scale.
type Matcher interface {
	Score(a, b string) float64
	Mode() core.MatchMode
}

// NewMatcher returns the token-sort matcher when fuzzy is true and the
// exact-match fallback otherwise.
func NewMatcher(fuzzy bool) Matcher {
	if fuzzy {
		return TokenSortMatcher{}
	}
	return ExactMatcher{}
}

// TokenSortMatcher compares descriptions after upper-casing them and sorting
// their whitespace-separated tokens, so "USA SPOTIFY" equals "spotify usa".
type TokenSortMatcher struct{}

// indel distance: substitutions cost as a delete plus an insert
var indelOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 2,
	Matches: levenshtein.IdenticalRunes,
}

func (TokenSortMatcher) Score(a, b string) float64 {
	sa, sb := sortTokens(a), sortTokens(b)
	if sa == sb {
		return 100
	}
	return 100 * levenshtein.RatioForStrings([]rune(sa), []rune(sb), indelOptions)
}

func (TokenSortMatcher) Mode() core.MatchMode {
	return core.MatchFuzzy
}

func sortTokens(s string) string {
	tokens := strings.Fields(strings.ToUpper(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// ExactMatcher is the fallback used when fuzzy matching is disabled: only
// identical descriptions score.
type ExactMatcher struct{}

func (ExactMatcher) Score(a, b string) float64 {
	if a == b {
		return 100
	}
	return 0
}

func (ExactMatcher) Mode() core.MatchMode {
	return core.MatchExact
}

// CachedMatcher memoises scores of another matcher. Scores are symmetric, so
// (a, b) and (b, a) share an entry.
type CachedMatcher struct {
	next  Matcher
	cache cache.Cache[float64]
}

func NewCachedMatcher(next Matcher, c cache.Cache[float64]) *CachedMatcher {
	return &CachedMatcher{next: next, cache: c}
}

func (m *CachedMatcher) Score(a, b string) float64 {
	if b < a {
		a, b = b, a
	}
	key := a + "\x00" + b
	if score, ok := m.cache.Get(key); ok {
		return score
	}
	score := m.next.Score(a, b)
	m.cache.Set(key, score)
	return score
}

func (m *CachedMatcher) Mode() core.MatchMode {
	return m.next.Mode()
}
