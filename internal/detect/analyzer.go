// Package detect finds recurring payments in a ledger of outgoing
// transactions.
//
// The pipeline runs in four stages, each consuming the output of the previous
// one: VendorGrouper clusters descriptions into vendors, AmountBucketer
// clusters each vendor's amounts, Summarize aggregates (vendor, amount)
// groups and DetectPeriodicity labels their cadence. Everything is computed
// in memory from the input slice; no stage performs I/O.
package detect

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ricorrenti/internal/core"
	"ricorrenti/internal/log"
)

var ErrInvalidTransaction = errors.New("invalid transaction")

// Stats counts the entities produced by a run.
type Stats struct {
	Transactions int
	Vendors      int
	Buckets      int
	Groups       int
}

// Result is the output of Analyze.
type Result struct {
	MatchMode    core.MatchMode
	Groups       []core.RecurringGroup
	Transactions []core.EnrichedTransaction
	Stats        Stats
}

// Analyzer wires the pipeline stages together.
type Analyzer struct {
	cfg      Config
	grouper  *VendorGrouper
	bucketer *AmountBucketer
	logger   *slog.Logger
}

// Option customises an Analyzer.
type Option func(*Analyzer)

// WithMatcher overrides the matcher selected from Config.FuzzyMatching.
func WithMatcher(m Matcher) Option {
	return func(a *Analyzer) {
		a.grouper = NewVendorGrouper(m, a.cfg.FuzzyThreshold)
	}
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// NewAnalyzer validates cfg and builds an Analyzer. When fuzzy matching is
// disabled the degraded mode is logged once here and reported on every Result.
func NewAnalyzer(cfg Config, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{
		cfg:      cfg,
		grouper:  NewVendorGrouper(NewMatcher(cfg.FuzzyMatching), cfg.FuzzyThreshold),
		bucketer: NewAmountBucketer(cfg.Tolerance),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.grouper.Mode() == core.MatchExact {
		a.logger.Warn("Fuzzy vendor matching disabled, grouping degrades to exact description match",
			log.FieldMatchMode, core.MatchExact)
	}
	return a, nil
}

// Mode reports the vendor matching capability in use.
func (a *Analyzer) Mode() core.MatchMode {
	return a.grouper.Mode()
}

// Analyze runs the full pipeline over txs. Every transaction must satisfy
// core.Transaction.Validate; sources are expected to have dropped incomplete
// records, so an invalid one aborts the run.
func (a *Analyzer) Analyze(txs []core.Transaction) (*Result, error) {
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("%w at index %d: %w", ErrInvalidTransaction, i, err)
		}
	}

	vendorOf := a.grouper.Group(Descriptions(txs))

	vendors, amountsByVendor := amountsPerVendor(txs, vendorOf)
	buckets, err := a.bucketAll(vendors, amountsByVendor)
	if err != nil {
		return nil, err
	}

	enriched := make([]core.EnrichedTransaction, len(txs))
	for i, tx := range txs {
		vendor := vendorOf[tx.Description]
		mean, ok := buckets[vendor].Lookup(tx.Amount)
		if !ok {
			return nil, fmt.Errorf("amount %s of %q missing from its vendor buckets", tx.Amount, vendor)
		}
		enriched[i] = core.EnrichedTransaction{Transaction: tx, VendorKey: vendor, BucketAmount: mean}
	}

	groups := Summarize(enriched, a.cfg.MinCount)

	stats := Stats{Transactions: len(txs), Vendors: len(vendors), Groups: len(groups)}
	for _, b := range buckets {
		stats.Buckets += len(b.List)
	}

	a.logger.Info("Recurring payment detection complete",
		log.FieldMatchMode, a.Mode(),
		log.FieldTransactions, stats.Transactions,
		log.FieldVendors, stats.Vendors,
		log.FieldBuckets, stats.Buckets,
		log.FieldGroups, stats.Groups)

	return &Result{
		MatchMode:    a.Mode(),
		Groups:       groups,
		Transactions: enriched,
		Stats:        stats,
	}, nil
}

// amountsPerVendor returns vendor keys in first-seen order and their amounts.
func amountsPerVendor(txs []core.Transaction, vendorOf map[string]string) ([]string, map[string][]core.Money) {
	var vendors []string
	amounts := make(map[string][]core.Money)
	for _, tx := range txs {
		v := vendorOf[tx.Description]
		if _, ok := amounts[v]; !ok {
			vendors = append(vendors, v)
		}
		amounts[v] = append(amounts[v], tx.Amount)
	}
	return vendors, amounts
}

// bucketAll buckets every vendor group. Groups are independent, so they are
// processed by up to cfg.Workers goroutines; each writes only its own slot.
func (a *Analyzer) bucketAll(vendors []string, amounts map[string][]core.Money) (map[string]Buckets, error) {
	results := make([]Buckets, len(vendors))

	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for i, v := range vendors {
		g.Go(func() error {
			results[i] = a.bucketer.Bucket(amounts[v])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bucket amounts: %w", err)
	}

	out := make(map[string]Buckets, len(vendors))
	for i, v := range vendors {
		out[v] = results[i]
	}
	return out, nil
}
