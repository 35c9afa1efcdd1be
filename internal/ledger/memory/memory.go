// Package memory keeps ledgers and reports in process, for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"ricorrenti/internal/core"
	"ricorrenti/internal/ledger"
)

// Ensure interface conformance
var (
	_ ledger.TransactionSource = (*Store)(nil)
	_ ledger.ReportSink        = (*Store)(nil)
)

// Store is both a transaction source and a report sink.
type Store struct {
	mu      sync.Mutex
	txs     []core.Transaction
	reports []*core.Report
}

// New returns a store seeded with the valid transactions of txs.
func New(txs ...core.Transaction) *Store {
	s := &Store{}
	s.Add(txs...)
	return s
}

// Add appends transactions, skipping invalid ones the way file sources do.
// It returns how many were kept.
func (s *Store) Add(txs ...core.Transaction) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := 0
	for _, tx := range txs {
		if tx.Validate() != nil {
			continue
		}
		s.txs = append(s.txs, tx)
		kept++
	}
	return kept
}

func (s *Store) Transactions(ctx context.Context) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.txs...), nil
}

func (s *Store) WriteReport(ctx context.Context, report *core.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

// Reports returns every report written so far, oldest first.
func (s *Store) Reports() []*core.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.Report(nil), s.reports...)
}

// Last returns the most recent report, or nil.
func (s *Store) Last() *core.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reports) == 0 {
		return nil
	}
	return s.reports[len(s.reports)-1]
}
