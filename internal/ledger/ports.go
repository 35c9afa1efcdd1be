// Package ledger defines where transactions come from and where reports go.
//
// Sources perform all the row filtering the detection pipeline relies on:
// only transactions satisfying core.Transaction.Validate are returned.
package ledger

import (
	"context"

	"ricorrenti/internal/core"
)

// Ports for inbound and outbound adapters.
type (
	TransactionSource interface {
		// Transactions returns every valid outgoing transaction, in ledger order.
		Transactions(ctx context.Context) ([]core.Transaction, error)
	}

	ReportSink interface {
		WriteReport(ctx context.Context, report *core.Report) error
	}
)

// NamedSink pairs a sink with the name it was configured under, for logging.
type NamedSink struct {
	Name string
	ReportSink
}
