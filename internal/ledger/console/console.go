// Package console prints a preview of a report as an aligned table.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"ricorrenti/internal/core"
	"ricorrenti/internal/ledger"
)

var _ ledger.ReportSink = (*Sink)(nil)

// Sink writes the first rows of the summary table to w.
type Sink struct {
	w    io.Writer
	rows int
}

// NewSink returns a preview sink; a nil writer means stdout.
func NewSink(w io.Writer, rows int) *Sink {
	if w == nil {
		w = os.Stdout
	}
	return &Sink{w: w, rows: rows}
}

func (s *Sink) WriteReport(_ context.Context, report *core.Report) error {
	groups := report.Groups
	if n := max(s.rows, 0); len(groups) > n {
		groups = groups[:n]
	}

	fmt.Fprintf(s.w, "\nRecurring Payment Preview (%d of %d groups, %s matching):\n",
		len(groups), len(report.Groups), report.MatchMode)
	if len(groups) == 0 {
		_, err := fmt.Fprintln(s.w, "No recurring payments found.")
		return err
	}

	tw := tabwriter.NewWriter(s.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\t"+strings.Join(ledger.SummaryHeader, "\t")+"\t")
	for i, g := range groups {
		fmt.Fprintf(tw, "%d\t%s\t\n", i, strings.Join(ledger.SummaryRow(g), "\t"))
	}
	return tw.Flush()
}
