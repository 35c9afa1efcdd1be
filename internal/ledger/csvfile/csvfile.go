// Package csvfile reads ledgers from and writes reports to CSV files.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"ricorrenti/internal/core"
	"ricorrenti/internal/ledger"
	"ricorrenti/internal/log"
)

// Ensure interface conformance
var (
	_ ledger.TransactionSource = (*Source)(nil)
	_ ledger.ReportSink        = (*Sink)(nil)
)

// Source reads transactions from a CSV file with a header row.
type Source struct {
	path   string
	cols   ledger.Columns
	logger *slog.Logger
}

func NewSource(path string, cols ledger.Columns, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{path: path, cols: cols, logger: logger.With(log.FieldComponent, log.ComponentLedger)}
}

func (s *Source) Transactions(ctx context.Context) ([]core.Transaction, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	txs, drops, err := Read(ctx, f, s.cols)
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", s.path, err)
	}
	ledger.LogDrops(s.logger, s.path, len(txs), drops)
	return txs, nil
}

// Read parses CSV records from r. Quotes are handled leniently and rows may
// have a varying number of fields.
func Read(ctx context.Context, r io.Reader, cols ledger.Columns) ([]core.Transaction, ledger.Drops, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ledger.Drops{}, nil
	}
	if err != nil {
		return nil, ledger.Drops{}, fmt.Errorf("read header: %w", err)
	}
	mapper, err := ledger.NewRowMapper(cols, append([]string(nil), header...))
	if err != nil {
		return nil, ledger.Drops{}, err
	}

	var txs []core.Transaction
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, ledger.Drops{}, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ledger.Drops{}, fmt.Errorf("line %d: %w", line, err)
		}
		if tx, ok := mapper.Map(record); ok {
			txs = append(txs, tx)
		}
	}
	return txs, mapper.Drops(), nil
}

// Sink writes the summary table and the grouped transactions table as two
// CSV files in a directory.
type Sink struct {
	dir              string
	summaryFile      string
	transactionsFile string
	cols             ledger.Columns
	logger           *slog.Logger
}

func NewSink(dir, summaryFile, transactionsFile string, cols ledger.Columns, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		dir:              dir,
		summaryFile:      summaryFile,
		transactionsFile: transactionsFile,
		cols:             cols,
		logger:           logger.With(log.FieldComponent, log.ComponentLedger),
	}
}

func (s *Sink) WriteReport(ctx context.Context, report *core.Report) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	summaryPath := filepath.Join(s.dir, s.summaryFile)
	if err := writeFile(summaryPath, func(w io.Writer) error {
		return WriteSummary(w, report.Groups)
	}); err != nil {
		return err
	}
	txPath := filepath.Join(s.dir, s.transactionsFile)
	if err := writeFile(txPath, func(w io.Writer) error {
		return WriteTransactions(w, s.cols, report.Transactions)
	}); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Recurring payment summary saved",
		log.FieldRunID, report.RunID,
		log.FieldPath, summaryPath,
		log.FieldGroups, len(report.Groups))
	s.logger.InfoContext(ctx, "Grouped transactions saved",
		log.FieldRunID, report.RunID,
		log.FieldPath, txPath,
		log.FieldTransactions, len(report.Transactions))
	return nil
}

// writeFile writes through a temporary file so readers never see a partial
// table.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func WriteSummary(w io.Writer, groups []core.RecurringGroup) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledger.SummaryHeader); err != nil {
		return err
	}
	for _, g := range groups {
		if err := cw.Write(ledger.SummaryRow(g)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteTransactions(w io.Writer, cols ledger.Columns, txs []core.EnrichedTransaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledger.TransactionsHeader(cols)); err != nil {
		return err
	}
	for _, tx := range txs {
		if err := cw.Write(ledger.TransactionRow(tx)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
