// Package xlsx reads ledgers from and writes reports to Excel workbooks.
package xlsx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"ricorrenti/internal/core"
	"ricorrenti/internal/ledger"
	"ricorrenti/internal/log"
)

const (
	RecurringSheet    = "Recurring"
	TransactionsSheet = "Transactions"
)

// Ensure interface conformance
var (
	_ ledger.TransactionSource = (*Source)(nil)
	_ ledger.ReportSink        = (*Sink)(nil)
)

// Source reads transactions from one worksheet. The first non-empty row is
// the header.
type Source struct {
	path   string
	sheet  string // empty selects the first sheet
	cols   ledger.Columns
	logger *slog.Logger
}

func NewSource(path, sheet string, cols ledger.Columns, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{path: path, sheet: sheet, cols: cols, logger: logger.With(log.FieldComponent, log.ComponentLedger)}
}

func (s *Source) Transactions(ctx context.Context) ([]core.Transaction, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := s.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("workbook %s has no sheets", s.path)
	}

	// Raw values keep dates as serial numbers regardless of cell formatting.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows of %s: %w", sheet, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows = dropEmptyRows(rows)
	if len(rows) == 0 {
		return nil, nil
	}

	mapper, err := ledger.NewRowMapper(s.cols, rows[0], ledger.WithDateFallback(parseSerialDate))
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheet, err)
	}
	txs := mapper.MapAll(rows[1:])
	ledger.LogDrops(s.logger, s.path+"#"+sheet, len(txs), mapper.Drops())
	return txs, nil
}

// parseSerialDate converts an Excel serial date (1900 date system).
func parseSerialDate(cell string) (core.Date, error) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w %q", ledger.ErrBadDate, cell)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w %q: %v", ledger.ErrBadDate, cell, err)
	}
	return core.DateOf(t), nil
}

func dropEmptyRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// Sink writes a workbook with a Recurring sheet and a Transactions sheet.
type Sink struct {
	path   string
	cols   ledger.Columns
	logger *slog.Logger
}

func NewSink(path string, cols ledger.Columns, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{path: path, cols: cols, logger: logger.With(log.FieldComponent, log.ComponentLedger)}
}

func (s *Sink) WriteReport(ctx context.Context, report *core.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), RecurringSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(TransactionsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	summary := make([][]interface{}, 0, len(report.Groups)+1)
	summary = append(summary, toCells(ledger.SummaryHeader))
	for _, g := range report.Groups {
		summary = append(summary, groupCells(g))
	}
	if err := writeSheet(f, RecurringSheet, summary, bold); err != nil {
		return err
	}

	txs := make([][]interface{}, 0, len(report.Transactions)+1)
	txs = append(txs, toCells(ledger.TransactionsHeader(s.cols)))
	for _, tx := range report.Transactions {
		txs = append(txs, transactionCells(tx))
	}
	if err := writeSheet(f, TransactionsSheet, txs, bold); err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	s.logger.InfoContext(ctx, "Recurring payment workbook saved",
		log.FieldRunID, report.RunID,
		log.FieldPath, s.path,
		log.FieldGroups, len(report.Groups))
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// groupCells keeps amounts and counts numeric so the sheet can be sorted and
// summed; dates stay ISO strings.
func groupCells(g core.RecurringGroup) []interface{} {
	var median, pattern interface{} = "", ""
	if g.Cadence != nil {
		median = g.Cadence.MedianGapDays
		pattern = string(g.Cadence.Pattern)
	}
	return []interface{}{
		g.VendorKey,
		g.Amount.InexactFloat64(),
		g.Count,
		g.FirstDate.String(),
		g.LastDate.String(),
		median,
		pattern,
	}
}

func transactionCells(tx core.EnrichedTransaction) []interface{} {
	return []interface{}{
		tx.Date.String(),
		tx.Description,
		tx.Amount.Decimal().InexactFloat64(),
		tx.VendorKey,
		tx.BucketAmount.InexactFloat64(),
	}
}
