package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ricorrenti/internal/core"
	"ricorrenti/internal/log"
)

var (
	ErrMissingColumn = errors.New("missing column")
	ErrBadDate       = errors.New("unparseable date")
)

// Columns names the header cells holding each transaction field. Columns are
// always configured explicitly; nothing is inferred from the data.
type Columns struct {
	Date        string
	Description string
	Amount      string
	DateLayouts []string
}

// DefaultColumns matches a typical bank export.
func DefaultColumns() Columns {
	return Columns{
		Date:        "Post Date",
		Description: "Description",
		Amount:      "Debit",
		DateLayouts: []string{"2006-01-02", "01/02/2006", "1/2/2006"},
	}
}

// Drops counts rows discarded while mapping, by reason.
type Drops struct {
	BadDate          int
	EmptyDescription int
	BadAmount        int
}

func (d Drops) Total() int {
	return d.BadDate + d.EmptyDescription + d.BadAmount
}

// DateParser turns a cell into a calendar date.
type DateParser func(cell string) (core.Date, error)

// RowMapper converts raw rows into transactions using the column positions
// found in a header row.
type RowMapper struct {
	cols      Columns
	date      int
	desc      int
	amount    int
	parseDate DateParser
	drops     Drops
}

// MapperOption customises a RowMapper.
type MapperOption func(*RowMapper)

// WithDateFallback tries fn when none of the configured layouts match.
func WithDateFallback(fn DateParser) MapperOption {
	return func(m *RowMapper) {
		layouts := m.parseDate
		m.parseDate = func(cell string) (core.Date, error) {
			if d, err := layouts(cell); err == nil {
				return d, nil
			}
			return fn(cell)
		}
	}
}

// NewRowMapper locates the configured columns in header. Header cells are
// compared after trimming spaces and a UTF-8 byte order mark, ignoring case.
func NewRowMapper(cols Columns, header []string, opts ...MapperOption) (*RowMapper, error) {
	m := &RowMapper{cols: cols, date: -1, desc: -1, amount: -1}
	m.parseDate = func(cell string) (core.Date, error) {
		return ParseDate(cell, cols.DateLayouts)
	}
	for _, opt := range opts {
		opt(m)
	}

	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case m.date < 0 && strings.EqualFold(h, cols.Date):
			m.date = i
		case m.desc < 0 && strings.EqualFold(h, cols.Description):
			m.desc = i
		case m.amount < 0 && strings.EqualFold(h, cols.Amount):
			m.amount = i
		}
	}

	var missing []string
	if m.date < 0 {
		missing = append(missing, cols.Date)
	}
	if m.desc < 0 {
		missing = append(missing, cols.Description)
	}
	if m.amount < 0 {
		missing = append(missing, cols.Amount)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w %q; got headers=%v", ErrMissingColumn, missing, header)
	}
	return m, nil
}

// Map converts one row. Rows with an unparseable date, an empty description
// or a missing or non-positive amount are dropped and counted.
func (m *RowMapper) Map(row []string) (core.Transaction, bool) {
	date, err := m.parseDate(cell(row, m.date))
	if err != nil {
		m.drops.BadDate++
		return core.Transaction{}, false
	}
	desc := strings.TrimSpace(cell(row, m.desc))
	if desc == "" {
		m.drops.EmptyDescription++
		return core.Transaction{}, false
	}
	amount, err := core.ParseAmount(cell(row, m.amount))
	if err != nil || amount.Validate() != nil {
		m.drops.BadAmount++
		return core.Transaction{}, false
	}
	return core.Transaction{Date: date, Description: desc, Amount: amount}, true
}

// MapAll converts every row, skipping dropped ones.
func (m *RowMapper) MapAll(rows [][]string) []core.Transaction {
	txs := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		if tx, ok := m.Map(row); ok {
			txs = append(txs, tx)
		}
	}
	return txs
}

func (m *RowMapper) Drops() Drops {
	return m.drops
}

// LogDrops reports the outcome of a read at INFO, with per-reason counts at
// DEBUG.
func LogDrops(logger *slog.Logger, source string, kept int, drops Drops) {
	logger.Info("Ledger read",
		log.FieldOperation, log.OpRead,
		log.FieldSource, source,
		log.FieldTransactions, kept,
		log.FieldDropped, drops.Total())
	if drops.Total() > 0 {
		logger.Debug("Ledger rows dropped",
			log.FieldSource, source,
			"bad_date", drops.BadDate,
			"empty_description", drops.EmptyDescription,
			"bad_amount", drops.BadAmount)
	}
}

// ParseDate tries each layout in turn.
func ParseDate(s string, layouts []string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, ErrBadDate
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return core.Date{}, fmt.Errorf("%w %q", ErrBadDate, s)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
