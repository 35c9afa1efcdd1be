package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Row types mirror the table columns.
type (
	TransactionRow struct {
		ID          int64
		Source      string
		Date        string
		Description string
		AmountCents int64
	}

	AnalysisRunRow struct {
		ID               string
		GeneratedAt      string
		MatchMode        string
		GroupCount       int64
		TransactionCount int64
	}

	RecurringGroupRow struct {
		RunID         string
		Position      int64
		VendorKey     string
		Amount        string
		Count         int64
		FirstDate     string
		LastDate      string
		MedianGapDays sql.NullInt64
		Pattern       sql.NullString
	}

	GroupedTransactionRow struct {
		RunID        string
		Position     int64
		Date         string
		Description  string
		AmountCents  int64
		VendorKey    string
		BucketAmount string
	}
)

type InsertTransactionParams struct {
	Source      string
	Date        string
	Description string
	AmountCents int64
	Occurrence  int64
	ImportedAt  string
}

const insertTransaction = `
INSERT INTO transactions (source, date, description, amount_cents, occurrence, imported_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (source, date, description, amount_cents, occurrence) DO NOTHING`

// InsertTransaction reports whether a row was added; re-importing the same
// record is a no-op.
func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertTransaction,
		arg.Source, arg.Date, arg.Description, arg.AmountCents, arg.Occurrence, arg.ImportedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const listTransactions = `
SELECT id, source, date, description, amount_cents
FROM transactions
ORDER BY date, id`

func (q *Queries) ListTransactions(ctx context.Context) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		var i TransactionRow
		if err := rows.Scan(&i.ID, &i.Source, &i.Date, &i.Description, &i.AmountCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countTransactions = `SELECT COUNT(*) FROM transactions`

func (q *Queries) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countTransactions).Scan(&n)
	return n, err
}

const insertAnalysisRun = `
INSERT INTO analysis_runs (id, generated_at, match_mode, group_count, transaction_count)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertAnalysisRun(ctx context.Context, arg AnalysisRunRow) error {
	_, err := q.db.ExecContext(ctx, insertAnalysisRun,
		arg.ID, arg.GeneratedAt, arg.MatchMode, arg.GroupCount, arg.TransactionCount)
	return err
}

const latestAnalysisRun = `
SELECT id, generated_at, match_mode, group_count, transaction_count
FROM analysis_runs
ORDER BY generated_at DESC, rowid DESC
LIMIT 1`

func (q *Queries) LatestAnalysisRun(ctx context.Context) (AnalysisRunRow, error) {
	var i AnalysisRunRow
	err := q.db.QueryRowContext(ctx, latestAnalysisRun).
		Scan(&i.ID, &i.GeneratedAt, &i.MatchMode, &i.GroupCount, &i.TransactionCount)
	return i, err
}

const getAnalysisRun = `
SELECT id, generated_at, match_mode, group_count, transaction_count
FROM analysis_runs
WHERE id = ?`

func (q *Queries) GetAnalysisRun(ctx context.Context, id string) (AnalysisRunRow, error) {
	var i AnalysisRunRow
	err := q.db.QueryRowContext(ctx, getAnalysisRun, id).
		Scan(&i.ID, &i.GeneratedAt, &i.MatchMode, &i.GroupCount, &i.TransactionCount)
	return i, err
}

const insertRecurringGroup = `
INSERT INTO recurring_groups (run_id, position, vendor_key, amount, count, first_date, last_date, median_gap_days, pattern)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertRecurringGroup(ctx context.Context, arg RecurringGroupRow) error {
	_, err := q.db.ExecContext(ctx, insertRecurringGroup,
		arg.RunID, arg.Position, arg.VendorKey, arg.Amount, arg.Count,
		arg.FirstDate, arg.LastDate, arg.MedianGapDays, arg.Pattern)
	return err
}

const listRecurringGroups = `
SELECT run_id, position, vendor_key, amount, count, first_date, last_date, median_gap_days, pattern
FROM recurring_groups
WHERE run_id = ?
ORDER BY position`

func (q *Queries) ListRecurringGroups(ctx context.Context, runID string) ([]RecurringGroupRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecurringGroups, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecurringGroupRow
	for rows.Next() {
		var i RecurringGroupRow
		if err := rows.Scan(&i.RunID, &i.Position, &i.VendorKey, &i.Amount, &i.Count,
			&i.FirstDate, &i.LastDate, &i.MedianGapDays, &i.Pattern); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertGroupedTransaction = `
INSERT INTO grouped_transactions (run_id, position, date, description, amount_cents, vendor_key, bucket_amount)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertGroupedTransaction(ctx context.Context, arg GroupedTransactionRow) error {
	_, err := q.db.ExecContext(ctx, insertGroupedTransaction,
		arg.RunID, arg.Position, arg.Date, arg.Description, arg.AmountCents, arg.VendorKey, arg.BucketAmount)
	return err
}

const countGroupedTransactions = `SELECT COUNT(*) FROM grouped_transactions WHERE run_id = ?`

func (q *Queries) CountGroupedTransactions(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countGroupedTransactions, runID).Scan(&n)
	return n, err
}
