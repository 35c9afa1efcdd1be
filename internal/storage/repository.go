package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"ricorrenti/internal/core"
	"ricorrenti/internal/ledger"
	"ricorrenti/internal/log"
)

const dateLayout = "2006-01-02"

var (
	ErrNoRuns      = errors.New("no analysis runs stored")
	ErrRunNotFound = errors.New("analysis run not found")
)

// Ensure interface conformance
var (
	_ ledger.TransactionSource = (*SQLiteRepository)(nil)
	_ ledger.ReportSink        = (*SQLiteRepository)(nil)
)

// Run summarises a stored analysis run.
type Run struct {
	ID           string
	GeneratedAt  time.Time
	MatchMode    core.MatchMode
	Groups       int
	Transactions int
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *slog.Logger
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(log.FieldComponent, log.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite repository ready", log.FieldOperation, log.OpMigrate, log.FieldPath, dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ImportTransactions stores txs under source in a single database
// transaction and returns how many were new. Identical records within one
// source are told apart by their occurrence index, so importing the same
// ledger twice adds nothing.
func (r *SQLiteRepository) ImportTransactions(ctx context.Context, source string, txs []core.Transaction) (int, error) {
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return 0, fmt.Errorf("transaction %d: %w", i, err)
		}
	}

	inserted := 0
	importedAt := r.now().UTC().Format(time.RFC3339Nano)
	err := r.inTx(ctx, func(q *Queries) error {
		seen := make(map[InsertTransactionParams]int64)
		for _, tx := range txs {
			key := InsertTransactionParams{
				Source:      source,
				Date:        tx.Date.Format(dateLayout),
				Description: tx.Description,
				AmountCents: tx.Amount.Cents,
			}
			arg := key
			arg.Occurrence = seen[key]
			arg.ImportedAt = importedAt
			seen[key]++

			added, err := q.InsertTransaction(ctx, arg)
			if err != nil {
				return fmt.Errorf("insert transaction: %w", err)
			}
			if added {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.InfoContext(ctx, "Transactions imported",
		log.FieldSource, source,
		log.FieldTransactions, len(txs),
		"inserted", inserted)
	return inserted, nil
}

// Transactions returns every stored transaction ordered by date, then import
// order. This is not ledger order: vendor keys are taken from the first
// description seen in a group, so an analysis over stored rows can pick a
// different canonical key than the same ledger read from a CSV or XLSX file.
func (r *SQLiteRepository) Transactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	txs := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		date, err := parseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", row.ID, err)
		}
		txs = append(txs, core.Transaction{
			Date:        date,
			Description: row.Description,
			Amount:      core.Money{Cents: row.AmountCents},
		})
	}
	return txs, nil
}

// WriteReport stores the run, its groups and its enriched transactions in one
// database transaction.
func (r *SQLiteRepository) WriteReport(ctx context.Context, report *core.Report) error {
	err := r.inTx(ctx, func(q *Queries) error {
		if err := q.InsertAnalysisRun(ctx, AnalysisRunRow{
			ID:               report.RunID,
			GeneratedAt:      report.GeneratedAt.UTC().Format(time.RFC3339Nano),
			MatchMode:        string(report.MatchMode),
			GroupCount:       int64(len(report.Groups)),
			TransactionCount: int64(len(report.Transactions)),
		}); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for i, g := range report.Groups {
			row := RecurringGroupRow{
				RunID:     report.RunID,
				Position:  int64(i),
				VendorKey: g.VendorKey,
				Amount:    g.Amount.String(),
				Count:     int64(g.Count),
				FirstDate: g.FirstDate.Format(dateLayout),
				LastDate:  g.LastDate.Format(dateLayout),
			}
			if g.Cadence != nil {
				row.MedianGapDays = sql.NullInt64{Int64: int64(g.Cadence.MedianGapDays), Valid: true}
				row.Pattern = sql.NullString{String: string(g.Cadence.Pattern), Valid: true}
			}
			if err := q.InsertRecurringGroup(ctx, row); err != nil {
				return fmt.Errorf("insert group %d: %w", i, err)
			}
		}

		for i, tx := range report.Transactions {
			if err := q.InsertGroupedTransaction(ctx, GroupedTransactionRow{
				RunID:        report.RunID,
				Position:     int64(i),
				Date:         tx.Date.Format(dateLayout),
				Description:  tx.Description,
				AmountCents:  tx.Amount.Cents,
				VendorKey:    tx.VendorKey,
				BucketAmount: tx.BucketAmount.String(),
			}); err != nil {
				return fmt.Errorf("insert grouped transaction %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Analysis run stored",
		log.FieldRunID, report.RunID,
		log.FieldGroups, len(report.Groups),
		log.FieldTransactions, len(report.Transactions))
	return nil
}

// LatestRun returns the most recently generated run, or ErrNoRuns.
func (r *SQLiteRepository) LatestRun(ctx context.Context) (*Run, error) {
	row, err := r.queries.LatestAnalysisRun(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return toRun(row)
}

// Run returns the stored run with the given id, or ErrRunNotFound.
func (r *SQLiteRepository) Run(ctx context.Context, id string) (*Run, error) {
	row, err := r.queries.GetAnalysisRun(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return toRun(row)
}

// CountTransactions returns how many ledger transactions are stored.
func (r *SQLiteRepository) CountTransactions(ctx context.Context) (int, error) {
	n, err := r.queries.CountTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return int(n), nil
}

// RecurringGroups returns the groups of a run in report order.
func (r *SQLiteRepository) RecurringGroups(ctx context.Context, runID string) ([]core.RecurringGroup, error) {
	rows, err := r.queries.ListRecurringGroups(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list groups of run %s: %w", runID, err)
	}

	groups := make([]core.RecurringGroup, 0, len(rows))
	for _, row := range rows {
		g, err := toGroup(row)
		if err != nil {
			return nil, fmt.Errorf("group %d of run %s: %w", row.Position, runID, err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func toRun(row AnalysisRunRow) (*Run, error) {
	generatedAt, err := time.Parse(time.RFC3339Nano, row.GeneratedAt)
	if err != nil {
		return nil, fmt.Errorf("parse generated_at: %w", err)
	}
	return &Run{
		ID:           row.ID,
		GeneratedAt:  generatedAt,
		MatchMode:    core.MatchMode(row.MatchMode),
		Groups:       int(row.GroupCount),
		Transactions: int(row.TransactionCount),
	}, nil
}

func toGroup(row RecurringGroupRow) (core.RecurringGroup, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.RecurringGroup{}, fmt.Errorf("parse amount: %w", err)
	}
	first, err := parseDate(row.FirstDate)
	if err != nil {
		return core.RecurringGroup{}, err
	}
	last, err := parseDate(row.LastDate)
	if err != nil {
		return core.RecurringGroup{}, err
	}

	g := core.RecurringGroup{
		VendorKey: row.VendorKey,
		Amount:    amount,
		Count:     int(row.Count),
		FirstDate: first,
		LastDate:  last,
	}
	if row.MedianGapDays.Valid && row.Pattern.Valid {
		g.Cadence = &core.Cadence{
			MedianGapDays: int(row.MedianGapDays.Int64),
			Pattern:       core.Pattern(row.Pattern.String),
		}
	}
	return g, nil
}

func parseDate(s string) (core.Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return core.Date{Time: t}, nil
}
