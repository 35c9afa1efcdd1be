package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ricorrenti/internal/amqp"
	"ricorrenti/internal/ledger"
	"ricorrenti/internal/ledger/console"
	"ricorrenti/internal/ledger/csvfile"
	"ricorrenti/internal/ledger/google"
	"ricorrenti/internal/ledger/xlsx"
	"ricorrenti/internal/log"
	"ricorrenti/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger.With(log.FieldComponent, log.ComponentBackend)}
}

// build tracks shared resources while a backend is assembled so that the
// sqlite repository, the AMQP client and the Sheets client are opened once.
type build struct {
	ctx     context.Context
	cfg     Config
	logger  *slog.Logger
	b       *Backend
	sheets  *google.Client
	closers []func() error
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bld := &build{ctx: ctx, cfg: cfg, logger: f.logger, b: &Backend{}}
	if err := bld.assemble(); err != nil {
		if cerr := bld.close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}
	bld.b.Cleanup = bld.close

	names := make([]string, len(bld.b.Sinks))
	for i, s := range bld.b.Sinks {
		names[i] = s.Name
	}
	f.logger.InfoContext(ctx, "Initialized backend",
		log.FieldSource, cfg.Source,
		log.FieldSink, names,
		"amqp_enabled", bld.b.AMQP != nil)
	return bld.b, nil
}

func (bld *build) assemble() error {
	src, err := bld.source()
	if err != nil {
		return err
	}
	bld.b.Source = src

	for _, kind := range bld.cfg.Sinks {
		sink, err := bld.sink(kind)
		if err != nil {
			return err
		}
		if sink != nil {
			bld.b.Sinks = append(bld.b.Sinks, ledger.NamedSink{Name: kind.String(), ReportSink: sink})
		}
	}
	if len(bld.b.Sinks) == 0 {
		return errors.New("no report sink could be initialized")
	}
	return nil
}

func (bld *build) source() (ledger.TransactionSource, error) {
	cfg := bld.cfg
	switch cfg.Source {
	case CSVSource:
		return csvfile.NewSource(cfg.SourcePath, cfg.Columns, bld.logger), nil
	case XLSXSource:
		return xlsx.NewSource(cfg.SourcePath, cfg.XLSXSheet, cfg.Columns, bld.logger), nil
	case SQLiteSource:
		return bld.repository()
	case SheetsSource:
		return bld.sheetsClient()
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Source)
	}
}

// sink returns nil, nil when an optional sink is skipped.
func (bld *build) sink(kind SinkType) (ledger.ReportSink, error) {
	cfg := bld.cfg
	switch kind {
	case CSVSink:
		return csvfile.NewSink(cfg.OutputDir, cfg.SummaryFile, cfg.TransactionsFile, cfg.Columns, bld.logger), nil
	case XLSXSink:
		return xlsx.NewSink(cfg.XLSXReportPath(), cfg.Columns, bld.logger), nil
	case ConsoleSink:
		return console.NewSink(cfg.ConsoleOutput, cfg.PreviewRows), nil
	case SQLiteSink:
		return bld.repository()
	case SheetsSink:
		return bld.sheetsClient()
	case AMQPSink:
		client, err := bld.amqpClient()
		if err != nil {
			if cfg.RequireAMQP {
				return nil, err
			}
			bld.logger.Warn("Failed to initialize AMQP client, continuing without report publishing", log.FieldError, err)
			return nil, nil
		}
		return amqp.NewPublisher(client), nil
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", kind)
	}
}

func (bld *build) repository() (*storage.SQLiteRepository, error) {
	if bld.b.Repository != nil {
		return bld.b.Repository, nil
	}
	repo, err := storage.NewSQLiteRepository(bld.cfg.SQLiteDBPath, bld.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	bld.b.Repository = repo
	bld.closers = append(bld.closers, repo.Close)
	return repo, nil
}

func (bld *build) amqpClient() (*amqp.Client, error) {
	if bld.b.AMQP != nil {
		return bld.b.AMQP, nil
	}
	cfg := bld.cfg
	client, err := amqp.NewClient(bld.ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPReportQueue, bld.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
	}
	bld.b.AMQP = client
	bld.closers = append(bld.closers, client.Close)
	return client, nil
}

func (bld *build) sheetsClient() (*google.Client, error) {
	if bld.sheets != nil {
		return bld.sheets, nil
	}
	cfg := bld.cfg
	client, err := google.New(bld.ctx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		LedgerSheet:     cfg.GoogleSheetName,
		ReportSheet:     cfg.GoogleReportSheetName,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		Columns:         cfg.Columns,
	}, bld.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	bld.sheets = client
	return client, nil
}

// close releases resources in reverse order of acquisition.
func (bld *build) close() error {
	var errs []error
	for i := len(bld.closers) - 1; i >= 0; i-- {
		if err := bld.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	bld.closers = nil
	return errors.Join(errs...)
}

// OpenSource builds only the configured transaction source, for commands that
// read a ledger without producing a report.
func OpenSource(ctx context.Context, cfg Config, logger *slog.Logger) (ledger.TransactionSource, CleanupFunc, error) {
	if err := cfg.validateSource(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	bld := &build{ctx: ctx, cfg: cfg, logger: logger, b: &Backend{}}
	src, err := bld.source()
	if err != nil {
		return nil, nil, errors.Join(err, bld.close())
	}
	return src, bld.close, nil
}

// EnsureAMQP returns the backend's AMQP client, connecting one if the
// configured sinks did not. The worker uses it to consume analysis requests.
func EnsureAMQP(ctx context.Context, b *Backend, cfg Config, logger *slog.Logger) (*amqp.Client, error) {
	if b.AMQP != nil {
		return b.AMQP, nil
	}
	if cfg.AMQPURL == "" {
		return nil, errors.New("AMQP URL is not configured")
	}
	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPReportQueue, logger)
	if err != nil {
		return nil, err
	}
	b.AMQP = client
	prev := b.Cleanup
	b.Cleanup = func() error {
		err := client.Close()
		if prev != nil {
			err = errors.Join(prev(), err)
		}
		return err
	}
	return client, nil
}
