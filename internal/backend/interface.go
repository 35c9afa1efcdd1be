package backend

import (
	"context"

	"ricorrenti/internal/amqp"
	"ricorrenti/internal/ledger"
	"ricorrenti/internal/storage"
)

// CleanupFunc releases the resources a backend holds.
type CleanupFunc func() error

// Backend is the wired set of adapters an analysis runs against.
type Backend struct {
	Source ledger.TransactionSource
	Sinks  []ledger.NamedSink

	// Set when a sqlite source or sink is configured.
	Repository *storage.SQLiteRepository
	// Set when AMQP is configured and reachable.
	AMQP *amqp.Client

	Cleanup CleanupFunc
}

// Close runs Cleanup if there is one.
func (b *Backend) Close() error {
	if b == nil || b.Cleanup == nil {
		return nil
	}
	return b.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Backend, error)
}

// SourceType selects where transactions are read from.
type SourceType string

const (
	CSVSource    SourceType = "csv"
	XLSXSource   SourceType = "xlsx"
	SQLiteSource SourceType = "sqlite"
	SheetsSource SourceType = "sheets"
)

func (st SourceType) String() string {
	return string(st)
}

func (st SourceType) IsValid() bool {
	switch st {
	case CSVSource, XLSXSource, SQLiteSource, SheetsSource:
		return true
	default:
		return false
	}
}

// SinkType selects where reports are written.
type SinkType string

const (
	CSVSink     SinkType = "csv"
	XLSXSink    SinkType = "xlsx"
	ConsoleSink SinkType = "console"
	SQLiteSink  SinkType = "sqlite"
	AMQPSink    SinkType = "amqp"
	SheetsSink  SinkType = "sheets"
)

func (st SinkType) String() string {
	return string(st)
}

func (st SinkType) IsValid() bool {
	switch st {
	case CSVSink, XLSXSink, ConsoleSink, SQLiteSink, AMQPSink, SheetsSink:
		return true
	default:
		return false
	}
}
