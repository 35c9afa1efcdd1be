package backend

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"ricorrenti/internal/config"
	"ricorrenti/internal/ledger"
)

// Config holds configuration for backend creation
type Config struct {
	Source     SourceType
	SourcePath string
	XLSXSheet  string
	Columns    ledger.Columns

	Sinks            []SinkType
	OutputDir        string
	SummaryFile      string
	TransactionsFile string
	XLSXReportFile   string
	PreviewRows      int
	ConsoleOutput    io.Writer // nil means stdout

	SQLiteDBPath string

	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPReportQueue string
	// RequireAMQP makes an unreachable broker fatal instead of dropping the
	// AMQP sink.
	RequireAMQP bool

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleReportSheetName    string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	sinks := make([]SinkType, 0, len(appConfig.ReportSinks))
	for _, s := range appConfig.ReportSinks {
		sinks = append(sinks, SinkType(s))
	}

	cfg := Config{
		Source:     SourceType(appConfig.SourceType),
		SourcePath: appConfig.SourcePath,
		XLSXSheet:  appConfig.XLSXSheet,
		Columns: ledger.Columns{
			Date:        appConfig.DateColumn,
			Description: appConfig.DescriptionColumn,
			Amount:      appConfig.AmountColumn,
			DateLayouts: appConfig.DateLayouts,
		},

		Sinks:            sinks,
		OutputDir:        appConfig.OutputDir,
		SummaryFile:      appConfig.SummaryFile,
		TransactionsFile: appConfig.TransactionsFile,
		XLSXReportFile:   appConfig.XLSXReportFile,
		PreviewRows:      appConfig.PreviewRows,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		AMQPURL:         appConfig.AMQPURL,
		AMQPExchange:    appConfig.AMQPExchange,
		AMQPQueue:       appConfig.AMQPQueue,
		AMQPReportQueue: appConfig.AMQPReportQueue,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleReportSheetName:    appConfig.GoogleReportSheetName,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}

	if len(c.Sinks) == 0 {
		return errors.New("at least one report sink is required")
	}
	for _, s := range c.Sinks {
		if !s.IsValid() {
			return fmt.Errorf("invalid sink type: %s", s)
		}
		if s == AMQPSink && c.AMQPURL == "" {
			return errors.New("AMQP URL is required for amqp sink")
		}
	}

	if c.hasSink(SQLiteSink) && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required for sqlite source or sink")
	}
	return nil
}

func (c Config) validateSource() error {
	if !c.Source.IsValid() {
		return fmt.Errorf("invalid source type: %s", c.Source)
	}
	switch c.Source {
	case CSVSource, XLSXSource:
		if c.SourcePath == "" {
			return fmt.Errorf("source path is required for %s source", c.Source)
		}
	case SheetsSource:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets source")
		}
	case SQLiteSource:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite source or sink")
		}
	}
	return nil
}

func (c Config) hasSink(s SinkType) bool {
	for _, have := range c.Sinks {
		if have == s {
			return true
		}
	}
	return false
}

// XLSXReportPath resolves the workbook path against the output directory.
func (c Config) XLSXReportPath() string {
	if filepath.IsAbs(c.XLSXReportFile) {
		return c.XLSXReportFile
	}
	return filepath.Join(c.OutputDir, c.XLSXReportFile)
}
