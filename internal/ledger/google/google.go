// Package google reads ledgers from and writes reports to a Google
// spreadsheet, authenticating with a service account.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ricorrenti/internal/core"
	"ricorrenti/internal/ledger"
	"ricorrenti/internal/log"
)

// Ensure interface conformance
var (
	_ ledger.TransactionSource = (*Client)(nil)
	_ ledger.ReportSink        = (*Client)(nil)
)

type Config struct {
	SpreadsheetID   string
	LedgerSheet     string
	ReportSheet     string
	CredentialsFile string
	CredentialsJSON string
	Columns         ledger.Columns
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerSheet   string
	reportSheet   string
	cols          ledger.Columns
	logger        *slog.Logger
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(log.FieldComponent, log.ComponentSheets)

	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := newSheetsService(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created",
		"spreadsheet_id", cfg.SpreadsheetID,
		"ledger_sheet", cfg.LedgerSheet,
		"report_sheet", cfg.ReportSheet)

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		ledgerSheet:   cfg.LedgerSheet,
		reportSheet:   cfg.ReportSheet,
		cols:          cfg.Columns,
		logger:        logger,
	}, nil
}

// credentials prefers inline JSON over a credentials file.
func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

func newSheetsService(ctx context.Context, creds []byte) (*gsheet.Service, error) {
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func (c *Client) Transactions(ctx context.Context) ([]core.Transaction, error) {
	rng := sheetRange(c.ledgerSheet, "A:Z")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	txs, drops, err := parseLedger(resp.Values, c.cols)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", c.ledgerSheet, err)
	}
	ledger.LogDrops(c.logger, c.ledgerSheet, len(txs), drops)
	return txs, nil
}

// WriteReport replaces the content of the report sheet with the summary table.
func (c *Client) WriteReport(ctx context.Context, report *core.Report) error {
	clearRange := sheetRange(c.reportSheet, "A:Z")
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	vr := &gsheet.ValueRange{Values: reportValues(report)}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, sheetRange(c.reportSheet, "A1"), vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", c.reportSheet, err)
	}

	c.logger.InfoContext(ctx, "Recurring payments written to sheet",
		log.FieldRunID, report.RunID,
		"sheet", c.reportSheet,
		log.FieldGroups, len(report.Groups))
	return nil
}
