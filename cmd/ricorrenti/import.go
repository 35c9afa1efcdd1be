package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"ricorrenti/internal/backend"
	"ricorrenti/internal/cli"
	"ricorrenti/internal/config"
	"ricorrenti/internal/log"
)

type importOptions struct {
	source string
	input  string
	sheet  string
	name   string
}

func newImportCmd(root *rootOptions) *cobra.Command {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy a ledger into the SQLite database",
		Long: `Reads a csv, xlsx or Google Sheets ledger and stores its transactions in
SQLite, where the worker and "analyze --source sqlite" read them. Importing
the same file twice adds nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.source, "source", "", "ledger source type (csv, xlsx, sheets)")
	f.StringVarP(&opts.input, "input", "i", "", "ledger file path for csv and xlsx sources")
	f.StringVar(&opts.sheet, "sheet", "", "worksheet to read from an xlsx ledger")
	f.StringVar(&opts.name, "name", "", "name recorded for the imported rows (default: input file name)")
	return cmd
}

func runImport(cmd *cobra.Command, root *rootOptions, opts *importOptions) error {
	ctx := cmd.Context()
	cfg, logger, err := root.load(func(c *config.Config) error {
		f := cmd.Flags()
		if f.Changed("source") {
			c.SourceType = opts.source
		}
		if f.Changed("input") {
			c.SourcePath = opts.input
		}
		if f.Changed("sheet") {
			c.XLSXSheet = opts.sheet
		}
		if c.SourceType == config.SourceSQLite {
			return errors.New("import needs a csv, xlsx or sheets source")
		}
		return nil
	})
	if err != nil {
		return err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	src, closeSource, err := backend.OpenSource(ctx, bcfg, logger.Slog())
	if err != nil {
		return err
	}
	defer closeSource()

	txs, err := src.Transactions(ctx)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	repo, err := cli.InitSQLite(logger.Slog(), cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	name := opts.name
	if name == "" {
		name = importName(cfg)
	}
	added, err := repo.ImportTransactions(ctx, name, txs)
	if err != nil {
		return err
	}

	stored, err := repo.CountTransactions(ctx)
	if err != nil {
		return err
	}

	logger.Info("Ledger imported",
		log.FieldOperation, log.OpImport,
		log.FieldSource, name,
		log.FieldTransactions, len(txs),
		"added", added,
		"stored", stored)
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d new of %d transactions from %s into %s (%d stored)\n",
		added, len(txs), name, cfg.SQLiteDBPath, stored)
	return nil
}

func importName(cfg *config.Config) string {
	if cfg.SourceType == config.SourceSheets {
		return "sheets:" + cfg.GoogleSpreadsheetID + "/" + cfg.GoogleSheetName
	}
	return filepath.Base(cfg.SourcePath)
}
