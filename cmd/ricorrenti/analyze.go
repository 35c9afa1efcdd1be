package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ricorrenti/internal/backend"
	"ricorrenti/internal/config"
	"ricorrenti/internal/detect"
	"ricorrenti/internal/log"
	"ricorrenti/internal/services"
)

type analyzeOptions struct {
	source    string
	input     string
	sheet     string
	sinks     []string
	outDir    string
	tolerance string
	minCount  int
	threshold float64
	noFuzzy   bool
	workers   int
	preview   int
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Detect recurring payments and write the reports",
		Long: `Reads the configured ledger, groups transactions by vendor and amount and
writes the recurring payments table and the annotated transactions to every
configured sink.

Example:
  ricorrenti analyze --input statements.csv --sinks csv,console`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.source, "source", "", "ledger source type (csv, xlsx, sqlite, sheets)")
	f.StringVarP(&opts.input, "input", "i", "", "ledger file path for csv and xlsx sources")
	f.StringVar(&opts.sheet, "sheet", "", "worksheet to read from an xlsx ledger")
	f.StringSliceVar(&opts.sinks, "sinks", nil, "report sinks (csv, xlsx, console, sqlite, amqp, sheets)")
	f.StringVarP(&opts.outDir, "out-dir", "o", "", "directory for csv and xlsx reports")
	f.StringVar(&opts.tolerance, "tolerance", "", "maximum amount distance within a bucket, e.g. 1.00")
	f.IntVar(&opts.minCount, "min-count", 0, "minimum occurrences for a recurring group")
	f.Float64Var(&opts.threshold, "threshold", 0, "vendor similarity threshold (0-100)")
	f.BoolVar(&opts.noFuzzy, "no-fuzzy", false, "group vendors by exact description only")
	f.IntVar(&opts.workers, "workers", 0, "vendor groups bucketed concurrently")
	f.IntVar(&opts.preview, "preview", 0, "rows shown by the console sink")
	return cmd
}

// apply copies the flags the user set onto cfg.
func (o *analyzeOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("source") {
		cfg.SourceType = o.source
	}
	if f.Changed("input") {
		cfg.SourcePath = o.input
	}
	if f.Changed("sheet") {
		cfg.XLSXSheet = o.sheet
	}
	if f.Changed("sinks") {
		cfg.ReportSinks = o.sinks
	}
	if f.Changed("out-dir") {
		cfg.OutputDir = o.outDir
	}
	if f.Changed("tolerance") {
		cfg.Tolerance = o.tolerance
	}
	if f.Changed("min-count") {
		cfg.MinCount = o.minCount
	}
	if f.Changed("threshold") {
		cfg.FuzzyThreshold = o.threshold
	}
	if f.Changed("no-fuzzy") {
		cfg.FuzzyMatching = !o.noFuzzy
	}
	if f.Changed("workers") {
		cfg.DetectWorkers = o.workers
	}
	if f.Changed("preview") {
		cfg.PreviewRows = o.preview
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, opts *analyzeOptions) error {
	ctx := cmd.Context()
	cfg, logger, err := root.load(func(c *config.Config) error { return opts.apply(cmd, c) })
	if err != nil {
		return err
	}
	logger = logger.WithFields(log.NewFields().WithOperation(log.OpAnalyze))

	dcfg, err := cfg.Detection()
	if err != nil {
		return err
	}
	analyzer, err := detect.NewAnalyzer(dcfg, detect.WithLogger(logger.WithComponent(log.ComponentDetect).Slog()))
	if err != nil {
		return err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	bcfg.ConsoleOutput = cmd.OutOrStdout()

	b, err := backend.NewFactory(logger.Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("Failed to release backend resources", log.FieldError, err)
		}
	}()

	svc, err := services.NewAnalysisService(b.Source, b.Sinks, analyzer, logger.Slog())
	if err != nil {
		return err
	}
	report, err := svc.Run(ctx)
	if report != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "\nFound %d recurring payment groups in %d transactions (run %s, %s matching)\n",
			len(report.Groups), len(report.Transactions), report.RunID, report.MatchMode)
	}
	return err
}
