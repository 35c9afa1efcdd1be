package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ricorrenti/internal/core"
	"ricorrenti/internal/detect"
	"ricorrenti/internal/ledger"
	"ricorrenti/internal/log"
)

// AnalysisService runs one detection pass: load, analyze, report.
type AnalysisService struct {
	source   ledger.TransactionSource
	sinks    []ledger.NamedSink
	analyzer *detect.Analyzer
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(source ledger.TransactionSource, sinks []ledger.NamedSink, analyzer *detect.Analyzer, logger *slog.Logger) (*AnalysisService, error) {
	if source == nil {
		return nil, errors.New("transaction source is required")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		source:   source,
		sinks:    sinks,
		analyzer: analyzer,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Run performs a full analysis. Every sink is attempted; when some fail the
// report is still returned together with the joined sink errors.
func (s *AnalysisService) Run(ctx context.Context) (*core.Report, error) {
	start := s.now()

	txs, err := s.source.Transactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	res, err := s.analyzer.Analyze(txs)
	if err != nil {
		return nil, fmt.Errorf("analyze transactions: %w", err)
	}

	report := &core.Report{
		RunID:        s.newID(),
		GeneratedAt:  s.now().UTC(),
		MatchMode:    res.MatchMode,
		Groups:       res.Groups,
		Transactions: res.Transactions,
	}
	logger := s.logger.With(log.NewFields().
		WithOperation(log.OpAnalyze).
		WithRun(report.RunID, string(report.MatchMode)).
		ToSlice()...)
	for _, g := range report.Groups {
		pattern := ""
		if g.HasCadence() {
			pattern = string(g.Cadence.Pattern)
		}
		logger.DebugContext(ctx, "Recurring group",
			log.NewFields().WithGroup(g.VendorKey, g.Amount.String(), g.Count, pattern).ToSlice()...)
	}

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.WriteReport(ctx, report); err != nil {
			logger.ErrorContext(ctx, "Failed to write report",
				log.FieldSink, sink.Name,
				log.FieldError, err)
			errs = append(errs, fmt.Errorf("write report to %s sink: %w", sink.Name, err))
			continue
		}
		logger.DebugContext(ctx, "Report written", log.FieldOperation, log.OpWrite, log.FieldSink, sink.Name)
	}

	logger.InfoContext(ctx, "Analysis complete",
		log.FieldTransactions, res.Stats.Transactions,
		log.FieldVendors, res.Stats.Vendors,
		log.FieldBuckets, res.Stats.Buckets,
		log.FieldGroups, res.Stats.Groups,
		log.FieldDuration, s.now().Sub(start).Milliseconds(),
		"sinks_failed", len(errs))

	return report, errors.Join(errs...)
}
