package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"ricorrenti/internal/amqp"
	"ricorrenti/internal/cache"
	"ricorrenti/internal/core"
	"ricorrenti/internal/detect"
	"ricorrenti/internal/ledger"
	"ricorrenti/internal/log"
)

// Runner performs one analysis pass.
type Runner interface {
	Run(ctx context.Context) (*core.Report, error)
}

// AnalysisWorker re-runs the analysis periodically and on request. Runs are
// serialised: a trigger arriving during a run waits for it to finish.
type AnalysisWorker struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger

	runMu sync.Mutex
	runs  int

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewAnalysisWorker creates a worker; interval <= 0 disables the ticker.
func NewAnalysisWorker(runner Runner, interval time.Duration, logger *slog.Logger) *AnalysisWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisWorker{
		runner:   runner,
		interval: interval,
		logger:   logger.With(log.FieldComponent, log.ComponentWorker),
	}
}

// RunOnce performs a single analysis, waiting for any run in progress.
func (w *AnalysisWorker) RunOnce(ctx context.Context, reason string) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Starting analysis", "reason", reason)
	report, err := w.runner.Run(ctx)
	w.runs++
	if err != nil {
		if report == nil {
			return fmt.Errorf("analysis run: %w", err)
		}
		// Some sinks failed but the run itself completed.
		w.logger.WarnContext(ctx, "Analysis completed with sink errors",
			log.FieldRunID, report.RunID,
			log.FieldError, err)
		return nil
	}
	w.logger.InfoContext(ctx, "Analysis finished",
		log.FieldRunID, report.RunID,
		log.FieldGroups, len(report.Groups),
		"reason", reason)
	return nil
}

// Runs returns how many analyses have been attempted.
func (w *AnalysisWorker) Runs() int {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.runs
}

// HandleAnalysisRequest processes a request consumed from AMQP. Failures
// that will recur until the ledger or configuration changes are marked
// amqp.Permanent so the request is dropped rather than redelivered.
func (w *AnalysisWorker) HandleAnalysisRequest(ctx context.Context, msg *amqp.AnalysisRequestMessage) error {
	reason := msg.Reason
	if reason == "" {
		reason = "amqp"
	}
	w.logger.InfoContext(ctx, "Processing analysis request",
		"reason", reason,
		"requested_at", msg.RequestedAt)
	err := w.RunOnce(ctx, reason)
	if isPermanent(err) {
		return amqp.Permanent(err)
	}
	return err
}

func isPermanent(err error) bool {
	for _, target := range []error{
		detect.ErrInvalidTransaction,
		ledger.ErrMissingColumn,
		ledger.ErrBadDate,
		core.ErrInvalidAmount,
		core.ErrZeroDate,
		core.ErrEmptyDescription,
		fs.ErrNotExist,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Start runs an initial analysis and then begins the periodic loop.
// Returns an error if already running.
func (w *AnalysisWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("analysis worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	if err := w.RunOnce(ctx, "startup"); err != nil {
		w.logger.ErrorContext(ctx, "Startup analysis failed", log.FieldError, err)
	}

	go w.loop(ctx)

	w.logger.InfoContext(ctx, "Analysis worker started", "interval", w.interval)
	return nil
}

func (w *AnalysisWorker) loop(ctx context.Context) {
	defer close(w.doneCh)
	if w.interval <= 0 {
		select {
		case <-ctx.Done():
		case <-w.stopCh:
		}
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx, "schedule"); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Scheduled analysis failed", log.FieldError, err)
			}
		}
	}
}

// Stop signals the loop to exit and waits for it, bounded by ctx.
func (w *AnalysisWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	select {
	case <-done:
		w.logger.InfoContext(ctx, "Analysis worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Analysis worker stop timed out")
		return ctx.Err()
	}
}

// NewCachedAnalyzer builds an analyzer whose fuzzy scores are memoised in an
// LRU cache registered with manager. The cache is nil for exact matching.
func NewCachedAnalyzer(cfg detect.Config, manager *cache.Manager, size int, ttl time.Duration, logger *slog.Logger) (*detect.Analyzer, *cache.LRUCache[float64], error) {
	opts := []detect.Option{detect.WithLogger(logger)}
	if !cfg.FuzzyMatching {
		a, err := detect.NewAnalyzer(cfg, opts...)
		return a, nil, err
	}

	scores := cache.NewLRUCache[float64](size, ttl)
	if manager != nil {
		manager.Register(scores)
	}
	opts = append(opts, detect.WithMatcher(detect.NewCachedMatcher(detect.NewMatcher(true), scores)))
	a, err := detect.NewAnalyzer(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return a, scores, nil
}
