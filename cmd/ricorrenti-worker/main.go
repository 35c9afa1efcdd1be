// Command ricorrenti-worker keeps the recurring payments report current: it
// re-analyzes the ledger on a schedule and whenever a request arrives on the
// AMQP queue.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"ricorrenti/internal/backend"
	"ricorrenti/internal/cache"
	"ricorrenti/internal/cli"
	"ricorrenti/internal/config"
	"ricorrenti/internal/log"
	"ricorrenti/internal/services"
	"ricorrenti/internal/worker"
)

const (
	cacheSweepInterval = 10 * time.Minute
	shutdownTimeout    = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("Worker failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run() error {
	cli.LoadEnvFile(slog.Default())

	cfg, err := config.LoadFile(os.Getenv("RICORRENTI_CONFIG"))
	if err != nil {
		return err
	}
	applyWorkerDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, log.ComponentWorker)
	logger.Info("Starting ricorrenti-worker",
		log.FieldOperation, log.OpStartup,
		log.FieldSource, cfg.SourceType,
		log.FieldSink, cfg.ReportSinks,
		"interval", cfg.AnalysisInterval)

	// Score cache, swept periodically
	cacheManager := cache.NewManager(logger.Slog())
	cacheManager.StartCleanup(cacheSweepInterval)

	dcfg, err := cfg.Detection()
	if err != nil {
		return err
	}
	analyzer, _, err := worker.NewCachedAnalyzer(dcfg, cacheManager, cfg.ScoreCacheSize, cfg.ScoreCacheTTL,
		logger.WithComponent(log.ComponentDetect).Slog())
	if err != nil {
		return err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStart()
	b, err := backend.NewFactory(logger.Slog()).CreateBackend(startCtx, bcfg)
	if err != nil {
		return err
	}

	svc, err := services.NewAnalysisService(b.Source, b.Sinks, analyzer, logger.Slog())
	if err != nil {
		b.Close()
		return err
	}
	analysisWorker := worker.NewAnalysisWorker(svc, cfg.AnalysisInterval, logger.Slog())

	ctx, done := cli.GracefulShutdown(logger.Slog(), shutdownTimeout, func(ctx context.Context) {
		if err := analysisWorker.Stop(ctx); err != nil {
			logger.Warn("Failed to stop analysis worker", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := b.Close(); err != nil {
			logger.Warn("Failed to release backend resources", log.FieldError, err)
		}
	})

	if err := analysisWorker.Start(ctx); err != nil {
		return err
	}

	if cfg.AMQPURL != "" {
		client, err := backend.EnsureAMQP(ctx, b, bcfg, logger.Slog())
		if err != nil {
			logger.Error("AMQP unavailable, on-demand analysis disabled", log.FieldError, err)
		} else {
			go func() {
				err := client.ConsumeAnalysisRequests(ctx, analysisWorker.HandleAnalysisRequest)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed", log.FieldError, err)
				}
			}()
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided, running on schedule only")
	}

	cli.WaitForShutdown(ctx, done)
	return nil
}

// applyWorkerDefaults points the worker at the SQLite ledger filled by
// "ricorrenti import" unless the environment chose otherwise.
func applyWorkerDefaults(cfg *config.Config) {
	if os.Getenv("SOURCE_TYPE") == "" && cfg.SourcePath == "" {
		cfg.SourceType = config.SourceSQLite
	}
	if os.Getenv("REPORT_SINKS") == "" {
		cfg.ReportSinks = []string{config.SinkSQLite}
		if cfg.AMQPURL != "" {
			cfg.ReportSinks = append(cfg.ReportSinks, config.SinkAMQP)
		}
	}
}
