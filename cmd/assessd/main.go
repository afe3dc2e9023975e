// Command assessd runs the pronunciation assessment workers: it consumes
// session-processing and feedback jobs from the queue, scores recorded
// attempts against the Azure Speech service, and writes results back to
// PostgreSQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chippeddog/english.now-sub000/internal/config"
	"github.com/chippeddog/english.now-sub000/internal/feedback"
	"github.com/chippeddog/english.now-sub000/internal/health"
	"github.com/chippeddog/english.now-sub000/internal/observe"
	"github.com/chippeddog/english.now-sub000/internal/pipeline"
	"github.com/chippeddog/english.now-sub000/internal/queue"
	queueinmem "github.com/chippeddog/english.now-sub000/internal/queue/inmem"
	queuepg "github.com/chippeddog/english.now-sub000/internal/queue/postgres"
	"github.com/chippeddog/english.now-sub000/internal/resilience"
	storepg "github.com/chippeddog/english.now-sub000/internal/store/postgres"
	"github.com/chippeddog/english.now-sub000/pkg/provider/speech/azure"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "assessd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "assessd: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("assessd starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"queue_driver", cfg.Queue.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "assessd",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Storage and queue ─────────────────────────────────────────────────────
	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		slog.Error("failed to create database pool", "err", err)
		return 1
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		slog.Error("database unreachable", "err", err)
		return 1
	}
	if err := storepg.Migrate(ctx, pool); err != nil {
		slog.Error("store migration failed", "err", err)
		return 1
	}
	st := storepg.NewWithPool(pool)

	var q queue.Queue
	switch cfg.Queue.Driver {
	case config.QueuePostgres:
		pq, err := queuepg.NewWithPool(ctx, pool)
		if err != nil {
			slog.Error("failed to initialise queue", "err", err)
			return 1
		}
		q = pq
	case config.QueueInmem:
		q = queueinmem.New()
	}

	// ── Speech provider ───────────────────────────────────────────────────────
	azureOpts := []azure.Option{
		azure.WithLanguage(cfg.Azure.Language),
		azure.WithMiscue(cfg.Azure.EnableMiscue),
	}
	azureProvider, err := azure.New(cfg.Azure.Key, cfg.Azure.Region, azureOpts...)
	if err != nil {
		slog.Error("failed to create speech provider", "err", err)
		return 1
	}
	provider := resilience.NewSpeechProvider(azureProvider, resilience.CircuitBreakerConfig{})

	// ── Metrics and health endpoints ──────────────────────────────────────────
	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(
			health.Database(pool),
			health.Checker{Name: "speech", Check: func(_ context.Context) error {
				if provider.State() == resilience.StateOpen {
					return errors.New("circuit breaker open")
				}
				return nil
			}},
		).Register(mux)
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
	}

	// ── Workers ───────────────────────────────────────────────────────────────
	workerOpts := queue.WorkerOptions{
		Concurrency:  cfg.Queue.Concurrency,
		PollInterval: cfg.Queue.PollInterval.Std(),
	}
	jobOpts := queue.Options{
		RetryLimit:   cfg.Queue.RetryLimit,
		RetryDelay:   cfg.Queue.RetryDelay.Std(),
		RetryBackoff: cfg.Queue.RetryBackoff,
		Expire:       cfg.Queue.Expire.Std(),
	}

	var trigger feedback.Trigger
	if cfg.Feedback.Enabled {
		var genOpts []feedback.Option
		if cfg.Feedback.BaseURL != "" {
			genOpts = append(genOpts, feedback.WithBaseURL(cfg.Feedback.BaseURL))
		}
		gen, err := feedback.NewOpenAI(cfg.Feedback.APIKey, cfg.Feedback.Model, genOpts...)
		if err != nil {
			slog.Error("failed to create feedback generator", "err", err)
			return 1
		}
		fw := feedback.NewWorker(st, gen, logger)
		if err := fw.Register(q, workerOpts); err != nil {
			slog.Error("failed to register feedback worker", "err", err)
			return 1
		}
		trigger = &feedback.QueueTrigger{Queue: q, Options: jobOpts}
		slog.Info("feedback generation enabled", "model", cfg.Feedback.Model)
	}

	pw := pipeline.NewWorker(st, provider, trigger,
		pipeline.WithAssessConcurrency(cfg.Queue.AssessConcurrency),
		pipeline.WithLogger(logger),
	)
	if err := pw.Register(q, workerOpts); err != nil {
		slog.Error("failed to register pipeline worker", "err", err)
		return 1
	}

	slog.Info("workers ready — press Ctrl+C to shut down")

	if err := q.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("queue error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown error", "err", err)
		}
	}

	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
