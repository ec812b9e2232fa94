package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/objectstore"
	"github.com/odyssey-erp/odyssey-pos/internal/reconcile"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

func main() {
	_ = godotenv.Load()
	if app.SkipStartup("worker") {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "worker")
	if cfg.UsesMemoryStore() {
		logger.Error("the worker needs postgres; STORAGE_DRIVER=memory is process-local")
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolConfig("worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var archive reconcile.ObjectPutter
	if cfg.ObjectStoreEnabled() {
		store, err := objectstore.New(ctx, objectstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.ReportBucket,
		})
		if err != nil {
			logger.Error("connect object store", slog.Any("error", err))
			os.Exit(1)
		}
		archive = store
	} else {
		logger.Info("object store not configured; reconciliation reports are not archived")
	}

	runner := reconcile.NewService(reconcile.NewPGSource(pool), logger)
	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	reconcileJob := jobs.NewReconcileJob(runner, archive, logger, metrics)

	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, metrics)
	hourly, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{Retention: jobs.DefaultIdempotencyRetention})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	nightly, err := jobs.NewReconcileTask(jobs.ReconcilePayload{SampleSize: cfg.ReconcileSampleSize, Archive: true})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInventoryReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileCron, Task: nightly, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}},
			{Spec: "@hourly", Task: hourly, Options: []asynq.Option{asynq.MaxRetry(1), asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("reconcile_cron", cfg.ReconcileCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
