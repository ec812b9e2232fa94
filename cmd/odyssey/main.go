package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/store/memory"
	"github.com/odyssey-erp/odyssey-pos/jobs"
	"github.com/odyssey-erp/odyssey-pos/migrations"
)

func main() {
	_ = godotenv.Load()
	if app.SkipStartup("api") {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "api")

	var backend app.Backend
	if cfg.UsesMemoryStore() {
		logger.Warn("using in-memory storage; data is lost on exit")
		backend = app.MemoryBackend(memory.New())
	} else {
		if cfg.MigrateOnStart {
			if err := migrate(cfg.PGDSN, logger); err != nil {
				logger.Error("migrate on start", slog.Any("error", err))
				os.Exit(1)
			}
		}
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolConfig("api"))
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		backend = app.PostgresBackend(pool)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Warn("redis unavailable; grant cache and job queue disabled", slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	metrics := observability.NewMetrics()
	deps := app.ServiceDeps{Logger: logger, Metrics: metrics, Transitions: metrics, Tokens: tokens}
	if redisClient != nil {
		deps.Cache = access.NewCache(redisClient, cfg.ScopeCacheTTL)
	}
	services := app.BuildServices(backend, deps)

	if cfg.BootstrapAdminUsername != "" {
		if _, err := services.Users.EnsureAdmin(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword); err != nil {
			logger.Error("bootstrap admin", slog.Any("error", err))
			os.Exit(1)
		}
	}

	opts := app.APIOptions{Metrics: metrics}
	if redisClient != nil {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client, err := jobs.NewClient(redisOpt)
		if err != nil {
			logger.Error("job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		inspector := asynq.NewInspector(redisOpt)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		opts.Queue, opts.Inspector = client, inspector
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      app.NewAPI(cfg, logger, services, opts),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("storage", cfg.StorageDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func migrate(dsn string, logger *slog.Logger) error {
	m, err := db.NewMigrator(migrations.FS, dsn, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("close migrator", slog.Any("error", err))
		}
	}()
	return m.Up()
}
