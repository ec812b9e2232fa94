package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

const defaultConcurrency = 4

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration schedules Task on a cron Spec (UTC).
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects what the worker needs to start.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// Worker runs the asynq server and, when cron entries exist, the scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker validates cfg and builds the server, mux and scheduler.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	mux := asynq.NewServeMux()
	registered := make(map[string]bool, len(cfg.Handlers))
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			return nil, fmt.Errorf("jobs: handler for %q is incomplete", h.Type)
		}
		if registered[h.Type] {
			return nil, fmt.Errorf("jobs: duplicate handler for %q", h.Type)
		}
		registered[h.Type] = true
		mux.HandleFunc(h.Type, h.Handler)
	}

	server := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueDefault: 1},
		Logger:      slogAdapter{logger: logger.With(slog.String("component", "asynq"))},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("task failed",
				slog.String("type", task.Type()),
				slog.Int("retry", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err),
			)
		}),
	})

	var scheduler *asynq.Scheduler
	for _, entry := range cfg.Cron {
		if entry.Spec == "" || entry.Task == nil {
			continue
		}
		if !registered[entry.Task.Type()] {
			return nil, fmt.Errorf("jobs: cron task %q has no handler", entry.Task.Type())
		}
		if scheduler == nil {
			scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{
				Location: time.UTC,
				Logger:   slogAdapter{logger: logger.With(slog.String("component", "scheduler"))},
			})
		}
		if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
			return nil, fmt.Errorf("jobs: register cron %q for %s: %w", entry.Spec, entry.Task.Type(), err)
		}
	}

	return &Worker{server: server, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run processes tasks until ctx is cancelled, then drains and returns ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("jobs: worker not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: start server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("jobs: start scheduler: %w", err)
		}
	}
	<-ctx.Done()
	w.logger.Info("worker shutting down")
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return ctx.Err()
}

// slogAdapter routes asynq's internal logging to slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...any) { a.logger.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...any) { a.logger.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }

// Fatal mirrors log.Fatal: asynq expects the process to stop.
func (a slogAdapter) Fatal(args ...any) {
	a.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
