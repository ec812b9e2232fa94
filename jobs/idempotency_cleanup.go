package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// DefaultIdempotencyRetention is how long a sale idempotency key blocks replays.
const DefaultIdempotencyRetention = 72 * time.Hour

// IdempotencyCleaner removes keys older than a retention window.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes the idempotency table.
type IdempotencyCleanupJob struct {
	Store   IdempotencyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

func NewIdempotencyCleanupJob(store IdempotencyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	payload := IdempotencyCleanupPayload{}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Retention <= 0 {
		payload.Retention = DefaultIdempotencyRetention
	}

	tracker := j.Metrics.Track("idempotency_cleanup")
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := j.Store.Cleanup(ctx, payload.Retention)
	if err != nil {
		return fmt.Errorf("idempotency cleanup: %w", err)
	}
	if j.Logger != nil {
		j.Logger.Info("idempotency keys pruned",
			slog.Int64("removed", removed),
			slog.Duration("retention", payload.Retention))
	}
	return nil
}
