package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/store/memory"
)

type recordingCleaner struct {
	olderThan time.Duration
	removed   int64
	err       error
}

func (r *recordingCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	r.olderThan = olderThan
	return r.removed, r.err
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &recordingCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, nil, nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, DefaultIdempotencyRetention, cleaner.olderThan)

	task, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{Retention: time.Hour})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, cleaner.olderThan)
}

func TestIdempotencyCleanupCountsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewIdempotencyCleanupJob(&recordingCleaner{err: errors.New("db down")}, nil, metrics)

	err := job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil))
	require.Error(t, err)

	bad := asynq.NewTask(TaskIdempotencyCleanup, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	families, err := reg.Gather()
	require.NoError(t, err)
	var failures float64
	for _, fam := range families {
		if fam.GetName() != "odyssey_jobs_failures_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			failures += m.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(1), failures)
}

func TestIdempotencyCleanupReleasesExpiredKeys(t *testing.T) {
	store := memory.New()
	keys := store.Idempotency()
	ctx := context.Background()
	require.NoError(t, keys.CheckAndInsert(ctx, "k1", "sales"))
	require.ErrorIs(t, keys.CheckAndInsert(ctx, "k1", "sales"), shared.ErrIdempotencyConflict)
	require.ErrorIs(t, keys.CheckAndInsert(ctx, "", "sales"), shared.ErrValidation)

	job := NewIdempotencyCleanupJob(keys, nil, nil)
	task, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{Retention: time.Nanosecond})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, job.Handle(ctx, task))

	require.NoError(t, keys.CheckAndInsert(ctx, "k1", "sales"))
}
