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
	"github.com/odyssey-erp/odyssey-pos/internal/reconcile"
)

// ReconcileRunner produces a reconciliation report.
type ReconcileRunner interface {
	Run(ctx context.Context, sampleSize int) (reconcile.Report, error)
}

// ReconcileJob runs the stock/ledger reconciliation and archives the report.
type ReconcileJob struct {
	Runner  ReconcileRunner
	Archive reconcile.ObjectPutter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReconcileJob wires the handler. archive may be nil.
func NewReconcileJob(runner ReconcileRunner, archive reconcile.ObjectPutter, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{
		Runner:  runner,
		Archive: archive,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one run. A report with critical findings is not a failure;
// it is logged and counted.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Runner == nil {
		return errors.New("reconcile job: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("reconcile job: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	start := j.now()
	tracker := j.Metrics.Track("inventory_reconcile")
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("sample_size", payload.SampleSize))
	if payload.RequestedBy > 0 {
		logger = logger.With(slog.Int64("requested_by", payload.RequestedBy))
	}
	logger.Info("starting reconciliation")

	report, err := j.Runner.Run(ctx, payload.SampleSize)
	if err != nil {
		logger.Error("reconciliation failed", slog.Any("error", err))
		return err
	}
	for _, category := range reconcile.Categories {
		count := report.Summary.Counts[category]
		if count == 0 {
			continue
		}
		j.Metrics.AddFindings(string(category), count)
		logger.Warn("reconciliation findings",
			slog.String("category", string(category)),
			slog.String("group", string(reconcile.GroupOf(category))),
			slog.Int("count", count),
		)
	}

	if payload.Archive && j.Archive != nil {
		name, err := reconcile.Archive(ctx, j.Archive, report)
		if err != nil {
			logger.Error("archive reconciliation report", slog.Any("error", err))
			return err
		}
		logger.Info("reconciliation report archived", slog.String("object", name))
	}

	logger.Info("completed reconciliation",
		slog.Int("findings", report.Summary.Total),
		slog.Int("critical", report.CriticalCount()),
		slog.Bool("manual_review", report.RequiresManualReview),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return nil
}

func (j *ReconcileJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
