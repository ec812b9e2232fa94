package cli

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/jobs"
)

// JobsCLI wraps manual management helpers for queued jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the helpers against the given Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opt := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opt)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opt)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// TriggerReconcile enqueues an archived reconciliation run. taskID may be
// empty; a repeated non-empty id is rejected by the queue.
func (c *JobsCLI) TriggerReconcile(ctx context.Context, sampleSize int, taskID string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueReconcile(ctx, jobs.ReconcilePayload{SampleSize: sampleSize, Archive: true}, taskID)
}

// InspectQueue reports the default queue.
func (c *JobsCLI) InspectQueue() (jobs.QueueHealth, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueHealth{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.ReadQueueHealth(c.inspector)
}
