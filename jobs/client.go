package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Client enqueues tasks.
type Client struct {
	client *asynq.Client
}

func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueReconcile schedules an on-demand reconciliation. A non-empty taskID
// makes the request idempotent: a second enqueue with the same id fails with
// asynq.ErrTaskIDConflict while the first is still retained.
func (c *Client) EnqueueReconcile(ctx context.Context, payload ReconcilePayload, taskID string) (*asynq.TaskInfo, error) {
	if payload.RequestedAt.IsZero() {
		payload.RequestedAt = time.Now().UTC()
	}
	task, err := NewReconcileTask(payload)
	if err != nil {
		return nil, err
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}
	return c.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
