package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryReconcile compares stock rows with the ledger.
	TaskInventoryReconcile = "inventory:reconcile"
	// TaskIdempotencyCleanup drops expired sale idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ReconcilePayload tunes one reconciliation run.
type ReconcilePayload struct {
	SampleSize  int       `json:"sample_size"`
	Archive     bool      `json:"archive"`
	RequestedBy int64     `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewReconcileTask constructs the asynq task for payload.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryReconcile, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries the retention of one cleanup run.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the asynq task for payload.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
