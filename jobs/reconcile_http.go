package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// ReconcileEnqueuer is satisfied by *Client.
type ReconcileEnqueuer interface {
	EnqueueReconcile(ctx context.Context, payload ReconcilePayload, taskID string) (*asynq.TaskInfo, error)
}

// ReconcileHandler triggers reconciliation over HTTP. With a queue it
// enqueues and answers 202; without one it runs inline and returns the report.
type ReconcileHandler struct {
	queue      ReconcileEnqueuer
	runner     ReconcileRunner
	sampleSize int
	logger     *slog.Logger
}

// NewReconcileHandler wires the trigger. queue may be nil.
func NewReconcileHandler(queue ReconcileEnqueuer, runner ReconcileRunner, sampleSize int, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{queue: queue, runner: runner, sampleSize: sampleSize, logger: logger}
}

// MountRoutes attaches POST /run.
func (h *ReconcileHandler) MountRoutes(r chi.Router) {
	r.Post("/run", h.run)
}

func (h *ReconcileHandler) run(w http.ResponseWriter, r *http.Request) {
	sample := h.sampleSize
	if raw := r.URL.Query().Get("sample_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.RespondError(w, fmt.Errorf("%w: invalid sample_size", shared.ErrValidation))
			return
		}
		sample = n
	}
	var requestedBy int64
	if p := access.PrincipalFromContext(r.Context()); p != nil {
		requestedBy = p.GetID()
	}

	if h.queue != nil {
		payload := ReconcilePayload{SampleSize: sample, Archive: true, RequestedBy: requestedBy}
		info, err := h.queue.EnqueueReconcile(r.Context(), payload, r.Header.Get("Idempotency-Key"))
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			httpx.ProblemCode(w, http.StatusConflict, "Conflict", "reconciliation already requested", "duplicate_request")
			return
		}
		if err != nil {
			h.logger.Error("enqueue reconciliation", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": info.ID, "queue": info.Queue})
		return
	}

	if h.runner == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "reconciliation is not configured")
		return
	}
	report, err := h.runner.Run(r.Context(), sample)
	if err != nil {
		h.logger.Error("run reconciliation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
