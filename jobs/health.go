package jobs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// QueueInspector is the slice of *asynq.Inspector used by the health route.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueHealth is the body of GET /jobs/health.
type QueueHealth struct {
	Queue     string  `json:"queue"`
	Pending   int     `json:"pending"`
	Active    int     `json:"active"`
	Scheduled int     `json:"scheduled"`
	Retry     int     `json:"retry"`
	Archived  int     `json:"archived"`
	Paused    bool    `json:"paused"`
	LatencyS  float64 `json:"latency_seconds"`
}

// Handler serves queue health for operators.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler accepts a nil inspector; health then reports an empty queue.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

// ReadQueueHealth snapshots the default queue. A queue that has never seen a
// task reports zero depths.
func ReadQueueHealth(inspector QueueInspector) (QueueHealth, error) {
	out := QueueHealth{Queue: QueueDefault}
	if inspector == nil {
		return out, nil
	}
	info, err := inspector.GetQueueInfo(QueueDefault)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return out, nil
	}
	if err != nil {
		return QueueHealth{}, err
	}
	out.Pending = info.Pending
	out.Active = info.Active
	out.Scheduled = info.Scheduled
	out.Retry = info.Retry
	out.Archived = info.Archived
	out.Paused = info.Paused
	out.LatencyS = info.Latency.Seconds()
	return out, nil
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	out, err := ReadQueueHealth(h.inspector)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.ProblemCode(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue unreachable", "queue_unreachable")
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
