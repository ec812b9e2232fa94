package sales

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler exposes the sale lifecycle over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/summary", h.summary)
	r.Get("/{id}", h.show)
	r.Post("/{id}/items", h.addItem)
	r.Delete("/{id}/items/{itemID}", h.removeItem)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/abandon", h.abandon)
	r.Post("/{id}/delete", h.delete)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.IdempotencyKey = r.Header.Get("Idempotency-Key")
	ctx := r.Context()
	sale, err := h.service.Create(ctx, access.PrincipalFromContext(ctx), in)
	if err != nil {
		h.logFailure("create sale", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Warehouse: q.Get("warehouse"),
		Status:    Status(q.Get("status")),
		Page:      shared.PageRequestFromQuery(q),
	}
	filter.IncludeDeleted, _ = strconv.ParseBool(q.Get("include_deleted"))
	var err error
	if filter.From, filter.To, err = dateRange(q.Get("from"), q.Get("to")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), access.PrincipalFromContext(r.Context()), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := SummaryFilter{Warehouse: q.Get("warehouse")}
	var err error
	if filter.From, filter.To, err = dateRange(q.Get("from"), q.Get("to")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.Summary(r.Context(), access.PrincipalFromContext(r.Context()), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Get(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ItemInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.AddItem(r.Context(), access.PrincipalFromContext(r.Context()), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := httpx.URLParamInt64(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.RemoveItem(r.Context(), access.PrincipalFromContext(r.Context()), id, itemID)
	if err != nil {
		h.logFailure("remove sale item", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in CompleteInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	sale, err := h.service.Complete(r.Context(), access.PrincipalFromContext(r.Context()), id, in)
	if err != nil {
		h.logFailure("complete sale", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) abandon(w http.ResponseWriter, r *http.Request) {
	id, reason, ok := h.reasonRequest(w, r)
	if !ok {
		return
	}
	sale, err := h.service.Abandon(r.Context(), access.PrincipalFromContext(r.Context()), id, reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, reason, ok := h.reasonRequest(w, r)
	if !ok {
		return
	}
	res, err := h.service.Delete(r.Context(), access.PrincipalFromContext(r.Context()), id, reason)
	if err != nil {
		h.logFailure("delete sale", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) reasonRequest(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, "", false
	}
	var req reasonRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return 0, "", false
		}
	}
	return id, req.Reason, true
}

func (h *Handler) logFailure(msg string, err error) {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock), errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrForbidden), errors.Is(err, shared.ErrNotFound):
		h.logger.Info(msg+" refused", slog.Any("error", err))
	default:
		h.logger.Error(msg+" failed", slog.Any("error", err))
	}
}

func dateRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromRaw != "" {
		if from, err = time.Parse("2006-01-02", fromRaw); err != nil {
			return from, to, fmt.Errorf("%w: invalid from date", shared.ErrValidation)
		}
	}
	if toRaw != "" {
		if to, err = time.Parse("2006-01-02", toRaw); err != nil {
			return from, to, fmt.Errorf("%w: invalid to date", shared.ErrValidation)
		}
		to = to.AddDate(0, 0, 1)
	}
	return from, to, nil
}
