package stockcheck

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler exposes stocktakes over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Get("/{id}/summary", h.summary)
	r.Post("/{id}/start", h.step(h.service.Start))
	r.Put("/{id}/items/{itemID}", h.record)
	r.Post("/{id}/complete", h.step(h.service.Complete))
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/cancel", h.step(h.service.Cancel))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	check, err := h.service.Create(r.Context(), access.PrincipalFromContext(r.Context()), in)
	if err != nil {
		h.logger.Warn("create inventory check failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, check)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.List(r.Context(), access.PrincipalFromContext(r.Context()), ListFilter{
		Warehouse: q.Get("warehouse"),
		Status:    Status(q.Get("status")),
		Page:      shared.PageRequestFromQuery(q),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	check, err := h.service.Get(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, check)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sum, err := h.service.Summary(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

type stepFunc func(ctx context.Context, p access.Principal, id int64) (*Check, error)

func (h *Handler) step(fn stepFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.URLParamInt64(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		check, err := fn(r.Context(), access.PrincipalFromContext(r.Context()), id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, check)
	}
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
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
	var in RecordInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.RecordItem(r.Context(), access.PrincipalFromContext(r.Context()), id, itemID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

type approveRequest struct {
	Adjust bool `json:"adjust"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req approveRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	check, err := h.service.Approve(r.Context(), access.PrincipalFromContext(r.Context()), id, req.Adjust)
	if err != nil {
		h.logger.Warn("approve inventory check failed", slog.Int64("check_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, check)
}
