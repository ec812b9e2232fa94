package warehouses

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	internalshared "github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type Handler struct {
	logger       *slog.Logger
	service      *Service
	requireAdmin func(http.Handler) http.Handler
}

// NewHandler wires the directory endpoints. requireAdmin guards every write.
func NewHandler(logger *slog.Logger, service *Service, requireAdmin func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, service: service, requireAdmin: requireAdmin}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/default", h.ShowDefault)
	r.Get("/{id}", h.Show)
	r.Group(func(r chi.Router) {
		if h.requireAdmin != nil {
			r.Use(h.requireAdmin)
		}
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Post("/{id}/default", h.SetDefault)
		r.Post("/{id}/deactivate", h.Deactivate)
		r.Delete("/{id}", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := internalshared.PageRequestFromQuery(q)
	filters := shared.ListFilters{
		Page:    page.Page,
		Limit:   page.PerPage,
		Search:  q.Get("search"),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	}
	if raw := q.Get("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filters.IsActive = &active
		}
	}
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list warehouses failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": internalshared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	wh, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}

func (h *Handler) ShowDefault(w http.ResponseWriter, r *http.Request) {
	wh, err := h.service.Default(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if wh == nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Warn("create warehouse failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.SetDefault(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.Deactivate(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
