package access

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Handler exposes warehouse scope lookups and grant administration.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	middleware Middleware
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, middleware: Middleware{Service: service, Logger: logger}}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/warehouses", h.listWarehouses)
	r.Get("/default", h.defaultWarehouse)
	r.Get("/selection", h.selection)
	r.Group(func(r chi.Router) {
		r.Use(h.middleware.RequireAdmin)
		r.Get("/grants", h.listGrants)
		r.Put("/grants", h.upsertGrant)
	})
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	perm, err := ParsePermission(r.URL.Query().Get("permission"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.AccessibleWarehouses(r.Context(), PrincipalFromContext(r.Context()), perm)
	if err != nil {
		h.logger.Error("list accessible warehouses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": list})
}

func (h *Handler) defaultWarehouse(w http.ResponseWriter, r *http.Request) {
	wh, err := h.service.DefaultWarehouse(r.Context(), PrincipalFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouse": wh})
}

func (h *Handler) selection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	perm, err := ParsePermission(q.Get("permission"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	includeAll := true
	if raw := q.Get("include_all"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			includeAll = v
		}
	}
	sel, err := h.service.ResolveSelection(r.Context(), PrincipalFromContext(r.Context()), q.Get("warehouse"), includeAll, perm)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"warehouses":     sel.Warehouses,
		"selected":       sel.Selected,
		"selected_value": sel.SelectedValue,
		"scope_label":    sel.ScopeLabel,
		"scope_ids":      sel.Scope.IDs(),
		"unrestricted":   sel.Scope.IsUnrestricted(),
	})
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.QueryInt64(r, "user_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grants, err := h.service.ListGrants(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(grants))
	for _, g := range grants {
		items = append(items, grantView(g))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) upsertGrant(w http.ResponseWriter, r *http.Request) {
	var input GrantInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	saved, err := h.service.UpsertGrant(r.Context(), input)
	if err != nil {
		h.logger.Warn("upsert grant failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grantView(saved))
}

func grantView(g Grant) map[string]any {
	return map[string]any{
		"id":              g.ID,
		"user_id":         g.UserID,
		"warehouse_id":    g.WarehouseID,
		"is_active":       g.IsActive,
		"is_default":      g.IsDefault,
		"permission_bits": uint32(g.Permissions),
		"permissions":     Labels(g.Permissions),
	}
}
