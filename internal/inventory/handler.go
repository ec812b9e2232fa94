package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.listStock)
	r.Get("/stock/check", h.checkStock)
	r.Put("/stock/warning-level", h.setWarningLevel)
	r.Get("/transactions", h.listTransactions)
	r.Post("/stock-in", h.movement(h.service.StockIn))
	r.Post("/stock-out", h.movement(h.service.StockOut))
	r.Post("/adjust", h.movement(h.service.Adjust))
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	low, _ := strconv.ParseBool(q.Get("low_stock"))
	page, err := h.service.ListStock(r.Context(), access.PrincipalFromContext(r.Context()), StockFilter{
		Warehouse:    q.Get("warehouse"),
		ProductID:    productID,
		LowStockOnly: low,
		Page:         shared.PageRequestFromQuery(q),
	})
	if err != nil {
		h.logger.Error("list stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) checkStock(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	qty, err := httpx.QueryInt64(r, "quantity")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx := r.Context()
	stock, err := h.service.GetStock(ctx, access.PrincipalFromContext(ctx), productID, warehouseID)
	if err != nil && !isNotFound(err) {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id":   productID,
		"warehouse_id": warehouseID,
		"quantity":     qty,
		"current":      stock.Quantity,
		"available":    h.service.CheckStock(ctx, productID, warehouseID, qty),
	})
}

type warningLevelRequest struct {
	ProductID    int64 `json:"product_id"`
	WarehouseID  int64 `json:"warehouse_id"`
	WarningLevel int64 `json:"warning_level"`
}

func (h *Handler) setWarningLevel(w http.ResponseWriter, r *http.Request) {
	var req warningLevelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx := r.Context()
	stock, err := h.service.SetWarningLevel(ctx, access.PrincipalFromContext(ctx), req.ProductID, req.WarehouseID, req.WarningLevel)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := TransactionFilter{
		Warehouse: q.Get("warehouse"),
		ProductID: productID,
		Type:      TransactionType(q.Get("type")),
		Page:      shared.PageRequestFromQuery(q),
	}
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.AddDate(0, 0, 1)
	}
	page, err := h.service.ListTransactions(r.Context(), access.PrincipalFromContext(r.Context()), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

type movementFunc func(context.Context, access.Principal, MovementInput) (Result, error)

func (h *Handler) movement(apply movementFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in MovementInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
		ctx := r.Context()
		res, err := apply(ctx, access.PrincipalFromContext(ctx), in)
		if err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				h.logger.Info("stock movement refused", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, res)
	}
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", shared.ErrValidation, raw)
	}
	return t, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
