package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/stockcheck"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	Auth             *auth.Service
	AuthHandler      *auth.Handler
	WarehouseHandler *warehouses.Handler
	AccessHandler    *access.Handler
	ProductHandler   *products.Handler
	InventoryHandler *inventory.Handler
	SalesHandler     *sales.Handler
	CheckHandler     *stockcheck.Handler
	ReconcileHandler *jobs.ReconcileHandler
	JobHandler       *jobs.Handler
	AdminMiddleware  func(http.Handler) http.Handler
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Auth.RequireUser)

		if params.WarehouseHandler != nil {
			r.Route("/warehouses", params.WarehouseHandler.MountRoutes)
		}
		if params.AccessHandler != nil {
			r.Route("/access", params.AccessHandler.MountRoutes)
		}
		if params.ProductHandler != nil {
			r.Route("/products", params.ProductHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.CheckHandler != nil {
			r.Route("/inventory-checks", params.CheckHandler.MountRoutes)
		}
		r.Group(func(r chi.Router) {
			if params.AdminMiddleware != nil {
				r.Use(params.AdminMiddleware)
			}
			if params.ReconcileHandler != nil {
				r.Route("/reconciliation", params.ReconcileHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	return r
}
