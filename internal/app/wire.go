package app

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/reconcile"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/stockcheck"
	"github.com/odyssey-erp/odyssey-pos/internal/store/memory"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

// Backend is the set of repository ports behind the services.
type Backend struct {
	Users       users.RepositoryPort
	Warehouses  warehouses.Repository
	Products    products.Repository
	Grants      access.Repository
	Inventory   inventory.Repository
	Sales       sales.Repository
	Checks      stockcheck.Repository
	Idempotency sales.IdempotencyStore
	Reconcile   reconcile.Source
}

// PostgresBackend wires every port to pool.
func PostgresBackend(pool *pgxpool.Pool) Backend {
	return Backend{
		Users:       users.NewRepository(pool),
		Warehouses:  warehouses.NewRepository(pool),
		Products:    products.NewRepository(pool),
		Grants:      access.NewRepository(pool),
		Inventory:   inventory.NewRepository(pool),
		Sales:       sales.NewRepository(pool),
		Checks:      stockcheck.NewRepository(pool),
		Idempotency: shared.NewIdempotencyStore(pool),
		Reconcile:   reconcile.NewPGSource(pool),
	}
}

// MemoryBackend wires every port to store.
func MemoryBackend(store *memory.Store) Backend {
	return Backend{
		Users:       store.Users(),
		Warehouses:  store.Warehouses(),
		Products:    store.Products(),
		Grants:      store.Grants(),
		Inventory:   store.Inventory(),
		Sales:       store.Sales(),
		Checks:      store.Checks(),
		Idempotency: store.Idempotency(),
		Reconcile:   store.Reconcile(),
	}
}

// Services is the wired service graph.
type Services struct {
	Users      *users.Service
	Warehouses *warehouses.Service
	Products   *products.Service
	Access     *access.Service
	Inventory  *inventory.Service
	Sales      *sales.Service
	Checks     *stockcheck.Service
	Reconcile  *reconcile.Service
	Auth       *auth.Service
}

// ServiceDeps are the optional collaborators of BuildServices.
type ServiceDeps struct {
	Logger      *slog.Logger
	Cache       *access.Cache
	Metrics     inventory.MutationRecorder
	Transitions sales.TransitionRecorder
	Tokens      *auth.TokenIssuer
}

// BuildServices constructs the service graph over b.
func BuildServices(b Backend, deps ServiceDeps) *Services {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Services{}
	svc.Users = users.NewService(b.Users, logger)
	svc.Warehouses = warehouses.NewService(b.Warehouses, logger)
	svc.Products = products.NewService(b.Products)
	svc.Access = access.NewService(b.Grants, svc.Warehouses, deps.Cache, logger)
	svc.Inventory = inventory.NewService(b.Inventory, svc.Users, svc.Access, deps.Metrics, logger)
	svc.Sales = sales.NewService(b.Sales, svc.Inventory, svc.Access, svc.Products, b.Idempotency, logger)
	if deps.Transitions != nil {
		svc.Sales.WithRecorder(deps.Transitions)
	}
	svc.Checks = stockcheck.NewService(b.Checks, svc.Inventory, svc.Access, svc.Products, logger)
	svc.Reconcile = reconcile.NewService(b.Reconcile, logger)
	if deps.Tokens != nil {
		svc.Auth = auth.NewService(svc.Users, deps.Tokens)
	}
	return svc
}

// APIOptions carries the optional pieces of the HTTP surface.
type APIOptions struct {
	Metrics   *observability.Metrics
	Queue     jobs.ReconcileEnqueuer
	Inspector jobs.QueueInspector
}

// NewAPI mounts every handler over svc.
func NewAPI(cfg *Config, logger *slog.Logger, svc *Services, opts APIOptions) http.Handler {
	admin := access.Middleware{Service: svc.Access, Logger: logger}
	sampleSize := 0
	if cfg != nil {
		sampleSize = cfg.ReconcileSampleSize
	}
	return NewRouter(RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          opts.Metrics,
		Auth:             svc.Auth,
		AuthHandler:      auth.NewHandler(logger, svc.Auth),
		WarehouseHandler: warehouses.NewHandler(logger, svc.Warehouses, admin.RequireAdmin),
		AccessHandler:    access.NewHandler(logger, svc.Access),
		ProductHandler:   products.NewHandler(logger, svc.Products, admin.RequireAnyPermission(access.PermProductManage)),
		InventoryHandler: inventory.NewHandler(logger, svc.Inventory),
		SalesHandler:     sales.NewHandler(logger, svc.Sales),
		CheckHandler:     stockcheck.NewHandler(logger, svc.Checks),
		ReconcileHandler: jobs.NewReconcileHandler(opts.Queue, svc.Reconcile, sampleSize, logger),
		JobHandler:       jobs.NewHandler(opts.Inspector, logger),
		AdminMiddleware:  admin.RequireAdmin,
	})
}
