package inventory_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/testing/fixture"
)

func newRouter(env *fixture.Env, p access.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(access.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/inventory", inventory.NewHandler(env.Logger, env.Inventory).MountRoutes)
	return r
}

func TestStockOutHandlerReportsInsufficientStock(t *testing.T) {
	env := fixture.New(t)
	wh := env.Warehouse(t, "MAIN", true)
	p := env.Product(t, "SKU-1", "10.00")
	env.Stock(t, p.ID, wh.ID, 1)
	router := newRouter(env, env.Admin)

	body := fmt.Sprintf(`{"product_id":%d,"warehouse_id":%d,"quantity":4}`, p.ID, wh.ID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inventory/stock-out", strings.NewReader(body)))

	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "insufficient_stock", problem.Code)
	assert.Contains(t, problem.Detail, "requested: 4")
}

func TestStockInHandlerCreatesMovement(t *testing.T) {
	env := fixture.New(t)
	wh := env.Warehouse(t, "MAIN", true)
	p := env.Product(t, "SKU-1", "10.00")
	router := newRouter(env, env.Admin)

	body := fmt.Sprintf(`{"product_id":%d,"warehouse_id":%d,"quantity":6,"notes":"pallet"}`, p.ID, wh.ID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inventory/stock-in", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var res inventory.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(6), res.Stock.Quantity)
	assert.Equal(t, "pallet", res.Transaction.Notes)
}

func TestMovementHandlerRejectsForeignWarehouse(t *testing.T) {
	env := fixture.New(t)
	env.Warehouse(t, "MAIN", true)
	other := env.Warehouse(t, "OTHER", false)
	p := env.Product(t, "SKU-1", "10.00")
	clerk := env.User(t, "clerk")
	router := newRouter(env, clerk)

	body := fmt.Sprintf(`{"product_id":%d,"warehouse_id":%d,"quantity":1}`, p.ID, other.ID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inventory/stock-in", strings.NewReader(body)))

	require.Equal(t, http.StatusForbidden, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, access.CodeScopeDenied, problem.Code)
}
