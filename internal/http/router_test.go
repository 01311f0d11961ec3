package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/middleware"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/order"
)

type fakeCatalog struct {
	products map[string]inventory.Product
	created  []inventory.NewProduct
	err      error
}

func (f *fakeCatalog) List(context.Context) ([]inventory.Product, error) {
	out := []inventory.Product{}
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, f.err
}

func (f *fakeCatalog) Get(_ context.Context, id string) (inventory.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalog) Create(_ context.Context, in inventory.NewProduct) (inventory.Product, error) {
	if err := in.Validate(); err != nil {
		return inventory.Product{}, err
	}
	f.created = append(f.created, in)
	return inventory.Product{ID: "new", Name: in.Name, UnitPrice: in.UnitPrice, Stock: in.Stock}, nil
}

func (f *fakeCatalog) Update(_ context.Context, id string, _ inventory.ProductUpdate) (inventory.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalog) Delete(_ context.Context, id string) error {
	if _, ok := f.products[id]; !ok {
		return inventory.ErrNotFound
	}
	delete(f.products, id)
	return nil
}

type fakeCarts struct {
	lines  map[string][]cart.Line
	addRes cart.AddResult
	addErr error
	setErr error
}

func (f *fakeCarts) Get(_ context.Context, userID string) (cart.Cart, error) {
	return cart.Summarize(userID, f.lines[userID]), nil
}

func (f *fakeCarts) Count(_ context.Context, userID string) (int, error) {
	return cart.Summarize(userID, f.lines[userID]).Count, nil
}

func (f *fakeCarts) Add(context.Context, string, string, int) (cart.AddResult, error) {
	return f.addRes, f.addErr
}

func (f *fakeCarts) SetQuantity(context.Context, string, string, int) error {
	return f.setErr
}

func (f *fakeCarts) Remove(context.Context, string, string) error {
	return nil
}

func (f *fakeCarts) Clear(_ context.Context, userID string) (int64, error) {
	n := int64(len(f.lines[userID]))
	delete(f.lines, userID)
	return n, nil
}

type fakeOrders struct {
	orders  map[string]order.Order
	updated map[string]order.Status
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	out := []order.Order{}
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListAll(context.Context) ([]order.Order, error) {
	out := []order.Order{}
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, status order.Status) error {
	if _, ok := f.orders[id]; !ok {
		return order.ErrNotFound
	}
	f.updated[id] = status
	return nil
}

type fakeCheckout struct {
	out    checkout.Outcome
	userID string
}

func (f *fakeCheckout) Checkout(_ context.Context, userID string) checkout.Outcome {
	f.userID = userID
	return f.out
}

type testEnv struct {
	router   http.Handler
	catalog  *fakeCatalog
	carts    *fakeCarts
	orders   *fakeOrders
	checkout *fakeCheckout
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		catalog: &fakeCatalog{products: map[string]inventory.Product{
			"A": {ID: "A", Name: "Apples", UnitPrice: decimal.RequireFromString("10.00"), Stock: 5},
		}},
		carts: &fakeCarts{lines: map[string][]cart.Line{
			"u1": {{ID: 1, UserID: "u1", ProductID: "A", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")}},
		}},
		orders: &fakeOrders{
			orders: map[string]order.Order{
				"o1": {ID: "o1", UserID: "u1", Status: order.StatusPending, Items: []order.Item{}},
			},
			updated: map[string]order.Status{},
		},
		checkout: &fakeCheckout{},
	}
	env.router = NewRouter(Deps{
		Service:  "storefront-go",
		Metrics:  metrics.New(prometheus.NewRegistry()),
		Catalog:  env.catalog,
		Carts:    env.carts,
		Orders:   env.orders,
		Checkout: env.checkout,
	})
	return env
}

func (e *testEnv) do(method, path, body, userID, role string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	if role != "" {
		req.Header.Set(middleware.HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthReportsDatabaseDown(t *testing.T) {
	router := NewRouter(Deps{Service: "storefront-go", DB: downDB{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/api/products", "", "", "")

	rec := env.do(http.MethodGet, "/metrics", "", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `storefront_http_requests_total{method="GET",route="/api/products",status="200"} 1`)
}

func TestProductsArePublic(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/products", "", "", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/products/A", "", "", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/products/missing", "", "", "").Code)
}

func TestCartRequiresUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/cart", "", "", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/cart", "", "u1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get(middleware.HeaderCartCount))
	body := decodeBody(t, rec)
	assert.Equal(t, "20", body["total"])
	assert.EqualValues(t, 2, body["count"])
}

func TestCartCountRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/cart/count", "", "u1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["count"])
}

func TestAddCartItem(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		res    cart.AddResult
		err    error
		status int
	}{
		{name: "added", body: `{"productId":"A","quantity":2}`, res: cart.AddResult{Added: 2, InCart: 2, Available: 5}, status: http.StatusOK},
		{name: "capped", body: `{"productId":"A","quantity":9}`, res: cart.AddResult{Added: 5, InCart: 5, Available: 5, Limited: true}, status: http.StatusOK},
		{name: "no headroom", body: `{"productId":"A","quantity":1}`, res: cart.AddResult{InCart: 5, Available: 5}, err: cart.ErrStockLimit, status: http.StatusConflict},
		{name: "unknown product", body: `{"productId":"X"}`, err: cart.ErrProductNotFound, status: http.StatusNotFound},
		{name: "missing product id", body: `{"quantity":1}`, status: http.StatusBadRequest},
		{name: "bad json", body: `{`, status: http.StatusBadRequest},
		{name: "store down", body: `{"productId":"A"}`, err: errors.New("db down"), status: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.carts.addRes, env.carts.addErr = tc.res, tc.err

			rec := env.do(http.MethodPost, "/api/cart/items", tc.body, "u1", "")

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "db down")
			}
		})
	}
}

func TestSetCartItem(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "set", body: `{"quantity":3}`, status: http.StatusNoContent},
		{name: "zero removes", body: `{"quantity":0}`, status: http.StatusNoContent},
		{name: "negative", body: `{"quantity":-1}`, err: cart.ErrInvalidQuantity, status: http.StatusBadRequest},
		{name: "over stock", body: `{"quantity":99}`, err: cart.ErrStockLimit, status: http.StatusConflict},
		{name: "missing quantity", body: `{}`, status: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.carts.setErr = tc.err

			rec := env.do(http.MethodPut, "/api/cart/items/A", tc.body, "u1", "")

			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestClearCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodDelete, "/api/cart", "", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["removed"])

	rec = env.do(http.MethodDelete, "/api/cart", "", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeBody(t, rec)["removed"])
}

func TestCheckoutResponses(t *testing.T) {
	tests := []struct {
		name     string
		out      checkout.Outcome
		status   int
		contains string
		excludes string
	}{
		{
			name:     "success",
			out:      checkout.Outcome{Kind: checkout.OutcomeSuccess, OrderID: "o-9", Total: decimal.RequireFromString("23.50")},
			status:   http.StatusCreated,
			contains: `"orderId":"o-9"`,
		},
		{
			name:     "empty cart",
			out:      checkout.Outcome{Kind: checkout.OutcomeEmptyCart},
			status:   http.StatusConflict,
			contains: `"error":"cart is empty"`,
		},
		{
			name: "insufficient stock",
			out: checkout.Outcome{
				Kind:      checkout.OutcomeInsufficientStock,
				Shortages: []checkout.Shortage{{ProductID: "A", Requested: 3, Available: 2}},
			},
			status:   http.StatusConflict,
			contains: `{"productId":"A","requested":3,"available":2}`,
		},
		{
			name:     "decrement race",
			out:      checkout.Outcome{Kind: checkout.OutcomeDecrementRace, Err: errors.New("product B raced")},
			status:   http.StatusInternalServerError,
			excludes: "raced",
		},
		{
			name:     "infrastructure",
			out:      checkout.Outcome{Kind: checkout.OutcomeInfrastructure, Err: errors.New("pq: lock timeout")},
			status:   http.StatusInternalServerError,
			excludes: "lock timeout",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.checkout.out = tc.out

			rec := env.do(http.MethodPost, "/api/checkout", "", "u1", "")

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "u1", env.checkout.userID)
			if tc.contains != "" {
				assert.Contains(t, rec.Body.String(), tc.contains)
			}
			if tc.excludes != "" {
				assert.NotContains(t, rec.Body.String(), tc.excludes)
			}
		})
	}
}

func TestGetOrderOwnership(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/orders/o1", "", "u1", "").Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/orders/o1", "", "u2", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/orders/o1", "", "boss", "admin").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/orders/nope", "", "u1", "").Code)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/admin/orders", "", "u1", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/admin/orders", "", "boss", "admin").Code)

	rec := env.do(http.MethodPut, "/api/admin/orders/o1/status", `{"status":"Shipped"}`, "boss", "admin")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, order.StatusShipped, env.orders.updated["o1"])

	rec = env.do(http.MethodPut, "/api/admin/orders/o1/status", `{"status":"lost"}`, "boss", "admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/admin/orders/nope/status", `{"status":"shipped"}`, "boss", "admin")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminProducts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/admin/products", `{"name":"Pears","unitPrice":"2.25","stock":4}`, "boss", "admin")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, env.catalog.created, 1)
	assert.Equal(t, "2.25", env.catalog.created[0].UnitPrice.StringFixed(2))

	rec = env.do(http.MethodPost, "/api/admin/products", `{"name":"","unitPrice":"1","stock":1}`, "boss", "admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/admin/products/A", `{"stock":7}`, "boss", "admin")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/admin/products/A", "", "boss", "admin").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/admin/products/A", "", "boss", "admin").Code)
}
