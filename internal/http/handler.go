package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/middleware"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/order"
)

type Catalog interface {
	List(ctx context.Context) ([]inventory.Product, error)
	Get(ctx context.Context, productID string) (inventory.Product, error)
	Create(ctx context.Context, in inventory.NewProduct) (inventory.Product, error)
	Update(ctx context.Context, productID string, upd inventory.ProductUpdate) (inventory.Product, error)
	Delete(ctx context.Context, productID string) error
}

type Carts interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
	Count(ctx context.Context, userID string) (int, error)
	Add(ctx context.Context, userID, productID string, qty int) (cart.AddResult, error)
	SetQuantity(ctx context.Context, userID, productID string, qty int) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) (int64, error)
}

type Orders interface {
	GetByID(ctx context.Context, orderID string) (order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
	ListAll(ctx context.Context) ([]order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status order.Status) error
}

type Checkouter interface {
	Checkout(ctx context.Context, userID string) checkout.Outcome
}

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service  string
	logger   *zap.Logger
	catalog  Catalog
	carts    Carts
	orders   Orders
	checkout Checkouter
	db       Pinger
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:  d.Service,
		logger:   logger,
		catalog:  d.Catalog,
		carts:    d.Carts,
		orders:   d.Orders,
		checkout: d.Checkout,
		db:       d.DB,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.log(r).Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "service": h.service})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": h.service})
}

func (h *Handler) log(r *http.Request) *zap.Logger {
	return logging.FromOr(r.Context(), h.logger)
}

// internalError logs err and answers with a generic 500.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.log(r).Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "internal error")
}

type errorBody struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, CorrelationID: middleware.CorrelationID(r.Context())})
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
