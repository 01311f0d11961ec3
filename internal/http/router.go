package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/middleware"
)

type Deps struct {
	Service string
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// RequestTimeout cancels the request context; zero disables it.
	RequestTimeout time.Duration

	// CORSAllowOrigins enables CORS for the listed origins when non-empty.
	CORSAllowOrigins []string

	Catalog  Catalog
	Carts    Carts
	Orders   Orders
	Checkout Checkouter
	DB       Pinger
}

func NewRouter(d Deps) http.Handler {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Correlation(h.logger))
	r.Use(middleware.RequestLogger(h.logger, d.Metrics))
	r.Use(middleware.Recover(h.logger))
	r.Use(middleware.Identity)
	if len(d.CORSAllowOrigins) > 0 {
		r.Use(middleware.CORS(d.CORSAllowOrigins))
	}
	if d.RequestTimeout > 0 {
		r.Use(chimw.Timeout(d.RequestTimeout))
	}

	r.Get("/health", h.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{productId}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)

			r.With(middleware.CartCount(d.Carts)).Get("/cart", h.GetCart)
			r.With(middleware.CartCount(d.Carts)).Get("/cart/count", h.CartCount)
			r.Delete("/cart", h.ClearCart)
			r.Post("/cart/items", h.AddCartItem)
			r.Put("/cart/items/{productId}", h.SetCartItem)
			r.Delete("/cart/items/{productId}", h.RemoveCartItem)

			r.Post("/checkout", h.Checkout)

			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{orderId}", h.GetOrder)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/orders", h.ListAllOrders)
				r.Put("/orders/{orderId}/status", h.UpdateOrderStatus)
				r.Post("/products", h.CreateProduct)
				r.Put("/products/{productId}", h.UpdateProduct)
				r.Delete("/products/{productId}", h.DeleteProduct)
			})
		})
	})

	return r
}
