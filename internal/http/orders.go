package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/middleware"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/order"
)

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.internalError(w, r, "list orders failed", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder returns an order receipt. Callers may read their own orders;
// admins may read any.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "order not found")
			return
		}
		h.internalError(w, r, "get order failed", err)
		return
	}
	if o.UserID != middleware.UserID(r.Context()) && !middleware.IsAdmin(r.Context()) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		h.internalError(w, r, "list all orders failed", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err = h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderId"), status)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrInvalidStatus):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		h.internalError(w, r, "update order status failed", err)
	}
}
