package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/middleware"
)

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type stockLimitBody struct {
	Error     string `json:"error"`
	InCart    int    `json:"inCart"`
	Available int    `json:"available"`
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.internalError(w, r, "load cart failed", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) CartCount(w http.ResponseWriter, r *http.Request) {
	n, ok := middleware.CartCountFrom(r.Context())
	if !ok {
		var err error
		if n, err = h.carts.Count(r.Context(), middleware.UserID(r.Context())); err != nil {
			h.internalError(w, r, "count cart failed", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID == "" {
		writeError(w, r, http.StatusBadRequest, "productId is required")
		return
	}

	res, err := h.carts.Add(r.Context(), middleware.UserID(r.Context()), req.ProductID, req.Quantity)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, cart.ErrStockLimit):
		writeJSON(w, http.StatusConflict, stockLimitBody{Error: err.Error(), InCart: res.InCart, Available: res.Available})
	case errors.Is(err, cart.ErrProductNotFound):
		writeError(w, r, http.StatusNotFound, "product not found")
	default:
		h.internalError(w, r, "add cart item failed", err)
	}
}

func (h *Handler) SetCartItem(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Quantity == nil {
		writeError(w, r, http.StatusBadRequest, "quantity is required")
		return
	}

	err := h.carts.SetQuantity(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "productId"), *req.Quantity)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrStockLimit):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, cart.ErrProductNotFound):
		writeError(w, r, http.StatusNotFound, "product not found")
	default:
		h.internalError(w, r, "set cart quantity failed", err)
	}
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Remove(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "productId")); err != nil {
		h.internalError(w, r, "remove cart item failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	n, err := h.carts.Clear(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.internalError(w, r, "clear cart failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}
