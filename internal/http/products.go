package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/inventory"
)

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.internalError(w, r, "list products failed", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		h.productError(w, r, "get product failed", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in inventory.NewProduct
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		h.productError(w, r, "create product failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var upd inventory.ProductUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.catalog.Update(r.Context(), chi.URLParam(r, "productId"), upd)
	if err != nil {
		h.productError(w, r, "update product failed", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "productId")); err != nil {
		h.productError(w, r, "delete product failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) productError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "product not found")
	case errors.Is(err, inventory.ErrInvalidProduct):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		h.internalError(w, r, msg, err)
	}
}
