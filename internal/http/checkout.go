package httpapi

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/middleware"
)

type checkoutResponse struct {
	OrderID     string          `json:"orderId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type shortageBody struct {
	Error string              `json:"error"`
	Items []checkout.Shortage `json:"items"`
}

// Checkout places an order from the caller's cart. Only user-correctable
// outcomes get a descriptive body; everything else is a bare 500.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	out := h.checkout.Checkout(r.Context(), middleware.UserID(r.Context()))

	switch out.Kind {
	case checkout.OutcomeSuccess:
		writeJSON(w, http.StatusCreated, checkoutResponse{OrderID: out.OrderID, TotalAmount: out.Total})
	case checkout.OutcomeEmptyCart:
		writeError(w, r, http.StatusConflict, "cart is empty")
	case checkout.OutcomeInsufficientStock:
		writeJSON(w, http.StatusConflict, shortageBody{Error: "insufficient stock", Items: out.Shortages})
	default:
		writeError(w, r, http.StatusInternalServerError, "checkout failed")
	}
}
