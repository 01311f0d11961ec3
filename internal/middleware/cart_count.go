package middleware

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/logging"
)

const HeaderCartCount = "X-Cart-Count"

type ctxCartCountKey struct{}

type CartCounter interface {
	Count(ctx context.Context, userID string) (int, error)
}

// CartCount loads the caller's cart badge count into the request context and
// the X-Cart-Count response header. A failed lookup is logged and skipped.
func CartCount(counter CartCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := UserID(r.Context())
			if uid == "" {
				next.ServeHTTP(w, r)
				return
			}
			n, err := counter.Count(r.Context(), uid)
			if err != nil {
				logging.FromContext(r.Context()).Warn("cart count lookup failed", zap.String("user_id", uid), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set(HeaderCartCount, strconv.Itoa(n))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxCartCountKey{}, n)))
		})
	}
}

func CartCountFrom(ctx context.Context) (int, bool) {
	n, ok := ctx.Value(ctxCartCountKey{}).(int)
	return n, ok
}
