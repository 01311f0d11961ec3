package middleware

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/logging"
)

const HeaderCorrelationID = "X-Correlation-Id"

// Correlation assigns each request a correlation id, taken from the
// X-Correlation-Id header, chi's request id, or a fresh uuid in that order.
// The id is echoed on the response, attached to events emitted while serving
// the request, and added to a request-scoped logger.
func Correlation(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cid := r.Header.Get(HeaderCorrelationID)
			if cid == "" {
				cid = chimw.GetReqID(r.Context())
			}
			if cid == "" {
				cid = uuid.NewString()
			}
			w.Header().Set(HeaderCorrelationID, cid)

			ctx := context.WithValue(r.Context(), ctxCorrelationID, cid)
			ctx = events.WithMetadata(ctx, events.EnvelopeMetadata{CorrelationID: cid})
			ctx = logging.With(ctx, logger.With(zap.String("correlation_id", cid)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func CorrelationID(ctx context.Context) string {
	s, _ := ctx.Value(ctxCorrelationID).(string)
	return s
}
