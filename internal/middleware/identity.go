package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"

	RoleAdmin = "admin"
)

type ctxKey string

const (
	ctxUserID        ctxKey = "user_id"
	ctxUserRole      ctxKey = "user_role"
	ctxCorrelationID ctxKey = "correlation_id"
)

// Identity copies the caller's id and role headers into the request context.
// Authentication happens upstream; the headers are trusted as given.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if uid := strings.TrimSpace(r.Header.Get(HeaderUserID)); uid != "" {
			ctx = context.WithValue(ctx, ctxUserID, uid)
		}
		if role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))); role != "" {
			ctx = context.WithValue(ctx, ctxUserRole, role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests without a user id with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserID(r.Context()) == "" {
			writeError(w, r, http.StatusUnauthorized, "missing required header: X-User-Id")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects non-admin callers with 403. Use after RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			writeError(w, r, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UserID(ctx context.Context) string {
	s, _ := ctx.Value(ctxUserID).(string)
	return s
}

func IsAdmin(ctx context.Context) bool {
	role, _ := ctx.Value(ctxUserRole).(string)
	return role == RoleAdmin
}

// WithUser returns ctx carrying the given identity.
func WithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	if role != "" {
		ctx = context.WithValue(ctx, ctxUserRole, role)
	}
	return ctx
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:         msg,
		CorrelationID: CorrelationID(r.Context()),
	})
}
