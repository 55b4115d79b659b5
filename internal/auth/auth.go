package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	TenantHeader    = "X-Tenant-ID"
	UserHeader      = "X-User-ID"
	RequestIDHeader = "X-Request-ID"
)

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	tenantIDKey  contextKey = "tenant_id"
	userIDKey    contextKey = "user_id"
	requestIDKey contextKey = "request_id"
)

// NewMiddleware copies the caller identity set by the hub's auth layer into
// the request context. Tenant checks are left to the handlers.
func NewMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if requestID == "" {
				requestID = uuid.New().String()
			}
			ctx = context.WithValue(ctx, requestIDKey, requestID)
			w.Header().Set(RequestIDHeader, requestID)

			if tenantID := strings.TrimSpace(r.Header.Get(TenantHeader)); tenantID != "" {
				ctx = context.WithValue(ctx, tenantIDKey, tenantID)
			}
			if userID := strings.TrimSpace(r.Header.Get(UserHeader)); userID != "" {
				ctx = context.WithValue(ctx, userIDKey, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func stringValue(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

func GetTenantID(ctx context.Context) string  { return stringValue(ctx, tenantIDKey) }
func GetUserID(ctx context.Context) string    { return stringValue(ctx, userIDKey) }
func GetRequestID(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

// WithTenantID, WithUserID and WithRequestID set identity the way the
// middleware does; used by callers that bypass HTTP.
func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tenantIDKey, id)
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
