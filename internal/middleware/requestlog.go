package middleware

import (
	"net/http"

	"github.com/pulsewatch/backend/internal/logging"
)

// RequestContextMiddleware adds request attributes to context early in the
// middleware chain, so every log line downstream carries method, path, and
// client IP.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attrs := &logging.RequestAttrs{
			Method: r.Method,
			Path:   r.URL.Path,
			IP:     logging.ExtractClientIP(r),
		}
		ctx := logging.WithRequestAttrs(r.Context(), attrs)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
