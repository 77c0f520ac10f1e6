package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/convwatch/idgen"
	"github.com/hazyhaar/convwatch/kit"
)

// RequestID assigns each request an id (reusing a client X-Request-ID when
// present), stores it under kit.RequestIDKey, echoes it in the response and
// attaches a per-request logger under LoggerKey.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || len(id) > 64 {
				id = idgen.New()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := kit.WithRequestID(kit.WithTransport(r.Context(), "http"), id)
			l := logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)
			ctx = context.WithValue(ctx, LoggerKey, l)
			l.Debug("request")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
