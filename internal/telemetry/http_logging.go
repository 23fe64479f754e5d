package telemetry

import (
	"net/http"
	"time"

	"github.com/italolelis/updaterd/internal/logctx"
)

// HTTPLogging logs every request once it completes: 5xx at error, 4xx at warn,
// everything else at info. Handlers get a logger carrying the request id.
func HTTPLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestID(ctx)

		logger := logctx.LoggerFromContext(ctx)
		if requestID != "" {
			logger = logger.With("request_id", requestID)
			ctx = logctx.WithLogger(ctx, logger)
		}

		start := time.Now()
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case wrapped.status >= http.StatusInternalServerError:
			logger.ErrorContext(ctx, "http request completed", attrs...)
		case wrapped.status >= http.StatusBadRequest:
			logger.WarnContext(ctx, "http request completed", attrs...)
		default:
			logger.InfoContext(ctx, "http request completed", attrs...)
		}
	})
}
