package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MegaGrindStone/ollama-web-ui/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestLogger creates request logging middleware. It logs one line per request and records the
// request metrics, labelled with the matched route pattern rather than the raw path.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("module", "http"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}

			logger.Info("Request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", duration),
				slog.String("requestID", middleware.GetReqID(r.Context())),
				slog.String("remoteAddr", r.RemoteAddr),
			)

			metrics.RecordRequest(r.Method, path, strconv.Itoa(status), duration.Seconds())
		})
	}
}
