package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mind-engage/mindengage-quiz/internal/logger"
)

type logCtxKey struct{}

// RequestLogger logs one line per request and stores a request-scoped logger
// in the context for handlers.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With("request_id", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logCtxKey{}, reqLog)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			kv := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			}
			switch {
			case status >= 500:
				reqLog.Error("http request", kv...)
			case status >= 400:
				reqLog.Warn("http request", kv...)
			default:
				reqLog.Info("http request", kv...)
			}
		})
	}
}

// LoggerFrom returns the request logger, or a no-op logger outside a request.
func LoggerFrom(ctx context.Context) *logger.Logger {
	if l, ok := ctx.Value(logCtxKey{}).(*logger.Logger); ok {
		return l
	}
	return logger.Nop()
}
