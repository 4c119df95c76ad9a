package http

import (
	"context"
	"net/http"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/httpx"
)

// Pinger is anything readiness depends on (database, redis, backend).
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
}

// ReadyzHandler reports 503 with the failing dependency names when any
// check fails.
func ReadyzHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		failed := map[string]string{}
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			LoggerFrom(r.Context()).Warn("not ready", "failed", failed)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "failed": failed})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ready": true})
	}
}
