// Package httpapi is the HTTP front door: the WebSocket upgrade endpoint and
// the small operational surface beside it (liveness, hub status, metrics).
// History and group administration live in the control-plane service, not
// here.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webitel/im-messaging-service/config"
	"github.com/webitel/im-messaging-service/internal/domain/registry"
	"github.com/webitel/im-messaging-service/internal/handler/ws"
	"github.com/webitel/im-messaging-service/internal/presence"
	"github.com/webitel/im-messaging-service/internal/storage"
)

const healthTimeout = 2 * time.Second

func NewMux(
	cfg *config.Config,
	wsHandler *ws.Handler,
	reg *registry.Registry,
	pres presence.Store,
	store storage.Store,
) *chi.Mux {
	r := chi.NewRouter()

	r.Get(cfg.Server.WSPath, wsHandler.ServeHTTP)
	r.Get("/healthz", healthHandler(pres, store))
	r.Get("/status", statusHandler(reg))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// healthHandler reports liveness plus reachability of both stores. A node
// that cannot reach its stores can still serve typing relays, but it cannot
// honor the delivery contract, so it reports unhealthy.
func healthHandler(pres presence.Store, store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		checks := map[string]string{"presence": "ok", "store": "ok"}
		healthy := true
		if err := pres.Ping(ctx); err != nil {
			checks["presence"] = err.Error()
			healthy = false
		}
		if err := store.Ping(ctx); err != nil {
			checks["store"] = err.Error()
			healthy = false
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
	}
}

// statusHandler serves the registry snapshot the control plane polls.
func statusHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats := reg.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"connected_users":   stats.ConnectedUsers,
			"total_connections": stats.TotalConnections,
			"uptime_seconds":    int64(stats.Uptime.Seconds()),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
