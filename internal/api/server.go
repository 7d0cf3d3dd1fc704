package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/driftware/harvester/internal/proxy"
	"github.com/driftware/harvester/internal/ratelimit"
)

// SetupRoutes wires the orchestrator's HTTP surface. Session mutation
// endpoints sit behind the per-client rate limiter; the devtools proxy and
// health check do not.
func (h *Handler) SetupRoutes(proxyServer *proxy.Server, rateLimiter *ratelimit.Limiter) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()

	limited := api.PathPrefix("").Subrouter()
	limited.Use(RateLimitMiddleware(rateLimiter))

	limited.HandleFunc("/sessions", h.AcquireSession).Methods("POST")
	limited.HandleFunc("/sessions/{id}", h.ReleaseSession).Methods("DELETE")
	limited.HandleFunc("/sessions/{id}/execute", h.ExecuteOperations).Methods("POST")
	limited.HandleFunc("/batch/discover", h.RunDiscovery).Methods("POST")
	limited.HandleFunc("/batch/process", h.RunBatch).Methods("POST")

	// Read-only endpoints are polled by dashboards, so they skip the limiter.
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}/viewer", h.GetViewer).Methods("GET")
	api.HandleFunc("/sessions/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
		proxyServer.HandleDevtoolsConnection(w, r, mux.Vars(r)["id"])
	}).Methods("GET")

	r.Use(corsMiddleware)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
