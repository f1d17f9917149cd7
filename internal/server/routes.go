// Package server wires HTTP handlers into a chi router for the signaling
// application.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter configures the application routes. The health and metrics
// endpoints get explicit paths; every other path is the WebSocket upgrade
// endpoint.
func NewRouter(hub *Hub, cfg Config) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/healthz", HealthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.HandleFunc("/*", ServeWs(hub, cfg))
	return r
}
