// Package server exposes HTTP handlers, including the WebSocket upgrade
// endpoint and the health check.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// ServeWs returns the WebSocket upgrade handler, bound to the hub it feeds.
// The endpoint accepts the upgrade on any path; plain HTTP requests get an
// empty 204 so probes and crawlers see nothing interesting.
func ServeWs(hub *Hub, cfg Config) http.HandlerFunc {
	policy := newOriginPolicy(cfg.AllowedOrigins)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     policy.check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		peerID, responseHeader := resolveIdentity(r)

		conn, err := upgrader.Upgrade(w, r, responseHeader)
		if err != nil {
			log.Printf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
			return
		}

		client := NewClient(hub, conn, peerID, r.RemoteAddr, cfg)
		hub.Register(client)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Signaling server is running!")
}
