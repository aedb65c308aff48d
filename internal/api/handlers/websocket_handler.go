package handlers

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/isdelr/ender-monitor-be/internal/auth"
	ws "github.com/isdelr/ender-monitor-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles upgrading HTTP connections to WebSocket connections.
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. Upgrades are accepted
// from allowedOrigins and from requests that carry no Origin header.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || slices.Contains(allowedOrigins, "*") {
					return true
				}
				if slices.Contains(allowedOrigins, origin) {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			},
		},
	}
}

// Serve handles the WebSocket connection request. The client receives every
// event broadcast after its registration and nothing earlier.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn)
	event := log.Info().Str("client_id", client.ID()).Str("remote", r.RemoteAddr)
	if claims, err := auth.ClaimsFrom(r.Context()); err == nil {
		event = event.Str("subject", claims.Subject)
	}
	event.Msg("WebSocket client connected")
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
