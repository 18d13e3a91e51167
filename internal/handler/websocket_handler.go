package handler

import (
	"context"
	"log/slog"
	"net/http"

	"pairchat/internal/middleware"
	"pairchat/internal/observability"
	"pairchat/internal/service"
	ws "pairchat/internal/websocket"

	"github.com/gorilla/websocket"
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub         *ws.Hub
	dispatch    *service.DispatchService
	authService *service.AuthService
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. Origins are matched
// against allowedOrigins; "*" allows everything.
func NewWebSocketHandler(hub *ws.Hub, dispatch *service.DispatchService, authService *service.AuthService, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	wildcard := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			wildcard = true
		}
		allowed[origin] = true
	}

	return &WebSocketHandler{
		hub:         hub,
		dispatch:    dispatch,
		authService: authService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || wildcard {
					return true
				}
				return allowed[origin]
			},
		},
	}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	// Set by the auth middleware
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error":"User not found"}`, http.StatusUnauthorized)
		return
	}

	logger := observability.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("user", user.Username))
		return
	}

	// The request context ends with this handler; the client outlives it.
	client := ws.NewClient(context.Background(), h.hub, conn, user.Username, h.dispatch)

	observability.WebSocketConnectionsActive.Inc()
	logger.Info("websocket connected", slog.String("user", user.Username))

	go client.WritePump()
	go func() {
		client.ReadPump()
		observability.WebSocketConnectionsActive.Dec()
		logger.Info("websocket disconnected", slog.String("user", user.Username))
	}()
}
