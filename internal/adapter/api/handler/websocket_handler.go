package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"fixhub/internal/adapter/api/middleware"
	ws "fixhub/internal/infrastructure/websocket"
	"fixhub/pkg/errors"
)

type WebSocketHandler struct {
	wsManager      *ws.Manager
	authMiddleware *middleware.AuthMiddleware
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict to the portal origins before exposing publicly
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, authMiddleware *middleware.AuthMiddleware) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:      wsManager,
		authMiddleware: authMiddleware,
	}
}

// HandleWebSocket authenticates via the token query parameter (browsers cannot
// set headers on websocket dials) and upgrades the connection.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return errors.Unauthorized("Authentication token required", nil)
	}

	userID, err := h.authMiddleware.GetUIDFromToken(c.Request().Context(), token)
	if err != nil {
		return errors.Unauthorized("Invalid or expired token", err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := ws.NewClient(userID, conn, h.wsManager)

	h.wsManager.Register <- client

	go client.ReadPump()
	go client.WritePump()

	return nil
}
