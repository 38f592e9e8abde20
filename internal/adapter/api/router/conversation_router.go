package router

import (
	"github.com/labstack/echo/v4"

	"fixhub/internal/adapter/api/handler"
	"fixhub/internal/adapter/api/middleware"
)

// SetupConversationRouter sets up all conversation routes (excluding WebSocket)
func SetupConversationRouter(e *echo.Echo, conversationHandler *handler.ConversationHandler, authMiddleware *middleware.AuthMiddleware, roleMiddleware *middleware.RoleMiddleware) {
	conversationGroup := e.Group("/v1/conversations")
	conversationGroup.Use(authMiddleware.Authenticate)

	conversationGroup.GET("", conversationHandler.ListConversations)
	conversationGroup.POST("", conversationHandler.CreateConversation, roleMiddleware.InitiatorOnly)

	conversationGroup.GET("/:id/messages", conversationHandler.GetMessages)
	conversationGroup.POST("/:id/messages", conversationHandler.SendMessage)
}
