package handlers

import "github.com/gin-gonic/gin"

// RegisterAPIRoutes mounts the REST API under /api.
func RegisterAPIRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc, authH *AuthHandler, userH *UserHandler, chatH *ChatHandler) {
	api := router.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authH.Register)
	authGroup.POST("/logon", authH.Login)
	authGroup.POST("/login", authH.Login)

	users := api.Group("/users", authMiddleware)
	users.GET("", userH.ListUsers)
	users.GET("/me", userH.Me)
	users.GET("/:user_id", userH.GetUser)
	users.PUT("/:user_id", userH.UpdateUser)
	users.DELETE("/:user_id", userH.DeleteUser)

	chats := api.Group("/chats", authMiddleware)
	chats.GET("", chatH.ListChats)
	chats.POST("/create", chatH.StartChat)
	chats.GET("/:user_id/messages", chatH.GetChatMessages)
	chats.POST("/:user_id/messages", chatH.PostChatMessage)
}
