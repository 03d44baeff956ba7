package handlers

import "github.com/gin-gonic/gin"

// Routes bundles the handlers mounted by RegisterRoutes.
type Routes struct {
	Auth  *AuthHandler
	Users *UserHandler
	Chats *ChatHandler

	// RequireAuth guards every route except registration and login.
	RequireAuth gin.HandlerFunc
}

// RegisterRoutes mounts the REST API on router.
func RegisterRoutes(router gin.IRouter, r Routes) {
	router.POST("/auth/register", r.Auth.Register)
	router.POST("/auth/login", r.Auth.Login)

	authed := router.Group("/", r.RequireAuth)

	authed.GET("/users/me", r.Users.Me)
	authed.PATCH("/users/me", r.Users.UpdateMe)
	authed.POST("/users/me/avatar", r.Users.UploadAvatar)
	authed.DELETE("/users/me", r.Users.DeleteMe)
	authed.GET("/users/:user_id", r.Users.GetUser)

	authed.GET("/chats", r.Chats.ListChats)
	authed.POST("/chats/start", r.Chats.StartChat)
	authed.GET("/chats/:chat_id", r.Chats.GetChat)
	authed.DELETE("/chats/:chat_id", r.Chats.DeleteChat)
	authed.GET("/chats/:chat_id/messages", r.Chats.GetChatMessages)
	authed.POST("/chats/:chat_id/messages", r.Chats.PostChatMessage)
	authed.GET("/chats/:chat_id/unread", r.Chats.UnreadCount)
	authed.POST("/messages", r.Chats.SendMessage)
}
