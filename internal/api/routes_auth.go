package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/ptahnest/ptahnest/internal/auth"
	"github.com/ptahnest/ptahnest/internal/handlers"
	"github.com/ptahnest/ptahnest/internal/middleware"
)

func registerAuthRoutes(api *gin.RouterGroup, svc *iauth.AuthService, secureCookies bool) {
	handler := handlers.NewAuthHandler(svc, secureCookies)

	auth := api.Group("/auth")
	{
		auth.POST("/register", handler.Register)
		auth.POST("/login", handler.Login)
		auth.POST("/logout", handler.Logout)
		auth.GET("/me", middleware.RequireAuth(), handler.Me)
	}
}
