package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ptahnest/ptahnest/internal/handlers"
	"github.com/ptahnest/ptahnest/internal/middleware"
	"github.com/ptahnest/ptahnest/internal/services"
)

func registerProjectRoutes(api *gin.RouterGroup, svc *services.ProjectService) {
	handler := handlers.NewProjectHandler(svc)

	projects := api.Group("/projects")

	// Public reads: discovery is open to everyone and single-project
	// lookups answer 404, not 401. An authenticated caller still gets
	// their memberships filtered out of discover.
	projects.GET("/discover", handler.Discover)
	projects.GET("/:id", handler.Get)

	authed := projects.Group("")
	authed.Use(middleware.RequireAuth())
	{
		authed.POST("", handler.Create)
		authed.GET("", handler.List)
		authed.PUT("/:id", handler.Update)
		authed.DELETE("/:id", handler.Delete)
		authed.PATCH("/:id/recruitment", handler.ToggleRecruitment)
		authed.POST("/:id/join", handler.RequestJoin)
		authed.GET("/:id/requests", handler.ListRequests)
		authed.PATCH("/:id/requests/:rid", handler.ResolveRequest)
		authed.GET("/:id/members", handler.ListMembers)
		authed.DELETE("/:id/leave", handler.Leave)
	}
}
