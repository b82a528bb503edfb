package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/ptahnest/ptahnest/internal/app"
	iauth "github.com/ptahnest/ptahnest/internal/auth"
	"github.com/ptahnest/ptahnest/internal/handlers"
	"github.com/ptahnest/ptahnest/internal/middleware"
	"github.com/ptahnest/ptahnest/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, cfg *app.Config, auth *iauth.AuthService, projects *services.ProjectService) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if auth == nil {
		return nil, fmt.Errorf("auth service must be provided")
	}
	if projects == nil {
		return nil, fmt.Errorf("project service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	if cfg.Server.RateLimit.Enabled {
		r.Use(middleware.RateLimit(
			rate.Limit(cfg.Server.RateLimit.RequestsPerSecond),
			cfg.Server.RateLimit.Burst,
		))
	}
	r.Use(middleware.SessionIntegrity(auth.Sessions()))

	// Ambient endpoints
	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(middleware.NotFoundHandler)

	api := r.Group("/api")

	registerAuthRoutes(api, auth, cfg.Server.SecureCookies)
	registerProjectRoutes(api, projects)

	return r, nil
}
