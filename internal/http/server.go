// README: API gateway; registers gin routes and delegates to module services.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"dispatch/internal/http/handlers"
	"dispatch/internal/http/middleware"
	"dispatch/internal/infra"
)

type ServerDeps struct {
	Trips          handlers.TripService
	Drivers        handlers.DriverService
	Verifier       infra.TokenVerifier // nil disables auth
	Logger         *slog.Logger
	AllowedOrigins []string
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Logger), middleware.Logging(s.deps.Logger), s.cors())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("")
	if s.deps.Verifier != nil {
		api.Use(middleware.Auth(s.deps.Verifier))
	}

	tripHandler := handlers.NewTripHandler(s.deps.Trips)
	api.POST("/trips", tripHandler.Create)
	api.GET("/trips/:id", tripHandler.Get)
	api.GET("/trips/:id/candidates", tripHandler.Candidates)
	api.POST("/trips/:id/accept", tripHandler.Accept)
	api.POST("/trips/:id/complete", tripHandler.Complete)
	api.POST("/trips/:id/cancel", tripHandler.Cancel)

	driverHandler := handlers.NewDriverHandler(s.deps.Drivers)
	api.GET("/drivers/:id", driverHandler.Get)
	api.PUT("/drivers/:id/location", driverHandler.UpdateLocation)
	api.PUT("/drivers/:id/status", driverHandler.SetStatus)

	return r
}

func (s *Server) cors() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	origins := s.deps.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
