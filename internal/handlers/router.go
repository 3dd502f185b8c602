package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/config"
	"github.com/mossy-p/meshroom/internal/middleware"
	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/signaling"
)

// NewRouter wires the REST and WebSocket surface. presence may be nil.
func NewRouter(cfg *config.Config, hub *signaling.Hub, presence PresenceCounter, log zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))

	// Global CORS middleware (runs before routing)
	router.Use(middleware.OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	resolveRole := func(identity string) models.Role {
		if cfg.IsPrivileged(identity) {
			return models.RolePrivileged
		}
		return models.RoleStandard
	}

	apiGroup := router.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", Login(cfg.JWTSecret, resolveRole))

		// Member snapshot (public)
		apiGroup.GET("/rooms/:roomId", GetRoom(hub.Registry(), cfg.RoomID, presence, log))
	}

	// WebSocket signaling endpoint
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/signal/:roomId", middleware.JWTAuth(cfg.JWTSecret), HandleSignaling(hub, cfg.RoomID, log))
	}

	return router
}
