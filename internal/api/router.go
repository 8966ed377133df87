// Package api exposes the local control surface over HTTP: registry CRUD,
// settings, guard status, the backup-secret unlock, and the panic override.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"appguard/internal/api/handlers"
	"appguard/internal/api/middleware"
	"appguard/internal/guard"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Registry  handlers.AppRegistry
	Settings  handlers.SettingsStore
	Control   guard.Control
	Secrets   handlers.SecretManager
	Companion handlers.CompanionSource // nil when companion unlock is not compiled in
	APIKey    string
	Logger    *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.ContentType())

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.GetHealth)

	// API v1 routes (with authentication)
	v1 := router.Group("/v1")
	v1.Use(authMiddleware(config.APIKey))
	{
		appsHandler := handlers.NewAppsHandler(config.Registry, config.Logger)
		v1.GET("/apps", appsHandler.ListApps)
		v1.POST("/apps", appsHandler.CreateApp)
		v1.PATCH("/apps/:id", appsHandler.UpdateApp)
		v1.DELETE("/apps/:id", appsHandler.DeleteApp)

		settingsHandler := handlers.NewSettingsHandler(config.Settings, config.Logger)
		v1.GET("/settings", settingsHandler.GetSettings)
		v1.PATCH("/settings", settingsHandler.UpdateSettings)

		guardHandler := handlers.NewGuardHandler(config.Control, config.Logger)
		v1.GET("/status", guardHandler.GetStatus)
		v1.POST("/unlock", guardHandler.Unlock)
		v1.POST("/retry", guardHandler.Retry)
		v1.POST("/panic", guardHandler.Panic)

		secretHandler := handlers.NewSecretHandler(config.Secrets, config.Logger)
		v1.GET("/secret", secretHandler.GetSecretStatus)
		v1.PUT("/secret", secretHandler.SetSecret)
		v1.DELETE("/secret", secretHandler.DeleteSecret)

		if config.Companion != nil {
			companionHandler := handlers.NewCompanionHandler(config.Companion, config.Logger)
			v1.GET("/companion", companionHandler.GetCompanion)
			v1.POST("/companion/unpair", companionHandler.Unpair)
		}
	}

	return router
}

// authMiddleware verifies API key authentication
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-AppGuard-Key")
		if providedKey != apiKey {
			c.JSON(401, gin.H{
				"error": "Unauthorized",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
