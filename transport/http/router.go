package http

import (
	"github.com/gin-gonic/gin"
	"github.com/pumppilot/gatekeeper/service"
	"go.uber.org/zap"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewAuthHandlers(authService)

	router.GET("/health", handlers.Health)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/challenge", handlers.Challenge)
		auth.POST("/verify", handlers.Verify)
		auth.POST("/login", handlers.Login)
		auth.POST("/signup", handlers.SignUp)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	return router
}
