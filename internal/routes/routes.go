package routes

import (
	"simulation-training-api/internal/handlers"
	"simulation-training-api/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRoutes wires the HTTP surface around the explicitly constructed
// real-time components.
func SetupRoutes(sessions *handlers.SessionHandler, gateway *handlers.Gateway) *gin.Engine {
	// Create a new GIN Router
	ginRouter := gin.Default()

	// CORS middleware (for frontend integration)
	ginRouter.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check endpoint
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Simulation Training API is running",
		})
	})

	// Public routes (no authentication required)
	api := ginRouter.Group("/api")
	{
		api.POST("/auth/register", handlers.Register)
		api.POST("/auth/login", handlers.Login)
	}

	// Protected routes (authentication required)
	protectedRoutes := api.Group("")
	protectedRoutes.Use(middleware.JWTAuthMiddleware())
	{
		// Users
		protectedRoutes.GET("/users", handlers.GetAllUsers)

		// Scenarios
		protectedRoutes.GET("/scenarios", handlers.ListScenarios)
		protectedRoutes.GET("/scenarios/:id", handlers.GetScenario)
		protectedRoutes.POST("/scenarios", handlers.CreateScenario)

		// Sessions: lifecycle and clock control
		protectedRoutes.POST("/sessions", sessions.CreateSession)
		protectedRoutes.GET("/sessions/:id", sessions.GetSession)
		protectedRoutes.POST("/sessions/:id/start", sessions.StartSession)
		protectedRoutes.POST("/sessions/:id/pause", sessions.PauseSession)
		protectedRoutes.POST("/sessions/:id/resume", sessions.ResumeSession)
		protectedRoutes.POST("/sessions/:id/complete", sessions.CompleteSession)
		protectedRoutes.POST("/sessions/:id/cancel", sessions.CancelSession)
		protectedRoutes.PUT("/sessions/:id/time-mode", sessions.SetTimeMode)
		protectedRoutes.POST("/sessions/:id/fast-forward", sessions.FastForward)

		// Sessions: domain event producer surface
		protectedRoutes.POST("/sessions/:id/events", sessions.ScheduleEvent)
		protectedRoutes.GET("/sessions/:id/events", sessions.ListEvents)
		protectedRoutes.POST("/sessions/:id/notifications", sessions.CreateNotification)
		protectedRoutes.GET("/sessions/:id/notifications", sessions.ListNotifications)
		protectedRoutes.POST("/sessions/:id/feedback", sessions.SendFeedback)
	}

	// WebSocket endpoint (token accepted via query param for browsers)
	ginRouter.GET("/ws", middleware.JWTAuthMiddleware(), gateway.HandleWS)

	return ginRouter
}
