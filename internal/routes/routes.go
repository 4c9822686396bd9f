package routes

import (
	"errors"
	"net/http"
	"time"

	"immortal-nexus-api/internal/handlers"
	"immortal-nexus-api/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	errMissingHandler = errors.New("handler dependency required")
	errMissingTokens  = errors.New("token validator dependency required")
)

// Dependencies wires the HTTP surface.
type Dependencies struct {
	Handler *handlers.Handler
	Tokens  middleware.TokenValidator
	Logger  *zap.Logger
}

func SetupRoutes(deps Dependencies) (*gin.Engine, error) {
	if deps.Handler == nil {
		return nil, errMissingHandler
	}
	if deps.Tokens == nil {
		return nil, errMissingTokens
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := deps.Handler

	// Create a new GIN Router
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(requestLogger(logger))

	// CORS middleware (for frontend integration)
	ginRouter.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept", "Origin", "Cache-Control", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Immortal Nexus real-time API is running",
		})
	})
	ginRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.JWTAuthMiddleware(deps.Tokens)

	// WebSocket endpoint; browsers pass the token as ?token=
	ginRouter.GET("/ws", auth, h.WebSocket)

	// Public routes (no authentication required)
	api := ginRouter.Group("/api")
	{
		// Login endpoint
		api.POST("/login", h.Login)
	}

	// Protected routes (authentication required)
	protectedRoutes := api.Group("")
	protectedRoutes.Use(auth)
	{
		// Users endpoint
		protectedRoutes.GET("/users", h.GetAllUsers)
		// Message endpoints
		protectedRoutes.POST("/messages", h.SendMessage)
		protectedRoutes.GET("/messages/:userId", h.GetConversation)
		protectedRoutes.PATCH("/messages/:userId/read", h.MarkConversationRead)
		// Notification endpoints
		protectedRoutes.GET("/notifications", h.GetNotifications)
		protectedRoutes.POST("/notifications", h.CreateNotification)
		protectedRoutes.PATCH("/notifications/read-all", h.MarkAllNotificationsRead)
		protectedRoutes.PATCH("/notifications/:id/read", h.MarkNotificationRead)
		// Events recorded while offline
		protectedRoutes.GET("/events/missed", h.GetMissedEvents)
	}

	return ginRouter, nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
