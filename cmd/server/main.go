package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/api"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/db"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/logging"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/notify"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	log.SetOutput(os.Stdout)

	log.Printf("Sync Service starting (GIT_SHA=%s BUILD_TIME=%s)", os.Getenv("GIT_SHA"), os.Getenv("BUILD_TIME"))

	// Initialize database connection
	database, err := db.NewDatabase()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	hub := notify.NewHub()
	handler := api.NewHandler(database, hub)

	router := setupRouter(handler)

	// Get port from environment or use default
	port := os.Getenv("SYNC_PORT")
	if port == "" {
		port = "8084"
	}

	// Set up graceful shutdown
	go func() {
		log.Printf("Starting sync service on port %s", port)
		if err := router.Run(":" + port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down sync service...")
}

func setupRouter(handler *api.Handler) *gin.Engine {
	// Set Gin mode based on environment
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(logging.JSONLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Health and readiness endpoints
	router.GET("/live", func(c *gin.Context) { c.Status(200) })
	router.GET("/ready", handler.Health)
	router.GET("/health", func(c *gin.Context) { c.Status(200) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Storefront webhook, shared-secret protected
	webhook := router.Group("/api/webhook")
	webhook.Use(api.WebhookAuthMiddleware())
	{
		webhook.POST("/orders", handler.IngestOrder)
	}

	// Dashboard API routes with JWT protection
	apiGroup := router.Group("/api")
	apiGroup.Use(api.AuthMiddleware())
	{
		// Polling fallback and order detail
		apiGroup.GET("/orders", handler.ListOrders)
		apiGroup.GET("/orders/:order_id", handler.GetOrder)

		// Operator edits
		apiGroup.PATCH("/orders/:order_id", handler.UpdateOrder)
		apiGroup.PUT("/orders/:order_id/note", handler.UpdateOrderNote)
		apiGroup.DELETE("/orders/:order_id", handler.DeleteOrder)

		// Live sync channels, one stream per dashboard tab
		apiGroup.GET("/events/orders", handler.StreamOrders)
		apiGroup.GET("/events/notes", handler.StreamNotes)
	}

	// Root endpoint for basic info
	router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service": "sync-service",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	return router
}

// corsMiddleware adds CORS headers for the storefront's cross-origin webhook
// calls. The configured origin is echoed when the request matches it;
// anything else still gets the configured origin's exact value.
func corsMiddleware() gin.HandlerFunc {
	allowed := os.Getenv("STOREFRONT_ORIGIN")
	if allowed == "" {
		allowed = "http://localhost:3000"
	}

	return func(c *gin.Context) {
		origin := allowed
		if c.GetHeader("Origin") == allowed {
			origin = c.GetHeader("Origin")
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Webhook-Secret")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
