package main

import (
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/apexshine/apexshine-api/config"
	"github.com/apexshine/apexshine-api/controllers"
	"github.com/apexshine/apexshine-api/middleware"
	"github.com/apexshine/apexshine-api/models"
	"github.com/apexshine/apexshine-api/services"
)

func main() {
	// Basic logging
	log.Println("Starting ApexShine workflow API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := db.AutoMigrate(
		&models.User{},
		&models.Vehicle{},
		&models.CatalogService{},
		&models.ProcessTemplate{},
		&models.ProcessTemplateStage{},
		&models.Booking{},
		&models.BookingServiceLine{},
		&models.Stage{},
		&models.StageImage{},
		&models.AddonRequest{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	// Initialize image storage
	if cfg.AWSS3Bucket != "" {
		s3Service, err := services.InitS3Service()
		if err != nil {
			log.Fatalf("Failed to initialize S3 service: %v", err)
		}
		services.InitImageService(s3Service)
	} else {
		log.Println("AWS_S3_BUCKET not set, stage photo uploads disabled")
	}

	// Initialize the event broadcaster; bridge through Redis when configured
	// so multiple API processes see each other's events
	local := services.NewChannelBroadcaster()
	if cfg.RedisAddr != "" {
		client := services.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		services.InitBroadcaster(services.NewRedisBroadcaster(client, local))
		log.Printf("Event broadcaster bridged through Redis at %s", cfg.RedisAddr)
	} else {
		services.InitBroadcaster(local)
	}

	// Initialize the workflow engines
	broadcaster := services.GetBroadcaster()
	notifier := services.GetNotifier()
	stageEngine := services.InitStageEngine(db, broadcaster, notifier)
	services.InitAddonEngine(db, broadcaster, notifier)
	services.InitWorkQueue(db, stageEngine, broadcaster)

	// Initialize Gin router
	router := setupRouter()

	// Start server
	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter builds the Gin router with all routes registered
func setupRouter() *gin.Engine {
	router := gin.Default()

	// CORS for the booking portal and staff console frontends
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "https://app.apexshine.com"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Database status endpoint
		v1.GET("/database/status", databaseStatus)
	}

	// Authenticated workflow routes
	protected := v1.Group("")
	if cfg := config.GetConfig(); cfg != nil && cfg.Auth0Domain != "" {
		protected.Use(middleware.EnsureValidToken(cfg))
	} else {
		log.Println("AUTH0_DOMAIN not set, running without JWT validation")
	}
	{
		// Profile bootstrap
		protected.POST("/users", controllers.CreateUser)
		protected.GET("/users/me", controllers.GetMyProfile)
		protected.PUT("/users/me", controllers.UpdateMyProfile)

		// Stage pipeline
		protected.POST("/bookings/:id/stages", controllers.InstantiateStages)
		protected.GET("/bookings/:id/stages", controllers.ListStages)
		protected.POST("/stages/:id/start", controllers.StartStage)
		protected.POST("/stages/:id/complete", controllers.CompleteStage)
		protected.POST("/stages/:id/images", controllers.AttachStageImage)
		protected.PATCH("/stages/:id/started-at", controllers.AdjustStartedAt)

		// Addon approval workflow
		protected.POST("/bookings/:id/addon-requests", controllers.SubmitAddon)
		protected.GET("/addon-requests/pending", controllers.ListPendingAddons)
		protected.POST("/addon-requests/:id/approve", controllers.ApproveAddon)
		protected.POST("/addon-requests/:id/reject", controllers.RejectAddon)
		protected.DELETE("/service-lines/:id", controllers.RemoveServiceLine)

		// Work queue
		protected.GET("/work-queue", controllers.GetWorkQueue)
		protected.PUT("/stages/:id/assign", controllers.AssignStage)

		// Event stream
		protected.GET("/events", controllers.StreamEvents)
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "ApexShine workflow API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	// Get list of tables
	var tables []string
	if err := db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public'").Scan(&tables).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
