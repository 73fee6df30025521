package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/flatmates/flatmates-backend/shared/config"
	"github.com/flatmates/flatmates-backend/shared/middleware"
	"github.com/flatmates/flatmates-backend/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	// Initialize Redis for token claim caching and search result cache
	if err := utils.InitRedis(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer utils.CloseRedis()

	// Initialize database
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize authentication middleware
	authMiddleware, err := middleware.NewAuthMiddleware(
		os.Getenv("AWS_REGION"),
		os.Getenv("COGNITO_USER_POOL_ID"),
		db,
	)
	if err != nil {
		log.Fatal("Failed to initialize auth middleware:", err)
	}

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Listing service is healthy", nil)
	})

	listings := router.Group("/listings")
	{
		// Public browse surface
		listings.GET("/search", handleSearchListings(db))
		listings.GET("/:id", handleGetListing(db))

		// Owner surface
		authed := listings.Group("")
		authed.Use(authMiddleware.RequireAuth())
		{
			authed.POST("/", authMiddleware.RequireVerified(), handleCreateListing(db))
			authed.GET("/mine", handleMyListings(db))
			authed.PATCH("/:id", handleEditListing(db))
			authed.DELETE("/:id", handleRemoveListing(db))
			authed.DELETE("/:id/tenants/:tenant_id", handleRemoveTenant(db))
		}
	}

	// Start server
	port := os.Getenv("LISTING_SERVICE_PORT")
	if port == "" {
		port = "8002"
	}

	logrus.Infof("Listing service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start listing service:", err)
	}
}
