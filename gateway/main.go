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

	// Initialize Redis for token claim caching
	if err := utils.InitRedis(); err != nil {
		logrus.Warnf("Failed to connect to Redis, caching disabled: %v", err)
	}

	// Get AWS configuration
	awsRegion := os.Getenv("AWS_REGION")
	cognitoUserPoolID := os.Getenv("COGNITO_USER_POOL_ID")

	if awsRegion == "" || cognitoUserPoolID == "" {
		log.Fatal("AWS_REGION and COGNITO_USER_POOL_ID must be set")
	}

	// Initialize database (auth middleware falls back to the users table
	// for access tokens)
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize authentication middleware
	authMiddleware, err := middleware.NewAuthMiddleware(awsRegion, cognitoUserPoolID, db)
	if err != nil {
		log.Fatal("Failed to initialize auth middleware:", err)
	}

	// Initialize service clients
	serviceClients := &ServiceClients{
		AuthService:         NewServiceClient(os.Getenv("AUTH_SERVICE_URL")),
		ListingService:      NewServiceClient(os.Getenv("LISTING_SERVICE_URL")),
		BookingService:      NewServiceClient(os.Getenv("BOOKING_SERVICE_URL")),
		NotificationService: NewServiceClient(os.Getenv("NOTIFICATION_SERVICE_URL")),
	}

	// Initialize Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "API Gateway is healthy", nil)
	})

	// Aggregated downstream status
	router.GET("/status", func(c *gin.Context) {
		utils.OKResponse(c, "Service status", serviceClients.GetServiceStatus())
	})

	// Authentication routes
	auth := router.Group("/auth")
	{
		auth.POST("/login", serviceClients.AuthService.ProxyRequest)
		auth.POST("/register", serviceClients.AuthService.ProxyRequest)
		auth.POST("/refresh", serviceClients.AuthService.ProxyRequest)
		auth.POST("/logout", authMiddleware.RequireAuth(), serviceClients.AuthService.ProxyRequest)
		auth.GET("/me", authMiddleware.RequireAuth(), serviceClients.AuthService.ProxyRequest)
	}

	// User management routes (admin only)
	users := router.Group("/users")
	users.Use(authMiddleware.RequireAuth(), authMiddleware.RequireAdmin())
	{
		users.GET("/", serviceClients.AuthService.ProxyRequest)
		users.POST("/confirm-email", serviceClients.AuthService.ProxyRequest)
		users.POST("/:id/verify", serviceClients.AuthService.ProxyRequest)
		users.POST("/:id/role", serviceClients.AuthService.ProxyRequest)
	}

	// Listing routes
	listings := router.Group("/listings")
	{
		// Public browse surface
		listings.GET("/search", serviceClients.ListingService.ProxyRequest)
		listings.GET("/:id", serviceClients.ListingService.ProxyRequest)

		// Owner surface
		authed := listings.Group("")
		authed.Use(authMiddleware.RequireAuth())
		{
			authed.POST("/", authMiddleware.RequireVerified(), serviceClients.ListingService.ProxyRequest)
			authed.GET("/mine", serviceClients.ListingService.ProxyRequest)
			authed.PATCH("/:id", serviceClients.ListingService.ProxyRequest)
			authed.DELETE("/:id", serviceClients.ListingService.ProxyRequest)
			authed.DELETE("/:id/tenants/:tenant_id", serviceClients.ListingService.ProxyRequest)
		}
	}

	// Booking routes
	bookings := router.Group("/bookings")
	bookings.Use(authMiddleware.RequireAuth())
	{
		bookings.POST("/", authMiddleware.RequireVerified(), serviceClients.BookingService.ProxyRequest)
		bookings.GET("/listing/:id", serviceClients.BookingService.ProxyRequest)
		bookings.POST("/:id/resolve", serviceClients.BookingService.ProxyRequest)
	}

	// Start server
	port := os.Getenv("API_GATEWAY_PORT")
	if port == "" {
		port = "8080"
	}

	logrus.Infof("API Gateway starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start API Gateway:", err)
	}
}
