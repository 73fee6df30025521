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

	// Initialize Kafka producer for notification events
	kafkaBroker := os.Getenv("KAFKA_BROKER")
	if kafkaBroker == "" {
		kafkaBroker = "localhost:9092"
	}

	events, err := NewNotificationProducer(kafkaBroker)
	if err != nil {
		log.Fatal("Failed to initialize Kafka producer:", err)
	}
	defer events.Close()

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Booking service is healthy", nil)
	})

	// Booking routes
	bookings := router.Group("/bookings")
	bookings.Use(authMiddleware.RequireAuth())
	{
		// Prospective tenants file booking requests
		bookings.POST("/", authMiddleware.RequireVerified(), handleBookListing(db, events))

		// Owners review and resolve requests against their listings
		bookings.GET("/listing/:id", handleListPendingReservations(db))
		bookings.POST("/:id/resolve", handleResolveReservation(db, events))
	}

	// Start server
	port := os.Getenv("BOOKING_SERVICE_PORT")
	if port == "" {
		port = "8003"
	}

	logrus.Infof("Booking service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start booking service:", err)
	}
}
