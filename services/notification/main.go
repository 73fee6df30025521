package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/flatmates/flatmates-backend/shared/config"
	"github.com/flatmates/flatmates-backend/shared/models"
	"github.com/flatmates/flatmates-backend/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	// Initialize database connection
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// Auto-migrate the failed notifications table
	if err := db.AutoMigrate(&models.FailedNotification{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize SES mailer
	mailer, err := NewMailer(os.Getenv("AWS_REGION"))
	if err != nil {
		log.Fatal("Failed to initialize SES mailer:", err)
	}

	// Initialize Kafka consumer
	kafkaBroker := os.Getenv("KAFKA_BROKER")
	if kafkaBroker == "" {
		kafkaBroker = "localhost:9092"
	}

	consumer := NewNotificationConsumer(kafkaBroker, db, mailer)
	defer consumer.Close()

	// Start consuming notification events
	go consumer.Run(context.Background())

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Notification service is healthy", nil)
	})

	// Start server
	port := os.Getenv("NOTIFICATION_SERVICE_PORT")
	if port == "" {
		port = "8004"
	}

	logrus.Infof("Notification service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start notification service:", err)
	}
}
