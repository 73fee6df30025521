package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/flatmates/flatmates-backend/shared/config"
	"github.com/flatmates/flatmates-backend/shared/models"
)

// emailResender redelivers an already rendered notification email.
type emailResender interface {
	Resend(recipient, subject, body string) error
}

// sesResender sends parked emails through SES.
type sesResender struct {
	ses    *ses.SES
	sender string
}

func newSESResender(region string) (*sesResender, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	sender := os.Getenv("SES_SENDER")
	if sender == "" {
		sender = "Flat Mates <no-reply@flatmates.com>"
	}

	return &sesResender{ses: ses.New(sess), sender: sender}, nil
}

func (sr *sesResender) Resend(recipient, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(sr.sender),
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(recipient)},
		},
		Message: &ses.Message{
			Subject: &ses.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &ses.Body{
				Html: &ses.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := sr.ses.SendEmail(input); err != nil {
		return fmt.Errorf("failed to resend email: %w", err)
	}
	return nil
}

// RetryConsumer retries notification emails that SES rejected earlier.
type RetryConsumer struct {
	db            *gorm.DB
	mailer        emailResender
	maxRetries    int
	batchSize     int
	checkInterval time.Duration
}

// NewRetryConsumer creates a new retry consumer
func NewRetryConsumer(db *gorm.DB, mailer emailResender) *RetryConsumer {
	return &RetryConsumer{
		db:            db,
		mailer:        mailer,
		maxRetries:    8,
		batchSize:     100,
		checkInterval: 30 * time.Second,
	}
}

// ProcessFailedNotifications polls for parked emails ready for retry
func (rc *RetryConsumer) ProcessFailedNotifications() {
	logrus.Info("Starting notification retry consumer...")

	for {
		var failed []models.FailedNotification
		err := rc.db.Where("status = ? AND next_retry_at <= ?", "pending", time.Now()).
			Order("created_at ASC").
			Limit(rc.batchSize).
			Find(&failed).Error

		if err != nil {
			logrus.Errorf("Error fetching failed notifications: %v", err)
			time.Sleep(rc.checkInterval)
			continue
		}

		if len(failed) == 0 {
			time.Sleep(rc.checkInterval)
			continue
		}

		logrus.Infof("Processing %d failed notifications for retry", len(failed))

		for _, notification := range failed {
			if err := rc.retryNotification(notification); err != nil {
				logrus.Errorf("Failed to retry notification %s: %v", notification.ID, err)
			}
		}

		time.Sleep(rc.checkInterval)
	}
}

// retryNotification resends a single parked email. Emails without a
// rendered body can never succeed and are failed permanently.
func (rc *RetryConsumer) retryNotification(failed models.FailedNotification) error {
	if failed.Subject == "" || failed.Body == "" {
		return rc.markPermanentlyFailed(failed, "No rendered email to resend")
	}

	if err := rc.mailer.Resend(failed.Recipient, failed.Subject, failed.Body); err != nil {
		return rc.updateRetryStatus(failed, err)
	}

	return rc.markResolved(failed)
}

// updateRetryStatus bumps the retry count and schedules the next attempt
// with exponential backoff
func (rc *RetryConsumer) updateRetryStatus(failed models.FailedNotification, err error) error {
	failed.RetryCount++
	failed.UpdatedAt = time.Now()

	if failed.RetryCount >= rc.maxRetries {
		failed.Status = "permanently_failed"
		now := time.Now()
		failed.ResolvedAt = &now
		failed.ErrorMessage = fmt.Sprintf("Max retries reached: %s", err.Error())
	} else {
		nextRetryAt := time.Now().Add(retryDelay(failed.RetryCount))
		failed.NextRetryAt = &nextRetryAt
		failed.ErrorMessage = err.Error()
	}

	return rc.db.Save(&failed).Error
}

// retryDelay returns the backoff before the next attempt: 1m, 2m, 4m, ...
func retryDelay(retryCount int) time.Duration {
	baseDelay := 1 * time.Minute
	return baseDelay * time.Duration(1<<(retryCount-1))
}

// markResolved marks a notification as successfully delivered
func (rc *RetryConsumer) markResolved(failed models.FailedNotification) error {
	now := time.Now()
	failed.Status = "resolved"
	failed.UpdatedAt = now
	failed.ResolvedAt = &now

	return rc.db.Save(&failed).Error
}

// markPermanentlyFailed marks a notification as dead (no more retries)
func (rc *RetryConsumer) markPermanentlyFailed(failed models.FailedNotification, reason string) error {
	now := time.Now()
	failed.Status = "permanently_failed"
	failed.UpdatedAt = now
	failed.ResolvedAt = &now
	failed.ErrorMessage = reason

	return rc.db.Save(&failed).Error
}

// GetRetryStats returns retry statistics
func (rc *RetryConsumer) GetRetryStats() map[string]interface{} {
	var stats struct {
		Pending           int64 `json:"pending"`
		Resolved          int64 `json:"resolved"`
		PermanentlyFailed int64 `json:"permanently_failed"`
	}

	rc.db.Model(&models.FailedNotification{}).Where("status = ?", "pending").Count(&stats.Pending)
	rc.db.Model(&models.FailedNotification{}).Where("status = ?", "resolved").Count(&stats.Resolved)
	rc.db.Model(&models.FailedNotification{}).Where("status = ?", "permanently_failed").Count(&stats.PermanentlyFailed)

	return map[string]interface{}{
		"retry_stats": stats,
		"config": map[string]interface{}{
			"max_retries":    rc.maxRetries,
			"batch_size":     rc.batchSize,
			"check_interval": rc.checkInterval.String(),
		},
	}
}

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

	// Initialize SES resender
	mailer, err := newSESResender(os.Getenv("AWS_REGION"))
	if err != nil {
		log.Fatal("Failed to initialize SES resender:", err)
	}

	retryConsumer := NewRetryConsumer(db, mailer)

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "retry-consumer",
		})
	})

	// Retry statistics endpoint
	router.GET("/stats", func(c *gin.Context) {
		stats := retryConsumer.GetRetryStats()
		c.JSON(200, gin.H{
			"success": true,
			"data":    stats,
		})
	})

	// Start retry consumer in background
	go retryConsumer.ProcessFailedNotifications()

	// Start HTTP server
	port := os.Getenv("RETRY_CONSUMER_PORT")
	if port == "" {
		port = "8005"
	}

	logrus.Infof("Retry consumer starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start retry consumer:", err)
	}
}
