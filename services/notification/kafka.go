package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/flatmates/flatmates-backend/shared/models"
)

const notificationTopic = "notification-events"

// emailSender delivers a rendered notification email. Returning the
// subject and body lets failures be parked verbatim for the retry
// consumer.
type emailSender interface {
	Send(event models.NotificationEvent) (subject, body string, err error)
}

// NotificationConsumer drains notification events from Kafka and turns
// them into emails.
type NotificationConsumer struct {
	reader *kafka.Reader
	db     *gorm.DB
	mailer emailSender
}

// NewNotificationConsumer creates a new Kafka consumer for notification events
func NewNotificationConsumer(broker string, db *gorm.DB, mailer emailSender) *NotificationConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{broker},
		Topic:          notificationTopic,
		GroupID:        "notification-service",
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})

	return &NotificationConsumer{
		reader: reader,
		db:     db,
		mailer: mailer,
	}
}

// Run consumes notification events until the context is cancelled.
func (nc *NotificationConsumer) Run(ctx context.Context) {
	logrus.Info("Starting notification events consumer...")

	for {
		readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		msg, err := nc.reader.ReadMessage(readCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				logrus.Info("Notification consumer shutting down")
				return
			}
			// Timeouts are expected when no messages are available
			if err == context.DeadlineExceeded {
				continue
			}
			logrus.Errorf("Error reading notification message: %v", err)
			time.Sleep(1 * time.Second)
			continue
		}

		var event models.NotificationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logrus.Errorf("Error unmarshaling notification event: %v", err)
			continue
		}

		nc.handleEvent(event)
	}
}

func (nc *NotificationConsumer) handleEvent(event models.NotificationEvent) {
	subject, body, err := nc.mailer.Send(event)
	if err == nil {
		logrus.Infof("Sent %s email to %s for listing %s", event.Type, event.Recipient, event.ListingID)
		return
	}

	logrus.Errorf("Error sending %s email to %s: %v", event.Type, event.Recipient, err)

	if dlqErr := nc.storeFailed(event, subject, body, err); dlqErr != nil {
		logrus.Errorf("Failed to park notification for retry: %v", dlqErr)
	}
}

// storeFailed parks a failed email in failed_notifications so the retry
// consumer can pick it up.
func (nc *NotificationConsumer) storeFailed(event models.NotificationEvent, subject, body string, sendErr error) error {
	nextRetryAt := time.Now().Add(1 * time.Minute)

	failed := models.FailedNotification{
		ID:              uuid.New(),
		OriginalEventID: event.ID.String(),
		EventType:       event.Type,
		Recipient:       event.Recipient,
		Subject:         subject,
		Body:            body,
		ErrorMessage:    sendErr.Error(),
		RetryCount:      0,
		Status:          "pending",
		NextRetryAt:     &nextRetryAt,
	}

	return nc.db.Create(&failed).Error
}

// Close closes the Kafka consumer
func (nc *NotificationConsumer) Close() error {
	if err := nc.reader.Close(); err != nil {
		return fmt.Errorf("failed to close notification reader: %w", err)
	}
	return nil
}
