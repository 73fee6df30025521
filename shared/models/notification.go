package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification event types carried on the notification-events topic.
const (
	EventBookingRequest  = "booking_request"
	EventBookingAccepted = "booking_accepted"
	EventBookingRejected = "booking_rejected"
)

// NotificationEvent is the Kafka payload for a transactional email.
// It carries everything the notification service needs to render the
// message, so the consumer never has to query the database.
type NotificationEvent struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	Recipient    string    `json:"recipient"`
	TenantName   string    `json:"tenant_name,omitempty"`
	TenantEmail  string    `json:"tenant_email,omitempty"`
	OwnerName    string    `json:"owner_name,omitempty"`
	OwnerEmail   string    `json:"owner_email,omitempty"`
	ListingID    uuid.UUID `json:"listing_id"`
	ListingTitle string    `json:"listing_title"`
	MonthlyPrice int       `json:"monthly_price,omitempty"`
	Message      string    `json:"message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// FailedNotification is a notification email the SES send failed for,
// parked for the retry consumer.
type FailedNotification struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	OriginalEventID string     `json:"original_event_id" gorm:"not null"`
	EventType       string     `json:"event_type" gorm:"not null"`
	Recipient       string     `json:"recipient" gorm:"not null"`
	Subject         string     `json:"subject" gorm:"not null"`
	Body            string     `json:"body" gorm:"not null"`
	ErrorMessage    string     `json:"error_message" gorm:"not null"`
	RetryCount      int        `json:"retry_count" gorm:"default:0"`
	Status          string     `json:"status" gorm:"default:'pending'"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

func (FailedNotification) TableName() string {
	return "failed_notifications"
}
