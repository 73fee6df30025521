package main

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/flatmates/flatmates-backend/shared/models"
)

type fakeResender struct {
	sent     [][3]string
	failWith error
}

func (f *fakeResender) Resend(recipient, subject, body string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.sent = append(f.sent, [3]string{recipient, subject, body})
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.FailedNotification{}))
	return db
}

func seedFailed(t *testing.T, db *gorm.DB, retryCount int) models.FailedNotification {
	t.Helper()

	nextRetryAt := time.Now().Add(-time.Minute)
	failed := models.FailedNotification{
		ID:              uuid.New(),
		OriginalEventID: uuid.New().String(),
		EventType:       models.EventBookingAccepted,
		Recipient:       "tomas@example.com",
		Subject:         "Your booking request was accepted!",
		Body:            "<p>Great news</p>",
		ErrorMessage:    "ses unavailable",
		RetryCount:      retryCount,
		Status:          "pending",
		NextRetryAt:     &nextRetryAt,
	}
	require.NoError(t, db.Create(&failed).Error)
	return failed
}

func TestRetryResolvesOnSuccess(t *testing.T) {
	db := openTestDB(t)
	mailer := &fakeResender{}
	rc := NewRetryConsumer(db, mailer)

	failed := seedFailed(t, db, 2)
	require.NoError(t, rc.retryNotification(failed))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "tomas@example.com", mailer.sent[0][0])

	var after models.FailedNotification
	require.NoError(t, db.First(&after, "id = ?", failed.ID).Error)
	assert.Equal(t, "resolved", after.Status)
	assert.NotNil(t, after.ResolvedAt)
}

func TestRetrySchedulesBackoffOnFailure(t *testing.T) {
	db := openTestDB(t)
	mailer := &fakeResender{failWith: errors.New("still down")}
	rc := NewRetryConsumer(db, mailer)

	failed := seedFailed(t, db, 0)
	require.NoError(t, rc.retryNotification(failed))

	var after models.FailedNotification
	require.NoError(t, db.First(&after, "id = ?", failed.ID).Error)
	assert.Equal(t, "pending", after.Status)
	assert.Equal(t, 1, after.RetryCount)
	assert.Equal(t, "still down", after.ErrorMessage)
	require.NotNil(t, after.NextRetryAt)
	assert.True(t, after.NextRetryAt.After(time.Now()))
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	db := openTestDB(t)
	mailer := &fakeResender{failWith: errors.New("still down")}
	rc := NewRetryConsumer(db, mailer)

	failed := seedFailed(t, db, rc.maxRetries-1)
	require.NoError(t, rc.retryNotification(failed))

	var after models.FailedNotification
	require.NoError(t, db.First(&after, "id = ?", failed.ID).Error)
	assert.Equal(t, "permanently_failed", after.Status)
	assert.Contains(t, after.ErrorMessage, "Max retries reached")
	assert.NotNil(t, after.ResolvedAt)
}

func TestRetryWithoutBodyFailsPermanently(t *testing.T) {
	db := openTestDB(t)
	mailer := &fakeResender{}
	rc := NewRetryConsumer(db, mailer)

	failed := seedFailed(t, db, 0)
	failed.Body = ""
	require.NoError(t, db.Save(&failed).Error)

	require.NoError(t, rc.retryNotification(failed))

	assert.Empty(t, mailer.sent)
	var after models.FailedNotification
	require.NoError(t, db.First(&after, "id = ?", failed.ID).Error)
	assert.Equal(t, "permanently_failed", after.Status)
}

func TestRetryDelayDoubles(t *testing.T) {
	assert.Equal(t, time.Minute, retryDelay(1))
	assert.Equal(t, 2*time.Minute, retryDelay(2))
	assert.Equal(t, 4*time.Minute, retryDelay(3))
	assert.Equal(t, 64*time.Minute, retryDelay(7))
}
