package main

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatmates/flatmates-backend/shared/models"
	"github.com/flatmates/flatmates-backend/shared/utils"
)

type fakeSES struct {
	inputs   []*ses.SendEmailInput
	failWith error
}

func (f *fakeSES) SendEmail(input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.inputs = append(f.inputs, input)
	return &ses.SendEmailOutput{}, nil
}

func sampleEvent(eventType string) models.NotificationEvent {
	return models.NotificationEvent{
		ID:           uuid.New(),
		Type:         eventType,
		Recipient:    "tomas@example.com",
		TenantName:   "Tomas Novak",
		TenantEmail:  "tomas@example.com",
		OwnerName:    "Olga Ownerova",
		OwnerEmail:   "olga@example.com",
		ListingID:    uuid.New(),
		ListingTitle: "Sunny room in Vinohrady",
		MonthlyPrice: 650,
		Message:      "Is the room still free?",
		Timestamp:    time.Now(),
	}
}

func TestRenderBookingRequestEmail(t *testing.T) {
	event := sampleEvent(models.EventBookingRequest)

	subject, body, err := renderEmail(event, "https://flatmates.com")
	require.NoError(t, err)

	assert.Equal(t, "Wohooo! Someone is interested in your listing!", subject)
	assert.Contains(t, body, "Olga Ownerova")
	assert.Contains(t, body, "Tomas Novak wants to live in Sunny room in Vinohrady")
	assert.Contains(t, body, "Is the room still free?")
	assert.Contains(t, body, "https://flatmates.com/listing/"+event.ListingID.String()+"/dashboard")
	assert.Contains(t, body, "tomas@example.com")
}

func TestRenderBookingRequestEmailWithoutMessage(t *testing.T) {
	event := sampleEvent(models.EventBookingRequest)
	event.Message = ""

	_, body, err := renderEmail(event, "https://flatmates.com")
	require.NoError(t, err)
	assert.NotContains(t, body, "left you a message")
}

func TestRenderBookingAcceptedEmail(t *testing.T) {
	event := sampleEvent(models.EventBookingAccepted)

	subject, body, err := renderEmail(event, "https://flatmates.com")
	require.NoError(t, err)

	assert.Equal(t, "Your booking request was accepted!", subject)
	assert.Contains(t, body, "Great news Tomas Novak")
	assert.Contains(t, body, "Monthly rent: $650")
	assert.Contains(t, body, "olga@example.com")
}

func TestRenderBookingRejectedEmail(t *testing.T) {
	event := sampleEvent(models.EventBookingRejected)

	subject, body, err := renderEmail(event, "https://flatmates.com")
	require.NoError(t, err)

	assert.Equal(t, "An update on your booking request", subject)
	assert.Contains(t, body, "Hi Tomas Novak")
	assert.Contains(t, body, "was not accepted at this time")
	// Rejections never leak the owner's contact details
	assert.NotContains(t, body, "olga@example.com")
}

func TestRenderUnknownEventType(t *testing.T) {
	event := sampleEvent("listing_deleted")

	_, _, err := renderEmail(event, "https://flatmates.com")
	assert.Error(t, err)
}

func TestMailerSendsThroughSES(t *testing.T) {
	fake := &fakeSES{}
	mailer := &Mailer{
		ses:     fake,
		breaker: utils.NewCircuitBreaker(5, time.Minute),
		sender:  defaultSender,
		baseURL: "https://flatmates.com",
	}

	subject, body, err := mailer.Send(sampleEvent(models.EventBookingAccepted))
	require.NoError(t, err)
	assert.NotEmpty(t, subject)
	assert.NotEmpty(t, body)

	require.Len(t, fake.inputs, 1)
	input := fake.inputs[0]
	assert.Equal(t, defaultSender, *input.Source)
	require.Len(t, input.Destination.ToAddresses, 1)
	assert.Equal(t, "tomas@example.com", *input.Destination.ToAddresses[0])
	assert.Equal(t, subject, *input.Message.Subject.Data)
}

func TestMailerCircuitOpensAfterRepeatedFailures(t *testing.T) {
	fake := &fakeSES{failWith: errors.New("ses unavailable")}
	mailer := &Mailer{
		ses:     fake,
		breaker: utils.NewCircuitBreaker(3, time.Minute),
		sender:  defaultSender,
		baseURL: "https://flatmates.com",
	}

	event := sampleEvent(models.EventBookingRequest)
	for i := 0; i < 3; i++ {
		_, _, err := mailer.Send(event)
		assert.Error(t, err)
	}

	// Breaker is open now; the call fails fast without touching SES
	_, _, err := mailer.Send(event)
	assert.True(t, errors.Is(err, utils.ErrCircuitOpen))
}
