package main

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"

	"github.com/flatmates/flatmates-backend/shared/models"
	"github.com/flatmates/flatmates-backend/shared/utils"
)

const defaultSender = "Flat Mates <no-reply@flatmates.com>"

// sesSender is the slice of the SES API the mailer uses.
type sesSender interface {
	SendEmail(input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// Mailer renders notification events into emails and sends them through
// SES behind a circuit breaker.
type Mailer struct {
	ses     sesSender
	breaker *utils.CircuitBreaker
	sender  string
	baseURL string
}

// NewMailer creates a Mailer backed by AWS SES
func NewMailer(region string) (*Mailer, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	sender := os.Getenv("SES_SENDER")
	if sender == "" {
		sender = defaultSender
	}

	baseURL := os.Getenv("FRONTEND_BASE_URL")
	if baseURL == "" {
		baseURL = "https://flatmates.com"
	}

	return &Mailer{
		ses:     ses.New(sess),
		breaker: utils.NewCircuitBreaker(5, 60*time.Second),
		sender:  sender,
		baseURL: baseURL,
	}, nil
}

// Send renders and delivers the email for a notification event.
func (m *Mailer) Send(event models.NotificationEvent) (subject, body string, err error) {
	subject, body, err = renderEmail(event, m.baseURL)
	if err != nil {
		return "", "", err
	}

	err = m.breaker.Call(func() error {
		input := &ses.SendEmailInput{
			Source: aws.String(m.sender),
			Destination: &ses.Destination{
				ToAddresses: []*string{aws.String(event.Recipient)},
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
		_, sendErr := m.ses.SendEmail(input)
		return sendErr
	})
	return subject, body, err
}

var bookingRequestTemplate = template.Must(template.New("booking_request").Parse(`
<p>Hey {{.OwnerName}}, {{.TenantName}} wants to live in {{.ListingTitle}}!</p>
{{if .Message}}<p>{{.TenantName}} left you a message.</p>
<p>{{.Message}}</p>{{end}}
<p>Manage this in the <a href="{{.DashboardURL}}">Dashboard</a></p>
<p>Note: for further communication, use email. Flat Mates does not support messaging. {{.TenantName}}'s email: {{.TenantEmail}}</p>
`))

var bookingAcceptedTemplate = template.Must(template.New("booking_accepted").Parse(`
<p>Great news {{.TenantName}}!</p>
<p>Your request to live in <strong>{{.ListingTitle}}</strong> has been accepted!</p>
<p>Property details:</p>
<ul>
  <li>Monthly rent: ${{.MonthlyPrice}}</li>
  <li>Owner: {{.OwnerName}}</li>
</ul>
<p>Next steps:</p>
<ul>
  <li>Contact {{.OwnerName}} at {{.OwnerEmail}} to arrange the details</li>
  <li>Discuss move-in dates and paperwork</li>
  <li>Set up payment arrangements</li>
</ul>
<p>Welcome to your new home!</p>
<p>Note: All further communication should be done via email. Flat Mates doesn't provide in-app messaging.</p>
`))

var bookingRejectedTemplate = template.Must(template.New("booking_rejected").Parse(`
<p>Hi {{.TenantName}},</p>
<p>We wanted to let you know that your request to live in <strong>{{.ListingTitle}}</strong> was not accepted at this time.</p>
<p>Don't be discouraged! There are many other great properties available on Flat Mates.</p>
<p>Some tips for your next application:</p>
<ul>
  <li>Include a detailed introduction about yourself</li>
  <li>Mention your occupation and lifestyle</li>
  <li>Explain why you're interested in the property</li>
</ul>
<p>Keep looking! Your perfect home is out there.</p>
<p>This is an automated message. Please do not reply to this email.</p>
`))

type emailData struct {
	models.NotificationEvent
	DashboardURL string
}

// renderEmail picks the template and subject line for an event type.
func renderEmail(event models.NotificationEvent, baseURL string) (subject, body string, err error) {
	data := emailData{
		NotificationEvent: event,
		DashboardURL:      fmt.Sprintf("%s/listing/%s/dashboard", baseURL, event.ListingID),
	}

	var tmpl *template.Template
	switch event.Type {
	case models.EventBookingRequest:
		subject = "Wohooo! Someone is interested in your listing!"
		tmpl = bookingRequestTemplate
	case models.EventBookingAccepted:
		subject = "Your booking request was accepted!"
		tmpl = bookingAcceptedTemplate
	case models.EventBookingRejected:
		subject = "An update on your booking request"
		tmpl = bookingRejectedTemplate
	default:
		return "", "", fmt.Errorf("unknown notification event type: %s", event.Type)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render %s email: %w", event.Type, err)
	}

	return subject, buf.String(), nil
}
