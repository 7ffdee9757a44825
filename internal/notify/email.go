package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// DefaultEmailSubject is the subject line of admin booking e-mails.
const DefaultEmailSubject = "Booking baru"

// mailClient is the part of *sendgrid.Client used here.
type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailConfig holds SendGrid settings for the admin e-mail channel.
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	ToEmail   string
	Subject   string
}

// EmailNotifier sends notifications by e-mail through SendGrid.
type EmailNotifier struct {
	client  mailClient
	from    *mail.Email
	to      *mail.Email
	subject string
}

// NewEmailNotifier returns nil when no API key or recipient is configured.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if cfg.APIKey == "" || cfg.ToEmail == "" {
		return nil
	}
	return newEmailNotifier(sendgrid.NewSendClient(cfg.APIKey), cfg)
}

func newEmailNotifier(client mailClient, cfg EmailConfig) *EmailNotifier {
	if cfg.FromName == "" {
		cfg.FromName = "BookingPipe"
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultEmailSubject
	}
	return &EmailNotifier{
		client:  client,
		from:    mail.NewEmail(cfg.FromName, cfg.FromEmail),
		to:      mail.NewEmail("", cfg.ToEmail),
		subject: cfg.Subject,
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, text string) error {
	htmlBody := strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")
	message := mail.NewSingleEmail(n.from, n.subject, n.to, text, htmlBody)

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		slog.Error("EmailNotifier sendgrid send failed", "error", err, "to", n.to.Address)
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		slog.Error("EmailNotifier sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
		return fmt.Errorf("sendgrid returned status %d", response.StatusCode)
	}
	slog.Debug("EmailNotifier Notify succeeded", "to", n.to.Address, "status", response.StatusCode)
	return nil
}
