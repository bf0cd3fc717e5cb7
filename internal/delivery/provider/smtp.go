package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/google/uuid"

	"github.com/qtbui/notification-dispatch/internal/delivery"
	"github.com/qtbui/notification-dispatch/internal/domain"
)

// SMTPConfig holds relay connection settings.
type SMTPConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromEmail string
}

// SMTPAdapter sends email through a plain SMTP relay.
type SMTPAdapter struct {
	cfg    SMTPConfig
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
	logger *slog.Logger
}

// NewSMTPAdapter creates an email adapter for the given relay.
func NewSMTPAdapter(cfg SMTPConfig, logger *slog.Logger) *SMTPAdapter {
	return &SMTPAdapter{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: logger,
	}
}

func (a *SMTPAdapter) Name() string { return delivery.ProviderSMTP }

func (a *SMTPAdapter) SendEmail(ctx context.Context, opts delivery.EmailOptions) (*delivery.Result, error) {
	if opts.To.Email == "" {
		return nil, delivery.ErrMissingRecipient
	}

	source := opts.SourceEmail
	if source == "" {
		source = a.cfg.FromEmail
	}

	headers := []string{
		"From: " + source,
		"To: " + opts.To.Email,
		"Subject: " + opts.Subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}
	if len(opts.ReplyToAddresses) > 0 {
		headers = append(headers, "Reply-To: "+strings.Join(opts.ReplyToAddresses, ", "))
	}

	msg := []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + opts.Body)

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	auth := smtp.PlainAuth("", a.cfg.User, a.cfg.Password, a.cfg.Host)

	if err := a.send(addr, auth, source, []string{opts.To.Email}, msg); err != nil {
		a.logger.Error("SMTP send failed",
			slog.String("recipient", opts.To.Email),
			slog.String("relay", addr),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("smtp send: %w", err)
	}

	// SMTP has no vendor message id; generate one for tracing.
	return &delivery.Result{
		MessageID: uuid.New().String(),
		Status:    delivery.StatusSent,
		Provider:  delivery.ProviderSMTP,
	}, nil
}

func (a *SMTPAdapter) SendSMS(ctx context.Context, opts delivery.SMSOptions) (*delivery.Result, error) {
	return nil, &delivery.CapabilityError{Provider: delivery.ProviderSMTP, Channel: domain.ChannelSMS}
}
