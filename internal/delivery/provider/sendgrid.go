package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/qtbui/notification-dispatch/internal/delivery"
	"github.com/qtbui/notification-dispatch/internal/domain"
)

const sendGridAPI = "https://api.sendgrid.com/v3/mail/send"

// SendGridConfig holds the API key and default sender address.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
}

// SendGridAdapter sends email through the SendGrid v3 mail send API.
type SendGridAdapter struct {
	client    *retryablehttp.Client
	apiKey    string
	fromEmail string
	logger    *slog.Logger
}

// NewSendGridAdapter creates an email adapter from the given credentials.
func NewSendGridAdapter(cfg SendGridConfig, logger *slog.Logger) *SendGridAdapter {
	client := retryablehttp.NewClient()
	client.Logger = nil

	return &SendGridAdapter{
		client:    client,
		apiKey:    cfg.APIKey,
		fromEmail: cfg.FromEmail,
		logger:    logger,
	}
}

func (a *SendGridAdapter) Name() string { return delivery.ProviderSendGrid }

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridMessage struct {
	Personalizations []struct {
		To []sendGridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendGridAddress  `json:"from"`
	ReplyTo *sendGridAddress `json:"reply_to,omitempty"`
	Subject string           `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

func (a *SendGridAdapter) SendEmail(ctx context.Context, opts delivery.EmailOptions) (*delivery.Result, error) {
	if opts.To.Email == "" {
		return nil, delivery.ErrMissingRecipient
	}

	source := opts.SourceEmail
	if source == "" {
		source = a.fromEmail
	}

	msg := sendGridMessage{
		From:    sendGridAddress{Email: source},
		Subject: opts.Subject,
	}
	msg.Personalizations = make([]struct {
		To []sendGridAddress `json:"to"`
	}, 1)
	msg.Personalizations[0].To = []sendGridAddress{{Email: opts.To.Email, Name: opts.To.Name}}
	msg.Content = []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{{Type: "text/html", Value: opts.Body}}
	if len(opts.ReplyToAddresses) > 0 {
		msg.ReplyTo = &sendGridAddress{Email: opts.ReplyToAddresses[0]}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("sendgrid encode: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, sendGridAPI, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sendgrid request: %w", err)
	}

	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("SendGrid send failed",
			slog.String("recipient", opts.To.Email),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		a.logger.Error("SendGrid rejected message",
			slog.String("recipient", opts.To.Email),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response", string(payload)),
		)
		return &delivery.Result{
			Status:   delivery.StatusFailed,
			Provider: delivery.ProviderSendGrid,
		}, nil
	}

	return &delivery.Result{
		MessageID: resp.Header.Get("X-Message-Id"),
		Status:    delivery.StatusSent,
		Provider:  delivery.ProviderSendGrid,
	}, nil
}

func (a *SendGridAdapter) SendSMS(ctx context.Context, opts delivery.SMSOptions) (*delivery.Result, error) {
	return nil, &delivery.CapabilityError{Provider: delivery.ProviderSendGrid, Channel: domain.ChannelSMS}
}
