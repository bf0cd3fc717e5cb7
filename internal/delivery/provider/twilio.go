package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/qtbui/notification-dispatch/internal/delivery"
	"github.com/qtbui/notification-dispatch/internal/domain"
)

// TwilioConfig holds Twilio credentials and the sending number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioAdapter sends SMS through the Twilio messages API.
type TwilioAdapter struct {
	client     *twilio.RestClient
	fromNumber string
	logger     *slog.Logger
}

// NewTwilioAdapter creates an SMS adapter from the given credentials.
func NewTwilioAdapter(cfg TwilioConfig, logger *slog.Logger) *TwilioAdapter {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioAdapter{
		client:     client,
		fromNumber: cfg.FromNumber,
		logger:     logger,
	}
}

func (a *TwilioAdapter) Name() string { return delivery.ProviderTwilio }

func (a *TwilioAdapter) SendEmail(ctx context.Context, opts delivery.EmailOptions) (*delivery.Result, error) {
	return nil, &delivery.CapabilityError{Provider: delivery.ProviderTwilio, Channel: domain.ChannelEmail}
}

func (a *TwilioAdapter) SendSMS(ctx context.Context, opts delivery.SMSOptions) (*delivery.Result, error) {
	if opts.To.PhoneNumber == "" {
		return nil, delivery.ErrMissingRecipient
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(opts.To.PhoneNumber)
	params.SetFrom(a.fromNumber)
	params.SetBody(opts.Body)

	resp, err := a.client.Api.CreateMessage(params)
	if err != nil {
		a.logger.Error("Twilio send failed",
			slog.String("recipient", opts.To.PhoneNumber),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("twilio send: %w", err)
	}

	result := &delivery.Result{
		Status:   delivery.StatusSent,
		Provider: delivery.ProviderTwilio,
	}
	if resp.Sid != nil {
		result.MessageID = *resp.Sid
	}
	if resp.Status != nil && *resp.Status == "failed" {
		result.Status = delivery.StatusFailed
	}

	return result, nil
}
