package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"

	"github.com/qtbui/notification-dispatch/internal/delivery"
	"github.com/qtbui/notification-dispatch/internal/domain"
)

// SNSAdapter sends SMS through AWS Simple Notification Service.
type SNSAdapter struct {
	sns    *sns.SNS
	logger *slog.Logger
}

// NewSNSAdapter creates an SMS adapter backed by the given AWS session.
func NewSNSAdapter(sess *session.Session, logger *slog.Logger) *SNSAdapter {
	return &SNSAdapter{
		sns:    sns.New(sess),
		logger: logger,
	}
}

func (a *SNSAdapter) Name() string { return delivery.ProviderSNS }

func (a *SNSAdapter) SendEmail(ctx context.Context, opts delivery.EmailOptions) (*delivery.Result, error) {
	return nil, &delivery.CapabilityError{Provider: delivery.ProviderSNS, Channel: domain.ChannelEmail}
}

func (a *SNSAdapter) SendSMS(ctx context.Context, opts delivery.SMSOptions) (*delivery.Result, error) {
	if opts.To.PhoneNumber == "" {
		return nil, delivery.ErrMissingRecipient
	}

	out, err := a.sns.PublishWithContext(ctx, &sns.PublishInput{
		Message:     aws.String(opts.Body),
		PhoneNumber: aws.String(opts.To.PhoneNumber),
	})
	if err != nil {
		a.logger.Error("SNS publish failed",
			slog.String("recipient", opts.To.PhoneNumber),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("sns publish: %w", err)
	}

	return &delivery.Result{
		MessageID: aws.StringValue(out.MessageId),
		Status:    delivery.StatusSent,
		Provider:  delivery.ProviderSNS,
	}, nil
}
