package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"

	"github.com/qtbui/notification-dispatch/internal/delivery"
	"github.com/qtbui/notification-dispatch/internal/domain"
)

const sesCharset = "UTF-8"

// SESAdapter sends email through AWS Simple Email Service.
type SESAdapter struct {
	ses       *ses.SES
	fromEmail string
	logger    *slog.Logger
}

// NewSESAdapter creates an email adapter backed by the given AWS session.
func NewSESAdapter(sess *session.Session, fromEmail string, logger *slog.Logger) *SESAdapter {
	return &SESAdapter{
		ses:       ses.New(sess),
		fromEmail: fromEmail,
		logger:    logger,
	}
}

func (a *SESAdapter) Name() string { return delivery.ProviderSES }

func (a *SESAdapter) SendEmail(ctx context.Context, opts delivery.EmailOptions) (*delivery.Result, error) {
	if opts.To.Email == "" {
		return nil, delivery.ErrMissingRecipient
	}

	source := opts.SourceEmail
	if source == "" {
		source = a.fromEmail
	}

	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(opts.To.Email)},
		},
		Message: &ses.Message{
			Body: &ses.Body{
				Html: &ses.Content{
					Charset: aws.String(sesCharset),
					Data:    aws.String(opts.Body),
				},
			},
			Subject: &ses.Content{
				Charset: aws.String(sesCharset),
				Data:    aws.String(opts.Subject),
			},
		},
		Source:           aws.String(source),
		ReplyToAddresses: aws.StringSlice(opts.ReplyToAddresses),
	}

	out, err := a.ses.SendEmailWithContext(ctx, input)
	if err != nil {
		a.logger.Error("SES send failed",
			slog.String("recipient", opts.To.Email),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("ses send: %w", err)
	}

	return &delivery.Result{
		MessageID: aws.StringValue(out.MessageId),
		Status:    delivery.StatusSent,
		Provider:  delivery.ProviderSES,
	}, nil
}

func (a *SESAdapter) SendSMS(ctx context.Context, opts delivery.SMSOptions) (*delivery.Result, error) {
	return nil, &delivery.CapabilityError{Provider: delivery.ProviderSES, Channel: domain.ChannelSMS}
}
