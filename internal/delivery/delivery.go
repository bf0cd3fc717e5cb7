package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/qtbui/notification-dispatch/internal/domain"
)

// Provider names map one-to-one to vendor integrations.
const (
	ProviderSendGrid = "SENDGRID"
	ProviderSES      = "SES"
	ProviderSMTP     = "SMTP"
	ProviderTwilio   = "TWILIO"
	ProviderSNS      = "SNS"
)

// Delivery result status constants. StatusFailed means the vendor was
// reached and rejected the message, as opposed to an error return, which
// means the attempt could not be made at all.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

var (
	// ErrUnknownProvider is a configuration error: the provider name does not
	// map to any adapter. Never retried.
	ErrUnknownProvider = errors.New("unknown delivery provider")

	// ErrMissingRecipient is a precondition error: the recipient lacks the
	// field required by the channel (email address or phone number).
	ErrMissingRecipient = errors.New("recipient missing required field for channel")
)

// CapabilityError is returned when an adapter is asked to serve a channel it
// does not support, e.g. SendSMS on an email-only provider.
type CapabilityError struct {
	Provider string
	Channel  domain.Channel
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("provider %s does not support channel %s", e.Provider, e.Channel)
}

// Recipient carries the destination fields. Only the field relevant to the
// channel is required.
type Recipient struct {
	Name        string
	Email       string
	PhoneNumber string
}

// EmailOptions are the inputs for one email send.
type EmailOptions struct {
	To               Recipient
	Subject          string
	Body             string
	SourceEmail      string
	ReplyToAddresses []string
}

// SMSOptions are the inputs for one SMS send.
type SMSOptions struct {
	To   Recipient
	Body string
}

// Result is the transient outcome of one delivery attempt. Not persisted.
type Result struct {
	MessageID string
	Status    string
	Provider  string
}

// Adapter is the uniform send contract implemented per vendor. A provider
// implements only the channel(s) it supports; the unsupported operation
// returns a *CapabilityError.
type Adapter interface {
	Name() string
	SendEmail(ctx context.Context, opts EmailOptions) (*Result, error)
	SendSMS(ctx context.Context, opts SMSOptions) (*Result, error)
}
