package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qtbui/notification-dispatch/internal/delivery"
	"github.com/qtbui/notification-dispatch/internal/domain"
	"github.com/qtbui/notification-dispatch/internal/notification"
	"github.com/qtbui/notification-dispatch/internal/queue"
)

// DeliveryHandler executes delivery jobs: it resolves the provider adapter
// for the job's channel, performs the send and feeds the outcome back into
// the notification record.
type DeliveryHandler struct {
	logger        *slog.Logger
	locator       *delivery.Locator
	notifications *notification.Manager
}

// NewDeliveryHandler creates the handler used by pool workers.
func NewDeliveryHandler(locator *delivery.Locator, notifications *notification.Manager, logger *slog.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		logger:        logger,
		locator:       locator,
		notifications: notifications,
	}
}

// Process performs one delivery attempt.
func (h *DeliveryHandler) Process(ctx context.Context, job *queue.Job) error {
	payload := job.Payload

	if job.AttemptsMade == 0 {
		if err := h.notifications.MarkProcessing(ctx, payload.NotificationID); err != nil {
			h.logger.Warn("Failed to mark notification processing",
				slog.String("notification_id", payload.NotificationID),
				slog.String("error", err.Error()),
			)
		}
	}

	adapter, err := h.locator.Resolve(payload.Channel, payload.Provider)
	if err != nil {
		// Unknown provider or capability mismatch. No retry fixes a
		// misconfigured job.
		return queue.NewPermanentError(err)
	}

	var result *delivery.Result
	switch payload.Channel {
	case domain.ChannelEmail:
		result, err = adapter.SendEmail(ctx, delivery.EmailOptions{
			To:               payload.Recipient,
			Subject:          payload.Subject,
			Body:             payload.Body,
			SourceEmail:      payload.SourceEmail,
			ReplyToAddresses: payload.ReplyToAddresses,
		})
	case domain.ChannelSMS:
		result, err = adapter.SendSMS(ctx, delivery.SMSOptions{
			To:   payload.Recipient,
			Body: payload.Body,
		})
	default:
		return queue.NewPermanentError(fmt.Errorf("%w: %s", domain.ErrInvalidChannel, payload.Channel))
	}

	if err != nil {
		if errors.Is(err, delivery.ErrMissingRecipient) {
			return queue.NewPermanentError(err)
		}
		return fmt.Errorf("delivery attempt via %s failed: %w", payload.Provider, err)
	}

	if result.Status == delivery.StatusFailed {
		return fmt.Errorf("provider %s rejected message %s", result.Provider, result.MessageID)
	}

	h.logger.Info("Message delivered",
		slog.String("notification_id", payload.NotificationID),
		slog.String("provider", result.Provider),
		slog.String("message_id", result.MessageID),
	)

	return nil
}

// OnCompleted marks the job's recipient as sent.
func (h *DeliveryHandler) OnCompleted(ctx context.Context, job *queue.Job) {
	payload := job.Payload
	if err := h.notifications.MarkRecipientSent(ctx, payload.NotificationID, payload.Recipient.Email); err != nil {
		h.logger.Error("Failed to record recipient delivery",
			slog.String("notification_id", payload.NotificationID),
			slog.String("recipient", payload.Recipient.Email),
			slog.String("error", err.Error()),
		)
	}
}

// OnDead marks the job's recipient as failed once retries are exhausted.
func (h *DeliveryHandler) OnDead(ctx context.Context, job *queue.Job, procErr error) {
	payload := job.Payload
	h.logger.Error("Delivery permanently failed",
		slog.String("notification_id", payload.NotificationID),
		slog.String("recipient", payload.Recipient.Email),
		slog.String("error", procErr.Error()),
	)

	if err := h.notifications.MarkRecipientFailed(ctx, payload.NotificationID, payload.Recipient.Email); err != nil {
		h.logger.Error("Failed to record recipient failure",
			slog.String("notification_id", payload.NotificationID),
			slog.String("recipient", payload.Recipient.Email),
			slog.String("error", err.Error()),
		)
	}
}
