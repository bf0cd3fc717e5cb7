package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/qtbui/notification-dispatch/internal/queue"
	"github.com/qtbui/notification-dispatch/shared/rabbitmq"
)

// EventPublisher broadcasts queue state changes over RabbitMQ. Consumers
// use them as wake-up signals, never as the source of queue truth.
type EventPublisher struct {
	client *rabbitmq.Client
}

// NewEventPublisher creates a publisher over the shared client.
func NewEventPublisher(client *rabbitmq.Client) *EventPublisher {
	return &EventPublisher{client: client}
}

// PublishJobEvent implements queue.EventPublisher.
func (p *EventPublisher) PublishJobEvent(ctx context.Context, event queue.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode queue event: %w", err)
	}

	return p.client.Publish(ctx, body, "application/json")
}

// Nudger receives wake-up signals on queue activity.
type Nudger interface {
	Nudge()
}

// EventConsumer turns queue events into pool wake-ups.
type EventConsumer struct {
	client *rabbitmq.Client
	nudger Nudger
	logger *slog.Logger
}

// NewEventConsumer creates a consumer feeding the given nudger.
func NewEventConsumer(client *rabbitmq.Client, nudger Nudger, logger *slog.Logger) *EventConsumer {
	return &EventConsumer{
		client: client,
		nudger: nudger,
		logger: logger,
	}
}

// Start consumes queue events until the context is canceled or the
// delivery channel closes. Events only nudge; losing one is harmless
// because the pool also evaluates on its timer.
func (c *EventConsumer) Start(ctx context.Context, consumerTag string) error {
	deliveries, err := c.client.Consume(consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return

			case msg, ok := <-deliveries:
				if !ok {
					c.logger.Warn("Queue event channel closed")
					return
				}

				var event queue.Event
				if err := json.Unmarshal(msg.Body, &event); err != nil {
					c.logger.Warn("Discarding malformed queue event",
						slog.String("error", err.Error()),
					)
					_ = msg.Ack(false)
					continue
				}

				c.logger.Debug("Queue event received",
					slog.String("queue", event.Queue),
					slog.String("job_id", event.JobID),
					slog.String("type", event.Type),
				)

				_ = msg.Ack(false)
				c.nudger.Nudge()
			}
		}
	}()

	return nil
}
