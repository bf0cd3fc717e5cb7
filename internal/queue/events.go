package queue

import "context"

// Queue event types, published to the broker whenever a job changes state.
// The worker pool manager listens to these to re-evaluate its size.
const (
	EventWaiting   = "waiting"
	EventDelayed   = "delayed"
	EventActive    = "active"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// Event is one queue state change notification.
type Event struct {
	Queue string `json:"queue"`
	JobID string `json:"job_id"`
	Type  string `json:"type"`
}

// EventPublisher pushes queue events to the shared broker. Publishing is
// best effort: a lost event delays a pool evaluation until the next tick,
// it never loses a job.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, event Event) error
}
