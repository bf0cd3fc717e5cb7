package queue

import (
	"errors"
	"time"

	"github.com/qtbui/notification-dispatch/internal/delivery"
	"github.com/qtbui/notification-dispatch/internal/domain"
)

// Job status constants. Waiting covers both ready and delayed jobs; the
// distinction is derived from scheduled_at relative to the clock.
const (
	JobStatusWaiting   = "waiting"
	JobStatusActive    = "active"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Derived job states reported by State.
const (
	JobStateDelayed = "delayed"
)

var (
	// ErrJobNotFound is returned when a job lookup by id fails.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJob is returned by a claim when no job is eligible.
	ErrNoJob = errors.New("no eligible job")
)

// PermanentError wraps processing failures that no retry can fix, such as
// configuration or precondition errors. MarkFailed dead-letters such jobs
// on the spot instead of re-scheduling them.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent error: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError marks an error as not worth retrying.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// Payload is the delivery work carried by one job: one recipient of one
// notification, with content already rendered.
type Payload struct {
	NotificationID   string             `json:"notification_id"`
	Channel          domain.Channel     `json:"channel"`
	Provider         string             `json:"provider"`
	Recipient        delivery.Recipient `json:"recipient"`
	Subject          string             `json:"subject,omitempty"`
	Body             string             `json:"body"`
	SourceEmail      string             `json:"source_email,omitempty"`
	ReplyToAddresses []string           `json:"reply_to_addresses,omitempty"`
}

// Job is one unit of delivery work in a queue.
type Job struct {
	ID      string
	Queue   string
	Name    string
	Payload Payload

	Priority    int
	ScheduledAt time.Time

	Status       string
	AttemptsMade int
	Opts         Options

	WorkerID        string
	LastError       string
	LastHeartbeatAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// State reports the externally visible lifecycle state at the given time:
// a waiting job whose scheduled time has not arrived is delayed.
func (j *Job) State(now time.Time) string {
	if j.Status == JobStatusWaiting && j.ScheduledAt.After(now) {
		return JobStateDelayed
	}
	return j.Status
}
