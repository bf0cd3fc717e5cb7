package domain

import (
	"time"
)

// Channel is the delivery medium for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether the channel is one of the supported media.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// Notification status constants. The aggregate status is coarse; the
// per-recipient status is the authoritative delivery outcome.
const (
	NotificationStatusPending    = "pending"
	NotificationStatusQueued     = "queued"
	NotificationStatusProcessing = "processing"
	NotificationStatusCompleted  = "completed"
)

// Recipient status constants.
const (
	RecipientStatusPending = "pending"
	RecipientStatusSent    = "sent"
	RecipientStatusFailed  = "failed"
)

// CreatedByType distinguishes user-initiated sends from system sends.
const (
	CreatedByUser   = "user"
	CreatedBySystem = "system"
)

// Recipient is one destination of a notification. Status is tracked
// independently per recipient.
type Recipient struct {
	Email  string     `json:"email"`
	Status string     `json:"status"`
	SentAt *time.Time `json:"sent_at,omitempty"`
}

// Notification is one logical dispatch operation, 1:N with recipients.
type Notification struct {
	ID            string      `db:"notification_id"`
	Title         string      `db:"title"`
	Content       string      `db:"content"`
	Channel       Channel     `db:"channel"`
	Status        string      `db:"status"`
	ScheduledAt   time.Time   `db:"scheduled_at"`
	CreatedByType string      `db:"created_by_type"`
	CreatedBy     string      `db:"created_by"`
	TemplateID    string      `db:"template_id"`
	Recipients    []Recipient `db:"-"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}
