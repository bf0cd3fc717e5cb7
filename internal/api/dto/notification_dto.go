package dto

import "time"

type RecipientInput struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"required,email"`
}

type SendEmailRequest struct {
	TemplateName     string            `json:"template_name" binding:"required"`
	Data             map[string]string `json:"data"`
	Recipients       []RecipientInput  `json:"recipients" binding:"required,min=1,dive"`
	Provider         string            `json:"provider" binding:"required"`
	SourceEmail      string            `json:"source_email"`
	ReplyToAddresses []string          `json:"reply_to_addresses"`
	DelaySeconds     int               `json:"delay_seconds"`
	ScheduledAt      *time.Time        `json:"scheduled_at"`
	Priority         int               `json:"priority"`
}

type RecipientDTO struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	SentAt string `json:"sent_at,omitempty"`
}

type NotificationDTO struct {
	NotificationID string         `json:"notification_id"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	Channel        string         `json:"channel"`
	Status         string         `json:"status"`
	ScheduledAt    string         `json:"scheduled_at"`
	CreatedByType  string         `json:"created_by_type"`
	CreatedBy      string         `json:"created_by"`
	TemplateID     string         `json:"template_id,omitempty"`
	Recipients     []RecipientDTO `json:"recipients"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
}

type ListNotificationsRequest struct {
	Status    string `form:"status"`
	Channel   string `form:"channel"`
	Recipient string `form:"recipient"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

type ListNotificationsResponse struct {
	Notifications []NotificationDTO `json:"notifications"`
}

type ChangeJobDelayRequest struct {
	DelaySeconds int `json:"delay_seconds" binding:"required,min=1"`
}

type RemoveJobsRequest struct {
	JobIDs []string `json:"job_ids" binding:"required,min=1"`
}

type JobDTO struct {
	JobID        string `json:"job_id"`
	Queue        string `json:"queue"`
	Name         string `json:"name"`
	State        string `json:"state"`
	Priority     int    `json:"priority"`
	AttemptsMade int    `json:"attempts_made"`
	ScheduledAt  string `json:"scheduled_at"`
	LastError    string `json:"last_error,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}
