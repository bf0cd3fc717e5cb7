package handler

import (
	"log/slog"

	"github.com/qtbui/notification-dispatch/internal/dispatch"
	"github.com/qtbui/notification-dispatch/internal/notification"
	"github.com/qtbui/notification-dispatch/internal/storage"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Dispatcher    *dispatch.Dispatcher
	Notifications *notification.Manager
	Templates     *storage.TemplateStorage
}

// NotificationHandler handles send and lookup HTTP requests
type NotificationHandler struct {
	logger        *slog.Logger
	dispatcher    *dispatch.Dispatcher
	notifications *notification.Manager
}

// NewNotificationHandler creates a new NotificationHandler instance
func NewNotificationHandler(deps *Dependencies) *NotificationHandler {
	return &NotificationHandler{
		logger:        deps.Logger,
		dispatcher:    deps.Dispatcher,
		notifications: deps.Notifications,
	}
}

// TemplateHandler handles template management HTTP requests
type TemplateHandler struct {
	logger    *slog.Logger
	templates *storage.TemplateStorage
}

// NewTemplateHandler creates a new TemplateHandler instance
func NewTemplateHandler(deps *Dependencies) *TemplateHandler {
	return &TemplateHandler{
		logger:    deps.Logger,
		templates: deps.Templates,
	}
}

// JobHandler handles queue administration HTTP requests
type JobHandler struct {
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:     deps.Logger,
		dispatcher: deps.Dispatcher,
	}
}
