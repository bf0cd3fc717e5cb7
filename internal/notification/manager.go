package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/qtbui/notification-dispatch/internal/domain"
	"github.com/qtbui/notification-dispatch/internal/template"
)

// Store persists notification records.
type Store interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Notification, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status string) error

	// UpdateRecipientStatus transitions one recipient and recomputes the
	// aggregate status in the same transaction.
	UpdateRecipientStatus(ctx context.Context, id, email, status string, sentAt *time.Time) (*domain.Notification, error)
}

// ListFilter narrows notification listings. Recipient matches notifications
// addressed to the given email.
type ListFilter struct {
	Status    string
	Channel   domain.Channel
	Recipient string
	Limit     int
	Offset    int
}

// CreateInput describes one notification to create from a template.
type CreateInput struct {
	TemplateName  string
	Data          map[string]string
	Recipients    []string
	ScheduledAt   *time.Time
	CreatedByType string
	CreatedBy     string
}

// Rendered is the template output captured at creation time.
type Rendered struct {
	Subject string
	Body    string
}

// Manager owns the notification record lifecycle: creation from a
// template, recipient progress, and aggregate status.
type Manager struct {
	store     Store
	templates *template.Resolver
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates a notification manager.
func NewManager(store Store, templates *template.Resolver, logger *slog.Logger) *Manager {
	return &Manager{
		store:     store,
		templates: templates,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateAndSchedule resolves the template, renders it against the request
// data and persists a pending notification with all recipients pending.
// Nothing is persisted when any step fails.
func (m *Manager) CreateAndSchedule(ctx context.Context, input CreateInput) (*domain.Notification, *Rendered, error) {
	if len(input.Recipients) == 0 {
		return nil, nil, domain.ErrNoRecipients
	}

	tpl, err := m.templates.Get(ctx, input.TemplateName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve template %q: %w", input.TemplateName, err)
	}

	rendered := &Rendered{
		Subject: template.Render(tpl.Subject, input.Data),
		Body:    template.Render(tpl.Body, input.Data),
	}

	now := m.now()
	scheduledAt := now
	if input.ScheduledAt != nil {
		scheduledAt = *input.ScheduledAt
	}

	recipients := make([]domain.Recipient, 0, len(input.Recipients))
	for _, email := range input.Recipients {
		recipients = append(recipients, domain.Recipient{
			Email:  email,
			Status: domain.RecipientStatusPending,
		})
	}

	n := &domain.Notification{
		ID:            uuid.NewString(),
		Title:         rendered.Subject,
		Content:       rendered.Body,
		Channel:       tpl.Channel,
		Status:        domain.NotificationStatusPending,
		ScheduledAt:   scheduledAt,
		CreatedByType: input.CreatedByType,
		CreatedBy:     input.CreatedBy,
		TemplateID:    tpl.ID,
		Recipients:    recipients,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := m.store.Create(ctx, n); err != nil {
		return nil, nil, fmt.Errorf("failed to create notification: %w", err)
	}

	m.logger.Info("Notification created",
		slog.String("notification_id", n.ID),
		slog.String("template", input.TemplateName),
		slog.Int("recipients", len(recipients)),
	)

	return n, rendered, nil
}

// Get fetches one notification by id.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Notification, error) {
	return m.store.GetByID(ctx, id)
}

// List returns notifications matching the filter.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]domain.Notification, error) {
	return m.store.List(ctx, filter)
}

// Delete removes a notification record. Administrative only; delivery jobs
// already enqueued for it are not recalled.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}

	m.logger.Info("Notification deleted",
		slog.String("notification_id", id),
	)
	return nil
}

// MarkQueued transitions a notification to queued once its jobs are
// durably enqueued.
func (m *Manager) MarkQueued(ctx context.Context, id string) error {
	if err := m.store.UpdateStatus(ctx, id, domain.NotificationStatusQueued); err != nil {
		return fmt.Errorf("failed to mark notification queued: %w", err)
	}
	return nil
}

// MarkProcessing transitions a notification to processing when its first
// delivery attempt starts.
func (m *Manager) MarkProcessing(ctx context.Context, id string) error {
	if err := m.store.UpdateStatus(ctx, id, domain.NotificationStatusProcessing); err != nil {
		return fmt.Errorf("failed to mark notification processing: %w", err)
	}
	return nil
}

// MarkRecipientSent records a successful delivery for one recipient.
func (m *Manager) MarkRecipientSent(ctx context.Context, id, email string) error {
	now := m.now()
	n, err := m.store.UpdateRecipientStatus(ctx, id, email, domain.RecipientStatusSent, &now)
	if err != nil {
		return fmt.Errorf("failed to mark recipient sent: %w", err)
	}

	m.logRecipientUpdate(n, email, domain.RecipientStatusSent)
	return nil
}

// MarkRecipientFailed records a permanently failed delivery for one
// recipient.
func (m *Manager) MarkRecipientFailed(ctx context.Context, id, email string) error {
	n, err := m.store.UpdateRecipientStatus(ctx, id, email, domain.RecipientStatusFailed, nil)
	if err != nil {
		return fmt.Errorf("failed to mark recipient failed: %w", err)
	}

	m.logRecipientUpdate(n, email, domain.RecipientStatusFailed)
	return nil
}

func (m *Manager) logRecipientUpdate(n *domain.Notification, email, status string) {
	m.logger.Info("Recipient status updated",
		slog.String("notification_id", n.ID),
		slog.String("recipient", email),
		slog.String("status", status),
		slog.String("notification_status", n.Status),
	)
}
