package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qtbui/notification-dispatch/internal/delivery"
	"github.com/qtbui/notification-dispatch/internal/domain"
	"github.com/qtbui/notification-dispatch/internal/notification"
	"github.com/qtbui/notification-dispatch/internal/queue"
)

// QueueName is the single queue carrying all delivery jobs.
const QueueName = "notifications"

// SendRequest describes one templated send to fan out across recipients.
type SendRequest struct {
	TemplateName string
	Data         map[string]string
	Recipients   []delivery.Recipient
	Provider     string

	SourceEmail      string
	ReplyToAddresses []string

	Delay       time.Duration
	ScheduledAt *time.Time
	Priority    int

	CreatedByType string
	CreatedBy     string
}

// Dispatcher is the front door of the subsystem. It creates the
// notification record, fans one job out per recipient and exposes job
// administration.
type Dispatcher struct {
	logger        *slog.Logger
	queue         *queue.Queue
	notifications *notification.Manager
	jobOpts       queue.Options
	stopOnce      sync.Once
	shutdown      func()
}

// Config holds dispatcher configuration.
type Config struct {
	Logger        *slog.Logger
	Queue         *queue.Queue
	Notifications *notification.Manager

	// DefaultJobOptions is the retry and retention policy applied to every
	// enqueued job unless the request overrides scheduling fields.
	DefaultJobOptions queue.Options

	// Shutdown stops the owned background machinery, typically the worker
	// pool manager. May be nil.
	Shutdown func()
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg *Config) *Dispatcher {
	return &Dispatcher{
		logger:        cfg.Logger,
		queue:         cfg.Queue,
		notifications: cfg.Notifications,
		jobOpts:       cfg.DefaultJobOptions,
		shutdown:      cfg.Shutdown,
	}
}

// QueueEmail creates the notification record and enqueues one delivery job
// per recipient. Job ids derive from the notification id and recipient, so
// a retried call cannot double-enqueue.
func (d *Dispatcher) QueueEmail(ctx context.Context, req SendRequest) (*domain.Notification, error) {
	emails := make([]string, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		if r.Email == "" {
			return nil, fmt.Errorf("%w: email", delivery.ErrMissingRecipient)
		}
		emails = append(emails, r.Email)
	}

	n, rendered, err := d.notifications.CreateAndSchedule(ctx, notification.CreateInput{
		TemplateName:  req.TemplateName,
		Data:          req.Data,
		Recipients:    emails,
		ScheduledAt:   req.ScheduledAt,
		CreatedByType: req.CreatedByType,
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		return nil, err
	}

	items := make([]queue.BulkItem, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		opts := d.jobOpts
		opts.JobID = jobID(n.ID, r.Email)
		opts.Priority = req.Priority
		opts.Delay = req.Delay
		if req.ScheduledAt != nil {
			opts.ScheduledAt = *req.ScheduledAt
		}

		items = append(items, queue.BulkItem{
			Name: string(n.Channel),
			Payload: queue.Payload{
				NotificationID:   n.ID,
				Channel:          n.Channel,
				Provider:         req.Provider,
				Recipient:        r,
				Subject:          rendered.Subject,
				Body:             rendered.Body,
				SourceEmail:      req.SourceEmail,
				ReplyToAddresses: req.ReplyToAddresses,
			},
			Opts: opts,
		})
	}

	if err := d.queue.AddBulk(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to enqueue delivery jobs: %w", err)
	}

	if err := d.notifications.MarkQueued(ctx, n.ID); err != nil {
		return nil, err
	}
	n.Status = domain.NotificationStatusQueued

	d.logger.Info("Notification queued",
		slog.String("notification_id", n.ID),
		slog.String("provider", req.Provider),
		slog.Int("jobs", len(items)),
	)

	return n, nil
}

// AddJob enqueues one raw delivery job.
func (d *Dispatcher) AddJob(ctx context.Context, name string, payload queue.Payload, opts queue.Options) (*queue.Job, error) {
	return d.queue.Add(ctx, name, payload, opts)
}

// AddJobsBulk enqueues several raw delivery jobs.
func (d *Dispatcher) AddJobsBulk(ctx context.Context, items []queue.BulkItem) error {
	return d.queue.AddBulk(ctx, items)
}

// GetJob fetches one job by id.
func (d *Dispatcher) GetJob(ctx context.Context, id string) (*queue.Job, error) {
	return d.queue.GetJob(ctx, id)
}

// RemoveJob cancels a not-yet-active job.
func (d *Dispatcher) RemoveJob(ctx context.Context, id string) error {
	return d.queue.Remove(ctx, id)
}

// RemoveJobsBulk cancels several jobs.
func (d *Dispatcher) RemoveJobsBulk(ctx context.Context, ids []string) error {
	return d.queue.RemoveBulk(ctx, ids)
}

// ChangeJobDelay re-schedules a waiting job relative to now.
func (d *Dispatcher) ChangeJobDelay(ctx context.Context, id string, delay time.Duration) error {
	return d.queue.ChangeDelay(ctx, id, delay)
}

// Shutdown stops the dispatcher's background machinery. Safe to call more
// than once.
func (d *Dispatcher) Shutdown() {
	d.stopOnce.Do(func() {
		d.logger.Info("Shutting down dispatcher")
		if d.shutdown != nil {
			d.shutdown()
		}
	})
}

// jobID derives the deterministic per-recipient job id.
func jobID(notificationID, email string) string {
	return notificationID + ":" + email
}
