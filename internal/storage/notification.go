package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qtbui/notification-dispatch/internal/domain"
	"github.com/qtbui/notification-dispatch/internal/notification"
	"github.com/qtbui/notification-dispatch/shared/postgresql"
)

// NotificationStorage persists notification records. Recipients live in a
// JSONB column on the notification row.
type NotificationStorage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewNotificationStorage creates a notification store over the shared client.
func NewNotificationStorage(pg *postgresql.Client, logger *slog.Logger) *NotificationStorage {
	return &NotificationStorage{
		db:     pg.GetDB(),
		logger: logger,
	}
}

type notificationRow struct {
	ID            string         `db:"notification_id"`
	Title         string         `db:"title"`
	Content       string         `db:"content"`
	Channel       domain.Channel `db:"channel"`
	Status        string         `db:"status"`
	ScheduledAt   time.Time      `db:"scheduled_at"`
	CreatedByType string         `db:"created_by_type"`
	CreatedBy     string         `db:"created_by"`
	TemplateID    sql.NullString `db:"template_id"`
	Recipients    []byte         `db:"recipients"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r *notificationRow) toNotification() (*domain.Notification, error) {
	n := &domain.Notification{
		ID:            r.ID,
		Title:         r.Title,
		Content:       r.Content,
		Channel:       r.Channel,
		Status:        r.Status,
		ScheduledAt:   r.ScheduledAt,
		CreatedByType: r.CreatedByType,
		CreatedBy:     r.CreatedBy,
		TemplateID:    r.TemplateID.String,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if len(r.Recipients) > 0 {
		if err := json.Unmarshal(r.Recipients, &n.Recipients); err != nil {
			return nil, fmt.Errorf("failed to decode recipients: %w", err)
		}
	}
	return n, nil
}

const notificationColumns = `
	notification_id, title, content, channel, status, scheduled_at,
	created_by_type, created_by, template_id, recipients,
	created_at, updated_at
`

func (s *NotificationStorage) Create(ctx context.Context, n *domain.Notification) error {
	recipients, err := json.Marshal(n.Recipients)
	if err != nil {
		return fmt.Errorf("failed to encode recipients: %w", err)
	}

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.db.ExecContext(
		ctx,
		query,
		n.ID,
		n.Title,
		n.Content,
		n.Channel,
		n.Status,
		n.ScheduledAt,
		n.CreatedByType,
		n.CreatedBy,
		nullableID(n.TemplateID),
		recipients,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

func (s *NotificationStorage) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE notification_id = $1`

	var row notificationRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return row.toNotification()
}

func (s *NotificationStorage) List(ctx context.Context, filter notification.ListFilter) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Channel != "" {
		query += fmt.Sprintf(" AND channel = $%d", argIdx)
		args = append(args, filter.Channel)
		argIdx++
	}

	if filter.Recipient != "" {
		recipient, err := json.Marshal([]map[string]string{{"email": filter.Recipient}})
		if err != nil {
			return nil, fmt.Errorf("failed to encode recipient filter: %w", err)
		}
		query += fmt.Sprintf(" AND recipients @> $%d", argIdx)
		args = append(args, string(recipient))
		argIdx++
	}

	query += " ORDER BY created_at DESC, notification_id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, filter.Offset)

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	notifications := make([]domain.Notification, 0, len(rows))
	for i := range rows {
		n, err := rows[i].toNotification()
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}

	return notifications, nil
}

func (s *NotificationStorage) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE notification_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotificationNotFound
	}

	return nil
}

func (s *NotificationStorage) UpdateStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE notifications
		SET status = $1, updated_at = $2
		WHERE notification_id = $3
	`

	res, err := s.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotificationNotFound
	}

	return nil
}

// UpdateRecipientStatus transitions one recipient inside a row lock and
// recomputes the aggregate status. Once every recipient reaches a terminal
// state the notification is marked completed.
func (s *NotificationStorage) UpdateRecipientStatus(ctx context.Context, id, email, status string, sentAt *time.Time) (*domain.Notification, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE notification_id = $1
		FOR UPDATE
	`

	var row notificationRow
	if err := tx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to lock notification: %w", err)
	}

	n, err := row.toNotification()
	if err != nil {
		return nil, err
	}

	found := false
	terminal := 0
	for i := range n.Recipients {
		if n.Recipients[i].Email == email && !found {
			found = true
			n.Recipients[i].Status = status
			n.Recipients[i].SentAt = sentAt
		}
		if n.Recipients[i].Status != domain.RecipientStatusPending {
			terminal++
		}
	}

	if !found {
		s.logger.Warn("Recipient not found on notification",
			slog.String("notification_id", id),
			slog.String("recipient", email),
		)
		return n, nil
	}

	if terminal == len(n.Recipients) {
		n.Status = domain.NotificationStatusCompleted
	}
	n.UpdatedAt = time.Now()

	recipients, err := json.Marshal(n.Recipients)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recipients: %w", err)
	}

	update := `
		UPDATE notifications
		SET recipients = $1, status = $2, updated_at = $3
		WHERE notification_id = $4
	`

	if _, err := tx.ExecContext(ctx, update, recipients, n.Status, n.UpdatedAt, id); err != nil {
		return nil, fmt.Errorf("failed to update recipients: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit recipient update: %w", err)
	}

	return n, nil
}

// nullableID maps an empty id to NULL for foreign key columns.
func nullableID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}
