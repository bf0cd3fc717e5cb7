package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/qtbui/notification-dispatch/internal/domain"
	"github.com/qtbui/notification-dispatch/shared/postgresql"
)

const pgUniqueViolation = "23505"

// TemplateStorage persists notification templates.
type TemplateStorage struct {
	db *sqlx.DB
}

// NewTemplateStorage creates a template store over the shared client.
func NewTemplateStorage(pg *postgresql.Client) *TemplateStorage {
	return &TemplateStorage{
		db: pg.GetDB(),
	}
}

const templateColumns = `
	template_id, name, subject, body, channel,
	created_by_type, created_by, updated_by, created_at, updated_at
`

func (s *TemplateStorage) Create(ctx context.Context, tpl *domain.Template) error {
	query := `
		INSERT INTO templates (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		tpl.ID,
		tpl.Name,
		tpl.Subject,
		tpl.Body,
		tpl.Channel,
		tpl.CreatedByType,
		tpl.CreatedBy,
		tpl.UpdatedBy,
		tpl.CreatedAt,
		tpl.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return domain.ErrTemplateExists
		}
		return fmt.Errorf("failed to create template: %w", err)
	}

	return nil
}

func (s *TemplateStorage) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE template_id = $1`

	var tpl domain.Template
	if err := s.db.GetContext(ctx, &tpl, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return &tpl, nil
}

// FindByName looks a template up by its unique name. A missing template
// is reported as (nil, nil).
func (s *TemplateStorage) FindByName(ctx context.Context, name string) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE name = $1`

	var tpl domain.Template
	if err := s.db.GetContext(ctx, &tpl, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find template: %w", err)
	}

	return &tpl, nil
}

func (s *TemplateStorage) List(ctx context.Context, limit, offset int) ([]domain.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		ORDER BY created_at DESC, template_id DESC
		LIMIT $1 OFFSET $2
	`

	var templates []domain.Template
	if err := s.db.SelectContext(ctx, &templates, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, nil
}

func (s *TemplateStorage) Update(ctx context.Context, tpl *domain.Template) error {
	query := `
		UPDATE templates
		SET subject = $1, body = $2, channel = $3, updated_by = $4, updated_at = $5
		WHERE template_id = $6
	`

	res, err := s.db.ExecContext(
		ctx,
		query,
		tpl.Subject,
		tpl.Body,
		tpl.Channel,
		tpl.UpdatedBy,
		tpl.UpdatedAt,
		tpl.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return domain.ErrTemplateNotFound
	}

	return nil
}

func (s *TemplateStorage) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM templates WHERE template_id = $1`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return domain.ErrTemplateNotFound
	}

	return nil
}
