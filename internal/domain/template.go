package domain

import "time"

// Template is a named content source for notifications. The name is the
// unique lookup key; the body may contain {{placeholder}} tokens.
type Template struct {
	ID            string    `db:"template_id"`
	Name          string    `db:"name"`
	Subject       string    `db:"subject"`
	Body          string    `db:"body"`
	Channel       Channel   `db:"channel"`
	CreatedByType string    `db:"created_by_type"`
	CreatedBy     string    `db:"created_by"`
	UpdatedBy     string    `db:"updated_by"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}
