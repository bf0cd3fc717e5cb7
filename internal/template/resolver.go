package template

import (
	"context"
	"regexp"
	"strings"

	"github.com/qtbui/notification-dispatch/internal/domain"
)

// Store is the persistence collaborator for templates.
type Store interface {
	FindByName(ctx context.Context, name string) (*domain.Template, error)
}

var placeholderRe = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Resolver fetches named templates and performs placeholder substitution.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver backed by the given template store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Get fetches a template by name. Returns domain.ErrTemplateNotFound if absent.
func (r *Resolver) Get(ctx context.Context, name string) (*domain.Template, error) {
	tpl, err := r.store.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, domain.ErrTemplateNotFound
	}
	return tpl, nil
}

// Render substitutes every {{key}} token in body with data[key]. Keys are
// trimmed of surrounding whitespace; a missing key yields an empty string.
// Substitution is single-pass: a substituted value containing {{...}} is not
// expanded again.
func Render(body string, data map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(body, func(match string) string {
		key := strings.TrimSpace(match[2 : len(match)-2])
		return data[key]
	})
}
