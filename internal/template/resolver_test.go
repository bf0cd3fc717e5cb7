package template

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtbui/notification-dispatch/internal/domain"
)

type fakeStore struct {
	templates map[string]*domain.Template
	err       error
}

func (s *fakeStore) FindByName(_ context.Context, name string) (*domain.Template, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.templates[name], nil
}

func TestResolver_Get(t *testing.T) {
	welcome := &domain.Template{
		ID:      "tpl-1",
		Name:    "welcome",
		Channel: domain.ChannelEmail,
		Subject: "Welcome, {{name}}",
		Body:    "Hello {{name}}, your code is {{code}}.",
	}

	tests := []struct {
		name     string
		store    *fakeStore
		lookup   string
		wantErr  error
		wantName string
	}{
		{
			name:     "existing template",
			store:    &fakeStore{templates: map[string]*domain.Template{"welcome": welcome}},
			lookup:   "welcome",
			wantName: "welcome",
		},
		{
			name:    "missing template",
			store:   &fakeStore{templates: map[string]*domain.Template{}},
			lookup:  "unknown",
			wantErr: domain.ErrTemplateNotFound,
		},
		{
			name:    "store error is propagated",
			store:   &fakeStore{err: errors.New("connection refused")},
			lookup:  "welcome",
			wantErr: errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewResolver(tt.store)

			tpl, err := resolver.Get(context.Background(), tt.lookup)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.EqualError(t, err, tt.wantErr.Error())
				assert.Nil(t, tpl)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, tpl)
			assert.Equal(t, tt.wantName, tpl.Name)
		})
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		body string
		data map[string]string
		want string
	}{
		{
			name: "single placeholder",
			body: "Hello {{name}}!",
			data: map[string]string{"name": "Ada"},
			want: "Hello Ada!",
		},
		{
			name: "multiple placeholders",
			body: "Hi {{name}}, your code is {{code}}.",
			data: map[string]string{"name": "Ada", "code": "1234"},
			want: "Hi Ada, your code is 1234.",
		},
		{
			name: "whitespace inside braces is trimmed",
			body: "Hello {{ name }}!",
			data: map[string]string{"name": "Ada"},
			want: "Hello Ada!",
		},
		{
			name: "missing key renders empty",
			body: "Hello {{name}}, bye {{missing}}.",
			data: map[string]string{"name": "Ada"},
			want: "Hello Ada, bye .",
		},
		{
			name: "no placeholders",
			body: "plain text",
			data: map[string]string{"name": "Ada"},
			want: "plain text",
		},
		{
			name: "nil data renders all empty",
			body: "{{a}}{{b}}",
			data: nil,
			want: "",
		},
		{
			name: "substituted value is not re-expanded",
			body: "value: {{outer}}",
			data: map[string]string{"outer": "{{inner}}", "inner": "nested"},
			want: "value: {{inner}}",
		},
		{
			name: "repeated placeholder",
			body: "{{x}} and {{x}}",
			data: map[string]string{"x": "twice"},
			want: "twice and twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.body, tt.data))
		})
	}
}
