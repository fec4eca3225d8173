package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
)

func TestRenderFilters(t *testing.T) {
	e := New()
	tests := []struct {
		name string
		src  string
		vars map[string]any
		want string
	}{
		{"default used", `Hi {{ first_name | default: "Friend" }}`, map[string]any{}, "Hi Friend"},
		{"default skipped", `Hi {{ first_name | default: "Friend" }}`, map[string]any{"first_name": "Ada"}, "Hi Ada"},
		{"capitalize", `{{ n | capitalize }}`, map[string]any{"n": "aDA"}, "Ada"},
		{"titlecase", `{{ n | titlecase }}`, map[string]any{"n": "ada LOVELACE"}, "Ada Lovelace"},
		{"truncate", `{{ s | truncate: 8 }}`, map[string]any{"s": "abcdefghijkl"}, "abcde..."},
		{"urlencode", `{{ s | urlencode }}`, map[string]any{"s": "a b&c"}, "a+b%26c"},
		{"email_domain", `{{ e | email_domain }}`, map[string]any{"e": "ada@example.com"}, "example.com"},
		{"mask_email", `{{ e | mask_email }}`, map[string]any{"e": "ada@example.com"}, "ad***@example.com"},
		{"missing renders empty", `[{{ nope }}]`, map[string]any{}, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Render(tt.src, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderSyntaxError(t *testing.T) {
	_, err := New().Render(`{% if x %}unterminated`, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestStrictReportsMissingVariables(t *testing.T) {
	out, warnings, err := New().Strict(`{{ first_name }} {{ custom.plan }} {{ company | default: "-" }}`,
		map[string]any{"first_name": "Ada", "custom": map[string]any{"plan": "pro"}})
	require.NoError(t, err)
	assert.Equal(t, "Ada pro -", out)
	require.Len(t, warnings, 1)
	assert.Equal(t, "company", warnings[0].Variable)
}

func TestMessageMarkdown(t *testing.T) {
	msg, err := New().Message("Hello {{ first_name }}", "# Hi {{ first_name }}\n\n<b>raw</b>", domain.FormatMarkdown,
		map[string]any{"first_name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada", msg.Subject)
	assert.Contains(t, msg.HTML, "<h1>Hi Ada</h1>")
	assert.NotContains(t, msg.HTML, "<b>raw</b>")
	assert.Contains(t, msg.Text, "# Hi Ada")
}

func TestMessageHTMLGetsTextPart(t *testing.T) {
	msg, err := New().Message("s", "<html><style>p{}</style><body><p>Hi {{ first_name }}</p><p>Bye &amp; thanks</p></body></html>",
		domain.FormatHTML, map[string]any{"first_name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada\n\nBye & thanks", msg.Text)
}

func TestContactVars(t *testing.T) {
	c := &domain.Contact{ID: "c1", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace",
		CustomFields: map[string]any{"plan": "pro", "email": "spoof"}}
	vars := ContactVars(c)
	assert.Equal(t, "ada@example.com", vars["email"])
	assert.Equal(t, "Ada Lovelace", vars["full_name"])
	assert.Equal(t, "pro", vars["plan"])
	assert.Equal(t, "spoof", vars["custom"].(map[string]any)["email"])
}

func TestValidate(t *testing.T) {
	e := New()
	assert.NoError(t, e.Validate("Hi", "Body {{ x }}"))

	err := e.Validate("", "{% for %}")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "subject")
	assert.Contains(t, ve.Fields, "body")
}
