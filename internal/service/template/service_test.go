package template_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/app/apptest"
	"github.com/ignite/mailcraft/internal/compose"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/service/template"
)

func TestCreateValidatesLiquid(t *testing.T) {
	f := apptest.New(t)
	_, err := f.Svc.Templates.Create(context.Background(), f.Brand.ID, template.Input{
		Name: "Receipt", Subject: "Order {{ order_id", Body: "ok", Format: "pdf",
	})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "subject")
	assert.Contains(t, ve.Fields, "format")
}

func TestRenderMarkdownWithWarnings(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	tpl, err := f.Svc.Templates.Create(ctx, f.Brand.ID, template.Input{
		Name:    "Receipt",
		Subject: "Order {{ order_id }}",
		Body:    "# Thanks {{ name | capitalize }}\n\nTotal: **{{ total }}**",
		Format:  domain.FormatMarkdown,
	})
	require.NoError(t, err)

	out, err := f.Svc.Templates.Render(ctx, f.Brand.ID, tpl.ID, map[string]any{"order_id": "A-1", "name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "Order A-1", out.Subject)
	assert.Contains(t, out.HTML, "<h1>Thanks Ada</h1>")
	assert.NotContains(t, out.HTML, "{{")
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0].Variable, "total")
}

func TestSendEnqueuesUntrackedMessage(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	tpl, err := f.Svc.Templates.Create(ctx, f.Brand.ID, template.Input{
		Name: "Reset", Subject: "Reset your password", Body: `<a href="https://acme.test/r/{{ code }}">Reset</a>`,
	})
	require.NoError(t, err)

	_, err = f.Svc.Templates.Send(ctx, f.Brand.ID, tpl.ID, template.SendInput{To: "nope"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	id, err := f.Svc.Templates.Send(ctx, f.Brand.ID, tpl.ID, template.SendInput{
		To: "User@Example.com", Data: map[string]any{"code": "xyz"}, Key: "req-1",
	})
	require.NoError(t, err)

	jobs := f.Queue.SendJobs(t, compose.JobSendEmail)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].Message.ID)
	assert.Equal(t, "user@example.com", jobs[0].Message.To)
	assert.Equal(t, "tx:"+f.Brand.ID+":req-1", jobs[0].Key)
	assert.Contains(t, jobs[0].Message.HTML, `href="https://acme.test/r/xyz"`, "transactional links are not rewritten")
	assert.Empty(t, jobs[0].Message.Headers)
}

func TestTemplatesAreBrandScoped(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	tpl, err := f.Svc.Templates.Create(ctx, f.Brand.ID, template.Input{Name: "x", Subject: "s", Body: "b"})
	require.NoError(t, err)

	_, err = f.Svc.Templates.Get(ctx, "other-brand", tpl.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, f.Svc.Templates.Delete(ctx, "other-brand", tpl.ID), apperr.ErrNotFound)
	require.NoError(t, f.Svc.Templates.Delete(ctx, f.Brand.ID, tpl.ID))
}
