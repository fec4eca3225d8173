package campaign_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/app/apptest"
	"github.com/ignite/mailcraft/internal/compose"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/segmentation"
	"github.com/ignite/mailcraft/internal/service/campaign"
	"github.com/ignite/mailcraft/internal/service/segment"
	"github.com/ignite/mailcraft/internal/tracking"
)

func draft(t *testing.T, f *apptest.Fixture, in campaign.Input) *domain.Campaign {
	t.Helper()
	if in.Name == "" {
		in.Name = "Launch"
	}
	if in.Subject == "" {
		in.Subject = "Hello {{ first_name | default: 'there' }}"
	}
	if in.HTML == "" {
		in.HTML = `<html><body><a href="https://acme.test/launch">Read</a> <a href="{{ unsubscribe_url }}">Unsubscribe</a></body></html>`
	}
	c, err := f.Svc.Campaigns.Create(context.Background(), f.Brand.ID, in)
	require.NoError(t, err)
	return c
}

func TestCreateValidation(t *testing.T) {
	f := apptest.New(t)
	_, err := f.Svc.Campaigns.Create(context.Background(), f.Brand.ID, campaign.Input{HTML: "{% for %}"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "name")
	assert.Contains(t, ve.Fields, "subject")
	assert.Contains(t, ve.Fields, "html")
}

func TestSendDedupesAndTracks(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	other := f.NewList(t, "Other")
	f.Contact(t, f.List.ID, "shared@example.com", "vip")
	f.Contact(t, f.List.ID, "main@example.com")
	f.Contact(t, other.ID, "shared@example.com", "vip")
	f.Contact(t, other.ID, "vip@example.com", "vip")

	rules := segmentation.And(segmentation.Condition{
		Type: segmentation.ConditionTag, Operator: segmentation.OpTagHas, Value: "vip",
	})
	seg, err := f.Svc.Segments.Create(ctx, f.Brand.ID, segment.Input{Name: "VIP", Rules: &rules})
	require.NoError(t, err)

	c := draft(t, f, campaign.Input{ListIDs: []string{f.List.ID, f.List.ID}, SegmentIDs: []string{seg.ID}})
	assert.Equal(t, []string{f.List.ID}, c.ListIDs)

	n, err := f.Svc.Campaigns.Send(ctx, f.Brand.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	jobs := f.Queue.SendJobs(t, compose.JobSendEmail)
	require.Len(t, jobs, 3)
	seen := map[string]bool{}
	for _, j := range jobs {
		assert.False(t, seen[j.Message.To], "duplicate recipient %s", j.Message.To)
		seen[j.Message.To] = true
		assert.Equal(t, domain.ScopeCampaign, j.Scope)
		assert.Equal(t, c.ID, j.ScopeID)
		assert.Equal(t, "news@acme.test", j.Message.FromEmail)
		assert.Equal(t, "Hello there", j.Message.Subject)
		assert.Contains(t, j.Message.HTML, "https://t.example.com/t/c/")
		assert.Contains(t, j.Message.HTML, "https://t.example.com/t/u/")
		assert.Contains(t, j.Message.HTML, "/t/o/")
		assert.NotContains(t, j.Message.HTML, `href="https://acme.test/launch"`)
		assert.Contains(t, j.Message.Headers["List-Unsubscribe"], "https://t.example.com/t/u/")
		assert.True(t, strings.HasPrefix(j.Key, "campaign:"+c.ID+":"))
	}

	got, err := f.Svc.Campaigns.Get(ctx, f.Brand.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignSent, got.Status)
	assert.Equal(t, 3, got.Recipients)
	assert.NotNil(t, got.SentAt)

	_, err = f.Svc.Campaigns.Send(ctx, f.Brand.ID, c.ID)
	assert.ErrorIs(t, err, campaign.ErrAlreadySending)
	assert.ErrorIs(t, f.Svc.Campaigns.Delete(ctx, f.Brand.ID, c.ID), campaign.ErrNotDraft)
}

func TestSendWithoutAudience(t *testing.T) {
	f := apptest.New(t)
	c := draft(t, f, campaign.Input{})
	_, err := f.Svc.Campaigns.Send(context.Background(), f.Brand.ID, c.ID)
	assert.ErrorIs(t, err, campaign.ErrMissingAudience)
}

func TestSendFailureMarksFailed(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	f.Contact(t, f.List.ID, "a@example.com")
	c := draft(t, f, campaign.Input{ListIDs: []string{f.List.ID}})
	f.Queue.Fail()

	_, err := f.Svc.Campaigns.Send(ctx, f.Brand.ID, c.ID)
	require.Error(t, err)

	got, err := f.Svc.Campaigns.Get(ctx, f.Brand.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignFailed, got.Status)
}

func TestEngagementCountsEachRecipientOnce(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	a := f.Contact(t, f.List.ID, "a@example.com")
	b := f.Contact(t, f.List.ID, "b@example.com")
	c := draft(t, f, campaign.Input{ListIDs: []string{f.List.ID}})
	_, err := f.Svc.Campaigns.Send(ctx, f.Brand.ID, c.ID)
	require.NoError(t, err)

	evt := func(kind domain.EventKind, contactID string) *domain.TrackingEvent {
		return &domain.TrackingEvent{
			ID: uuid.NewString(), Kind: kind, Scope: domain.ScopeCampaign,
			ScopeID: c.ID, RecipientID: contactID, OccurredAt: time.Now().UTC(),
		}
	}
	open := evt(domain.EventOpen, a.ID)
	require.NoError(t, f.Svc.Campaigns.RecordEvent(ctx, open))
	require.NoError(t, f.Svc.Campaigns.RecordEvent(ctx, open))
	require.NoError(t, f.Svc.Campaigns.RecordEvent(ctx, evt(domain.EventOpen, a.ID)))
	require.NoError(t, f.Svc.Campaigns.RecordEvent(ctx, evt(domain.EventClick, b.ID)))
	require.NoError(t, f.Svc.Campaigns.RecordEvent(ctx, evt(domain.EventClick, "stranger")))

	require.NoError(t, f.Svc.Campaigns.MarkSent(ctx, c.ID, a.ID))
	require.NoError(t, f.Svc.Campaigns.MarkSent(ctx, c.ID, a.ID))

	got, err := f.Svc.Campaigns.Get(ctx, f.Brand.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Opens, "click implies open")
	assert.Equal(t, 1, got.Clicks)
	assert.Equal(t, 1, got.Sent)
}

func TestRecipientTokenMatchesSendAddress(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	a := f.Contact(t, f.List.ID, "a@example.com")
	c := draft(t, f, campaign.Input{ListIDs: []string{f.List.ID}})
	_, err := f.Svc.Campaigns.Send(ctx, f.Brand.ID, c.ID)
	require.NoError(t, err)

	ref := tracking.Ref{Scope: domain.ScopeCampaign, ScopeID: c.ID, RecipientID: a.ID}
	email, err := f.Svc.Engagement.Email(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", email)

	job := f.Queue.SendJobs(t, compose.JobSendEmail)[0]
	token := f.Svc.Signer.Token(ref.Scope, ref.ScopeID, ref.RecipientID, email)
	assert.Contains(t, job.Message.HTML, token)
}

func TestUpdateOnlyDrafts(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	f.Contact(t, f.List.ID, "a@example.com")
	c := draft(t, f, campaign.Input{ListIDs: []string{f.List.ID}})

	upd, err := f.Svc.Campaigns.Update(ctx, f.Brand.ID, c.ID, campaign.Input{
		Name: "Renamed", Subject: "S", HTML: "<p>x</p>", ListIDs: []string{f.List.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", upd.Name)

	_, err = f.Svc.Campaigns.Send(ctx, f.Brand.ID, c.ID)
	require.NoError(t, err)
	_, err = f.Svc.Campaigns.Update(ctx, f.Brand.ID, c.ID, campaign.Input{Name: "x", Subject: "S", HTML: "<p>x</p>"})
	assert.ErrorIs(t, err, campaign.ErrNotDraft)
}
