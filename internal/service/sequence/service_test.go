package sequence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/app/apptest"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/service/sequence"
)

func twoSteps(trigger string) sequence.Input {
	return sequence.Input{
		Name:          "Onboarding",
		TriggerListID: trigger,
		Steps: []sequence.StepInput{
			{Subject: "Welcome {{ first_name | default: 'friend' }}", HTML: "<p>Hi</p>"},
			{Subject: "Day two", HTML: "<p>Tips</p>", DelayHours: 24},
		},
	}
}

func setup(t *testing.T) (*apptest.Fixture, *domain.Sequence, *domain.Contact) {
	t.Helper()
	f := apptest.New(t)
	seq, err := f.Svc.Sequences.Create(context.Background(), f.Brand.ID, twoSteps(""))
	require.NoError(t, err)
	c := f.Contact(t, f.List.ID, "a@example.com")
	return f, seq, c
}

func event(kind domain.EventKind, e *domain.Enrollment, step int) *domain.TrackingEvent {
	return &domain.TrackingEvent{
		ID:          uuid.NewString(),
		Kind:        kind,
		Scope:       domain.ScopeSequence,
		ScopeID:     e.SequenceID,
		RecipientID: e.ID,
		Step:        step,
		OccurredAt:  time.Now().UTC(),
	}
}

func TestCreateValidation(t *testing.T) {
	f := apptest.New(t)
	_, err := f.Svc.Sequences.Create(context.Background(), f.Brand.ID, sequence.Input{Name: "empty"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "steps")

	_, err = f.Svc.Sequences.Create(context.Background(), f.Brand.ID, sequence.Input{
		Name:  "bad",
		Steps: []sequence.StepInput{{Subject: "{% if %}", HTML: "", DelayHours: -1}},
	})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "steps[0].subject")
	assert.Contains(t, ve.Fields, "steps[0].html")
	assert.Contains(t, ve.Fields, "steps[0].delay_hours")
}

func TestEnrollIsIdempotent(t *testing.T) {
	f, seq, c := setup(t)
	ctx := context.Background()

	e, created, err := f.Svc.Sequences.Enroll(ctx, f.Brand.ID, seq.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 0, e.CurrentStep)
	assert.Equal(t, c.Email, e.Email)
	require.NotNil(t, e.NextSendAt)

	again, created, err := f.Svc.Sequences.Enroll(ctx, f.Brand.ID, seq.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e.ID, again.ID)
}

func TestEnrollRejectsUnmailable(t *testing.T) {
	f, seq, c := setup(t)
	ctx := context.Background()
	_, err := f.Svc.Contacts.Unsubscribe(ctx, f.Brand.ID, c.ID)
	require.NoError(t, err)

	_, _, err = f.Svc.Sequences.Enroll(ctx, f.Brand.ID, seq.ID, c.ID)
	assert.ErrorIs(t, err, sequence.ErrNotMailable)
}

func TestAdvanceOnlyMovesForward(t *testing.T) {
	f, seq, c := setup(t)
	ctx := context.Background()
	e, _, err := f.Svc.Sequences.Enroll(ctx, f.Brand.ID, seq.ID, c.ID)
	require.NoError(t, err)

	due, err := f.Svc.Sequences.Due(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	e, err = f.Svc.Sequences.Advance(ctx, e.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, e.CurrentStep)
	assert.NotNil(t, e.StepProgress(0).SentAt)

	_, err = f.Svc.Sequences.Advance(ctx, e.ID, 0)
	assert.ErrorIs(t, err, domain.ErrStepMismatch, "replayed send")

	due, err = f.Svc.Sequences.Due(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "second step waits for its delay")

	e, err = f.Svc.Sequences.Advance(ctx, e.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentCompleted, e.Status)
	assert.Nil(t, e.NextSendAt)

	_, err = f.Svc.Sequences.Advance(ctx, e.ID, 2)
	assert.ErrorIs(t, err, domain.ErrEnrollmentClosed)
}

func TestRecordEventCountsFirstTouchOnce(t *testing.T) {
	f, seq, c := setup(t)
	ctx := context.Background()
	e, _, err := f.Svc.Sequences.Enroll(ctx, f.Brand.ID, seq.ID, c.ID)
	require.NoError(t, err)
	_, err = f.Svc.Sequences.Advance(ctx, e.ID, 0)
	require.NoError(t, err)

	open := event(domain.EventOpen, e, 0)
	require.NoError(t, f.Svc.Sequences.RecordEvent(ctx, open))
	require.NoError(t, f.Svc.Sequences.RecordEvent(ctx, open), "redelivered event")
	require.NoError(t, f.Svc.Sequences.RecordEvent(ctx, event(domain.EventOpen, e, 0)))
	require.NoError(t, f.Svc.Sequences.RecordEvent(ctx, event(domain.EventClick, e, 0)))

	got, err := f.Svc.Sequences.GetEnrollment(ctx, f.Brand.ID, e.ID)
	require.NoError(t, err)
	p := got.StepProgress(0)
	assert.Equal(t, 2, p.Opens)
	assert.Equal(t, 1, p.Clicks)
	assert.NotNil(t, p.OpenedAt)
	assert.NotNil(t, p.ClickedAt)

	stats, err := f.Svc.Sequences.Stats(ctx, f.Brand.ID, seq.ID)
	require.NoError(t, err)
	require.Len(t, stats.Steps, 2)
	assert.Equal(t, domain.StepStats{
		Step: 0, Subject: seq.Steps[0].Subject, Sent: 1, Opened: 1, Clicked: 1, OpenRate: 1, ClickRate: 1,
	}, stats.Steps[0])
	assert.Equal(t, 0, stats.Steps[1].Sent)
	assert.Equal(t, 1, stats.Enrolled)
	assert.Equal(t, 1, stats.Active)
}

func TestClickImpliesOpen(t *testing.T) {
	f, seq, c := setup(t)
	ctx := context.Background()
	e, _, err := f.Svc.Sequences.Enroll(ctx, f.Brand.ID, seq.ID, c.ID)
	require.NoError(t, err)
	_, err = f.Svc.Sequences.Advance(ctx, e.ID, 0)
	require.NoError(t, err)

	require.NoError(t, f.Svc.Sequences.RecordEvent(ctx, event(domain.EventClick, e, 0)))

	stats, err := f.Svc.Sequences.Stats(ctx, f.Brand.ID, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Steps[0].Opened)
	assert.Equal(t, 1, stats.Steps[0].Clicked)
}

func TestEventForUnsentStepIsDropped(t *testing.T) {
	f, seq, c := setup(t)
	ctx := context.Background()
	e, _, err := f.Svc.Sequences.Enroll(ctx, f.Brand.ID, seq.ID, c.ID)
	require.NoError(t, err)

	require.NoError(t, f.Svc.Sequences.RecordEvent(ctx, event(domain.EventOpen, e, 0)))
	missing := event(domain.EventOpen, e, 0)
	missing.RecipientID = "nope"
	require.NoError(t, f.Svc.Sequences.RecordEvent(ctx, missing))

	got, err := f.Svc.Sequences.GetEnrollment(ctx, f.Brand.ID, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got.StepProgress(0).OpenedAt)
}

func TestUnsubscribeCancelsEnrollments(t *testing.T) {
	f, seq, c := setup(t)
	ctx := context.Background()
	e, _, err := f.Svc.Sequences.Enroll(ctx, f.Brand.ID, seq.ID, c.ID)
	require.NoError(t, err)

	_, err = f.Svc.Contacts.Unsubscribe(ctx, f.Brand.ID, c.ID)
	require.NoError(t, err)

	got, err := f.Svc.Sequences.GetEnrollment(ctx, f.Brand.ID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentCancelled, got.Status)

	due, err := f.Svc.Sequences.Due(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestEnrollFromTriggerList(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	_, err := f.Svc.Sequences.Create(ctx, f.Brand.ID, twoSteps(f.List.ID))
	require.NoError(t, err)
	paused := twoSteps(f.List.ID)
	paused.Status = domain.SequencePaused
	_, err = f.Svc.Sequences.Create(ctx, f.Brand.ID, paused)
	require.NoError(t, err)

	c := f.Contact(t, f.List.ID, "a@example.com")
	n, err := f.Svc.Sequences.EnrollFromList(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.Svc.Sequences.EnrollFromList(ctx, c)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCompleteAfterStepsRemoved(t *testing.T) {
	f, seq, c := setup(t)
	ctx := context.Background()
	e, _, err := f.Svc.Sequences.Enroll(ctx, f.Brand.ID, seq.ID, c.ID)
	require.NoError(t, err)
	e, err = f.Svc.Sequences.Advance(ctx, e.ID, 0)
	require.NoError(t, err)

	require.NoError(t, f.Svc.Sequences.Complete(ctx, e))
	got, err := f.Svc.Sequences.GetEnrollment(ctx, f.Brand.ID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentCompleted, got.Status)
	assert.Equal(t, 1, got.CurrentStep)
}
