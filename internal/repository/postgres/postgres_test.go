package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/segmentation"
	"github.com/ignite/mailcraft/internal/service/account"
	"github.com/ignite/mailcraft/internal/service/campaign"
	"github.com/ignite/mailcraft/internal/service/contact"
	"github.com/ignite/mailcraft/internal/service/sequence"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var contactCols = []string{"id", "brand_id", "list_id", "email", "first_name", "last_name",
	"status", "is_unsubscribed", "custom_fields", "tags", "source",
	"created_at", "updated_at", "unsubscribed_at"}

func TestUserRepo_CreateDuplicateEmail(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec(q("INSERT INTO users")).WillReturnError(&pq.Error{Code: "23505"})

	err := NewUserRepo(db).CreateUser(context.Background(), &domain.User{ID: "u1", Email: "a@example.com"})
	assert.ErrorIs(t, err, account.ErrEmailTaken)
}

func TestContactRepo_GetReconcilesLegacyFlag(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery(q("FROM contacts s WHERE s.id = $1 AND s.brand_id = $2")).
		WithArgs("c1", "b1").
		WillReturnRows(sqlmock.NewRows(contactCols).AddRow(
			"c1", "b1", "l1", "a@example.com", "Ann", "", "active", true,
			[]byte(`{"plan":"pro"}`), "{vip,trial}", "", now, now, nil))

	c, err := NewContactRepo(db).Get(context.Background(), "b1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.ContactUnsubscribed, c.Status)
	assert.True(t, c.IsUnsubscribed)
	assert.Equal(t, []string{"vip", "trial"}, c.Tags)
	assert.Equal(t, "pro", c.CustomFields["plan"])
}

func TestContactRepo_GetMissing(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery(q("FROM contacts s")).WillReturnRows(sqlmock.NewRows(contactCols))

	_, err := NewContactRepo(db).Get(context.Background(), "b1", "nope")
	assert.ErrorIs(t, err, contact.ErrNotFound)
}

func TestContactRepo_MatchRunsCompiledRules(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	rules := segmentation.And(segmentation.Condition{
		Type: segmentation.ConditionTag, Operator: segmentation.OpTagHas, Value: "vip",
	})

	mock.ExpectQuery(q("SELECT COUNT(*)\nFROM contacts s\nWHERE s.brand_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(q("ORDER BY s.created_at, s.id LIMIT")).
		WillReturnRows(sqlmock.NewRows(contactCols).AddRow(
			"c1", "b1", "l1", "a@example.com", "", "", "active", false,
			[]byte(`{}`), "{vip}", "", now, now, nil))

	out, total, err := NewContactRepo(db).Match(context.Background(), segmentation.MatchQuery{
		BrandID: "b1", Rules: rules, MailableOnly: true, Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ID)
}

func TestContactRepo_MatchSkipsPageWhenEmpty(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery(q("SELECT COUNT(*)")).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	out, total, err := NewContactRepo(db).Match(context.Background(), segmentation.MatchQuery{BrandID: "b1"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, out)
}

func TestSequenceRepo_SaveEnrollmentStaleStep(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE enrollments SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS (SELECT 1 FROM enrollments WHERE id = $1)")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	e := &domain.Enrollment{ID: "e1", SequenceID: "s1", CurrentStep: 2, Status: domain.EnrollmentActive}
	err := NewSequenceRepo(db).SaveEnrollment(context.Background(), e, 1, sequence.StepCounts{Sent: 1})
	assert.ErrorIs(t, err, domain.ErrStepMismatch)
}

func TestSequenceRepo_SaveEnrollmentCountsStep(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE enrollments SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO sequence_step_stats")).
		WithArgs("s1", 1, 1, 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := &domain.Enrollment{ID: "e1", SequenceID: "s1", CurrentStep: 2, Status: domain.EnrollmentActive}
	require.NoError(t, NewSequenceRepo(db).SaveEnrollment(context.Background(), e, 1, sequence.StepCounts{Sent: 1}))
}

func TestSequenceRepo_RecordEngagementDuplicateEvent(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO tracking_events")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	called := false
	fresh, err := NewSequenceRepo(db).RecordEngagement(context.Background(),
		&domain.TrackingEvent{ID: "ev1", Kind: domain.EventOpen, Scope: domain.ScopeSequence, RecipientID: "e1"},
		func(*domain.Enrollment) (sequence.StepCounts, error) {
			called = true
			return sequence.StepCounts{}, nil
		})
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.False(t, called)
}

func TestSequenceRepo_RecordEngagementAppliesUnderLock(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO tracking_events")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "sequence_id", "brand_id", "contact_id", "email",
			"current_step", "status", "next_send_at", "progress", "created_at", "updated_at", "completed_at"}).
			AddRow("e1", "s1", "b1", "c1", "a@example.com", 1, "active", now,
				[]byte(`[{"step":0,"sent_at":"2026-01-01T00:00:00Z","opens":0,"clicks":0}]`), now, now, nil))
	mock.ExpectExec(q("UPDATE enrollments SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO sequence_step_stats")).
		WithArgs("s1", 0, 0, 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	evt := &domain.TrackingEvent{ID: "ev1", Kind: domain.EventOpen, Scope: domain.ScopeSequence,
		ScopeID: "s1", RecipientID: "e1", Step: 0, OccurredAt: now}
	fresh, err := NewSequenceRepo(db).RecordEngagement(context.Background(), evt,
		func(e *domain.Enrollment) (sequence.StepCounts, error) {
			first, err := e.MarkOpened(0, now)
			if err != nil || !first {
				return sequence.StepCounts{}, err
			}
			return sequence.StepCounts{Opened: 1}, nil
		})
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestCampaignRepo_TransitionStatusConflict(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec(q("UPDATE campaigns")).
		WithArgs("k1", "draft", "sending", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1)")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := NewCampaignRepo(db).TransitionStatus(context.Background(), "k1",
		domain.CampaignDraft, domain.CampaignSending, time.Now())
	assert.ErrorIs(t, err, campaign.ErrInvalidTransition)
}

func TestCampaignRepo_MarkSentOnce(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE campaign_recipients SET sent_at = $3")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("FROM campaign_recipients WHERE campaign_id = $1 AND contact_id = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"campaign_id", "contact_id", "brand_id", "email",
			"sent_at", "opened_at", "clicked_at"}).AddRow("k1", "c1", "b1", "a@example.com", now, nil, nil))
	mock.ExpectCommit()

	require.NoError(t, NewCampaignRepo(db).MarkSent(context.Background(), "k1", "c1", now))
}

func TestMigrateSkipsApplied(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)")).
		WithArgs("001_init.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q("SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)")).
		WithArgs("002_safe_casts.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	n, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithTimeouts(t *testing.T) {
	got := withTimeouts("postgres://u:p@db/app?sslmode=disable")
	assert.Contains(t, got, "sslmode=disable&connect_timeout=5&options=")
	assert.Contains(t, got, "-c%20TimeZone%3DUTC")
	assert.Equal(t, "host=db dbname=app", withTimeouts("host=db dbname=app"))
}
