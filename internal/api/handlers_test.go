package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/app/apptest"
	"github.com/ignite/mailcraft/internal/compose"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/service/account"
	"github.com/ignite/mailcraft/internal/service/contact"
	"github.com/ignite/mailcraft/internal/service/sequence"
	"github.com/ignite/mailcraft/internal/tracking"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.TrackingEvent
}

func (p *capturePublisher) Publish(_ context.Context, evt domain.TrackingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

type testAPI struct {
	f      *apptest.Fixture
	router http.Handler
	pub    *capturePublisher
	token  string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	f := apptest.New(t)
	pub := &capturePublisher{}
	router := NewRouter(Deps{
		Config:   f.Config,
		Services: f.Svc,
		Tracking: tracking.NewHandler(f.Svc.Signer, f.Svc.Engagement, pub, nil).Routes(),
	})
	sess, err := f.Svc.Accounts.Login(context.Background(), "owner@example.com", apptest.Password)
	require.NoError(t, err)
	return &testAPI{f: f, router: router, pub: pub, token: sess.Token}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) brandPath(rest string) string {
	return "/api/brands/" + a.f.Brand.ID + rest
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRegisterLoginMe(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/auth/register", "", account.RegisterInput{
		Email: "New@Example.com", Name: "New", Password: "long enough password",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "new@example.com", Password: "long enough password"})
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decode[account.Session](t, rec)
	require.NotEmpty(t, sess.Token)

	rec = a.do(t, http.MethodGet, "/api/auth/me", sess.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new@example.com", decode[domain.User](t, rec).Email)

	rec = a.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "new@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorStatuses(t *testing.T) {
	a := newTestAPI(t)

	other, err := a.f.Svc.Accounts.Register(context.Background(), account.RegisterInput{
		Email: "intruder@example.com", Name: "X", Password: "another long password",
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"no token", http.MethodGet, a.brandPath("/contacts"), "", nil, http.StatusUnauthorized, "unauthorized"},
		{"bad token", http.MethodGet, a.brandPath("/contacts"), "garbage", nil, http.StatusUnauthorized, "unauthorized"},
		{"other owner", http.MethodGet, a.brandPath("/contacts"), other.Token, nil, http.StatusForbidden, "forbidden"},
		{"missing brand", http.MethodGet, "/api/brands/00000000-0000-0000-0000-000000000000", a.token, nil, http.StatusNotFound, "not_found"},
		{"missing contact", http.MethodGet, a.brandPath("/contacts/nope"), a.token, nil, http.StatusNotFound, "not_found"},
		{"unknown route", http.MethodGet, "/api/nowhere", "", nil, http.StatusNotFound, "not_found"},
		{"wrong method", http.MethodPatch, "/api/auth/login", "", nil, http.StatusMethodNotAllowed, "method_not_allowed"},
		{"bad json", http.MethodPost, a.brandPath("/contacts"), a.token, "not an object", http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[httputil.ErrorResponse](t, rec).Code)
		})
	}
}

func TestContactsCRUD(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, a.brandPath("/contacts"), a.token, map[string]any{
		"list_id": a.f.List.ID, "email": "Ada@Example.com", "tags": []string{"VIP"},
		"custom_fields": map[string]any{"plan": "pro"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decode[domain.Contact](t, rec)
	assert.Equal(t, "ada@example.com", c.Email)
	assert.Equal(t, []string{"vip"}, c.Tags)

	rec = a.do(t, http.MethodPost, a.brandPath("/contacts"), a.token, map[string]any{"list_id": a.f.List.ID, "email": "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[httputil.ErrorResponse](t, rec).Details, "email")

	rec = a.do(t, http.MethodPut, a.brandPath("/contacts/"+c.ID+"/status"), a.token, statusRequest{Status: domain.ContactUnsubscribed})
	require.Equal(t, http.StatusOK, rec.Code)
	c = decode[domain.Contact](t, rec)
	assert.Equal(t, domain.ContactUnsubscribed, c.Status)
	assert.True(t, c.IsUnsubscribed)

	rec = a.do(t, http.MethodPost, a.brandPath("/contacts/"+c.ID+"/tags"), a.token, tagsRequest{Tags: []string{"beta"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"vip", "beta"}, decode[domain.Contact](t, rec).Tags)

	a.f.Contact(t, a.f.List.ID, "bob@example.com")
	rec = a.do(t, http.MethodGet, a.brandPath("/contacts?limit=1&page=1"), a.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Data       []domain.Contact `json:"data"`
		Pagination PaginationMeta   `json:"pagination"`
	}](t, rec)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.True(t, page.Pagination.HasMore)

	rec = a.do(t, http.MethodDelete, a.brandPath("/contacts/"+c.ID), a.token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSegmentPreviewAndExport(t *testing.T) {
	a := newTestAPI(t)
	a.f.Contact(t, a.f.List.ID, "vip@example.com", "vip")
	a.f.Contact(t, a.f.List.ID, "plain@example.com")

	rec := a.do(t, http.MethodPost, a.brandPath("/segments/preview"), a.token, map[string]any{
		"rules": map[string]any{
			"logic":      "AND",
			"conditions": []map[string]any{{"type": "tag", "operator": "tag_has", "value": "vip"}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview struct {
		Count  int              `json:"count"`
		Sample []domain.Contact `json:"sample"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, 1, preview.Count)
	require.Len(t, preview.Sample, 1)
	assert.Equal(t, "vip@example.com", preview.Sample[0].Email)

	rec = a.do(t, http.MethodPost, a.brandPath("/segments/preview"), a.token, map[string]any{
		"rules": map[string]any{
			"logic":      "AND",
			"conditions": []map[string]any{{"type": "tag", "operator": "bogus", "value": "vip"}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, a.brandPath("/lists/"+a.f.List.ID+"/export.csv"), a.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2", rec.Header().Get("X-Row-Count"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id,email"))
}

func TestPublicSubscribeEnrolls(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	seq, err := a.f.Svc.Sequences.Create(ctx, a.f.Brand.ID, sequence.Input{
		Name:          "Welcome",
		TriggerListID: a.f.List.ID,
		Steps:         []sequence.StepInput{{Subject: "Welcome", HTML: "<p>Hi</p>"}},
	})
	require.NoError(t, err)

	form := url.Values{"email": {"signup@example.com"}, "first_name": {"Sam"}, "tags": {"web, promo"}, "plan": {"free"}}
	path := "/public/lists/" + a.f.List.ID + "/subscribe?key=" + a.f.List.SubmitKey

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	contacts, total, err := a.f.Svc.Contacts.List(ctx, a.f.Brand.ID, contact.ListFilter{ListID: a.f.List.ID})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.ElementsMatch(t, []string{"web", "promo"}, contacts[0].Tags)
	assert.Equal(t, "free", contacts[0].CustomFields["plan"])

	_, n, err := a.f.Svc.Sequences.ListEnrollments(ctx, a.f.Brand.ID, seq.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// resubmitting is not a new contact
	rec = a.do(t, http.MethodPost, path, "", map[string]any{"email": "signup@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/public/lists/"+a.f.List.ID+"/subscribe?key=wrong", "", map[string]any{"email": "x@example.com"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCampaignSendQueuesJobs(t *testing.T) {
	a := newTestAPI(t)
	a.f.Contact(t, a.f.List.ID, "one@example.com")
	a.f.Contact(t, a.f.List.ID, "two@example.com")

	rec := a.do(t, http.MethodPost, a.brandPath("/campaigns"), a.token, map[string]any{
		"name": "Launch", "subject": "Hi {{ first_name }}", "html": "<p>News</p>", "list_ids": []string{a.f.List.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decode[domain.Campaign](t, rec)

	rec = a.do(t, http.MethodPost, a.brandPath("/campaigns/"+c.ID+"/send"), a.token, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Len(t, a.f.Queue.SendJobs(t, compose.JobSendEmail), 2)

	rec = a.do(t, http.MethodPost, a.brandPath("/campaigns/"+c.ID+"/send"), a.token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTrackingMountedAndHealth(t *testing.T) {
	a := newTestAPI(t)

	ref := tracking.Ref{Scope: domain.ScopeSequence, ScopeID: "seq", RecipientID: "enr"}
	rec := a.do(t, http.MethodGet, "/t/o/"+ref.Encode()+"/deadbeef.gif", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Empty(t, a.pub.events)

	rec = a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/operators", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tag_has")
}

func TestHealthCheckerStatus(t *testing.T) {
	assert.Equal(t, "healthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down", Message: "not configured"},
		"redis":    {Status: "up"},
	}))
	assert.Equal(t, "unhealthy", determineOverallStatus(map[string]ComponentCheck{
		"redis": {Status: "down", Message: "dial tcp: refused"},
	}))
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{
		"s3": {Status: "down", Message: "head bucket: forbidden"},
	}))

	hc := NewHealthChecker(nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPagination(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?page=3&limit=1000", nil)
	p := ParsePagination(r, 50, 500)
	assert.Equal(t, PaginationParams{Page: 3, Limit: 500, Offset: 1000}, p)

	resp := NewPaginatedResponse([]int{}, PaginationParams{Page: 1, Limit: 10}, 25)
	assert.Equal(t, 3, resp.Pagination.TotalPages)
	assert.True(t, resp.Pagination.HasMore)
}
