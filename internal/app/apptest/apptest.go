// Package apptest builds a fully wired in-memory service graph for tests.
package apptest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/app"
	"github.com/ignite/mailcraft/internal/config"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/queue"
	"github.com/ignite/mailcraft/internal/service/account"
	"github.com/ignite/mailcraft/internal/service/brand"
	"github.com/ignite/mailcraft/internal/service/contact"
)

// Queue records enqueued jobs instead of talking to Redis.
type Queue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	// Err, when set, fails every Enqueue.
	Err error
}

func (q *Queue) Enqueue(_ context.Context, typ string, payload any) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return nil, q.Err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job := &queue.Job{ID: uuid.NewString(), Type: typ, Payload: body, EnqueuedAt: time.Now().UTC()}
	q.jobs = append(q.jobs, job)
	return job, nil
}

func (q *Queue) Jobs() []*queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.Job(nil), q.jobs...)
}

// SendJobs decodes every job of type typ as a domain.SendJob.
func (q *Queue) SendJobs(t *testing.T, typ string) []domain.SendJob {
	t.Helper()
	var out []domain.SendJob
	for _, j := range q.Jobs() {
		if j.Type != typ {
			continue
		}
		var sj domain.SendJob
		require.NoError(t, j.Decode(&sj))
		out = append(out, sj)
	}
	return out
}

func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = nil
}

var errQueueDown = errors.New("queue down")

// Fail makes subsequent Enqueue calls return an error.
func (q *Queue) Fail() { q.mu.Lock(); q.Err = errQueueDown; q.mu.Unlock() }

// Fixture is a service graph plus one user, brand and list.
type Fixture struct {
	Config *config.Config
	Svc    *app.Services
	Queue  *Queue
	UserID string
	Brand  *domain.Brand
	List   *domain.List
}

// Config returns a test configuration with fixed secrets.
func Config() *config.Config {
	cfg, _ := config.Load("")
	cfg.Env = "test"
	cfg.Auth.JWTSecret = "test-jwt-secret-0123456789abcdef"
	cfg.Tracking.Secret = "test-tracking-secret"
	cfg.Tracking.BaseURL = "https://t.example.com"
	return cfg
}

func New(t *testing.T) *Fixture {
	t.Helper()
	logger.Discard()
	cfg := Config()
	q := &Queue{}
	svc := app.NewServices(cfg, app.MemoryRepos(), q)
	ctx := context.Background()

	sess, err := svc.Accounts.Register(ctx, accountInput("owner@example.com"))
	require.NoError(t, err)
	b, err := svc.Brands.CreateBrand(ctx, sess.User.ID, brand.BrandInput{
		Name: "Acme", FromName: "Acme News", FromEmail: "news@acme.test",
	})
	require.NoError(t, err)
	l, err := svc.Brands.CreateList(ctx, b.ID, "Newsletter")
	require.NoError(t, err)

	return &Fixture{Config: cfg, Svc: svc, Queue: q, UserID: sess.User.ID, Brand: b, List: l}
}

// NewList adds another list to the fixture brand.
func (f *Fixture) NewList(t *testing.T, name string) *domain.List {
	t.Helper()
	l, err := f.Svc.Brands.CreateList(context.Background(), f.Brand.ID, name)
	require.NoError(t, err)
	return l
}

// Contact creates an active contact in listID.
func (f *Fixture) Contact(t *testing.T, listID, email string, tags ...string) *domain.Contact {
	t.Helper()
	c, err := f.Svc.Contacts.Create(context.Background(), f.Brand.ID, contact.CreateInput{
		ListID: listID, Email: email, Tags: tags,
	})
	require.NoError(t, err)
	return c
}

// Password is the password of every fixture account.
const Password = "correct horse battery"

func accountInput(email string) account.RegisterInput {
	return account.RegisterInput{Email: email, Name: "Owner", Password: Password}
}
