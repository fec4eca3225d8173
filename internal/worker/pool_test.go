package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ignite/mailcraft/internal/compose"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/queue"
	"github.com/ignite/mailcraft/internal/sender"
	"github.com/ignite/mailcraft/internal/tracking"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg.To)
	return &domain.SendResult{MessageID: fmt.Sprintf("m-%d", len(f.sent)), Provider: "fake", SentAt: time.Now()}, nil
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type marks struct {
	mu  sync.Mutex
	ids []string
}

func (m *marks) MarkSent(_ context.Context, campaignID, contactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, campaignID+"/"+contactID)
	return nil
}

type harness struct {
	q      *queue.Queue
	dedupe *queue.Dedupe
}

// newHarness runs miniredis without t.Cleanup so the caller can close it
// before checking for leaked goroutines.
func newHarness(t *testing.T) (*harness, func()) {
	t.Helper()
	logger.Discard()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	h := &harness{q: queue.New(rdb, "test", queue.WithMaxAttempts(3)), dedupe: queue.NewDedupe(rdb, "test")}
	return h, func() {
		rdb.Close()
		mr.Close()
	}
}

func sendJob(key, to string) domain.SendJob {
	return domain.SendJob{
		Key:         key,
		Scope:       domain.ScopeCampaign,
		ScopeID:     "camp-1",
		RecipientID: "contact-" + to,
		Message:     domain.EmailMessage{ID: key, To: to, FromEmail: "news@acme.test", Subject: "Hi", HTML: "<p>Hi</p>"},
	}
}

func runPool(t *testing.T, h *harness, s sender.Sender, m SentMarker) *Pool {
	t.Helper()
	p := NewPool(h.q, 2)
	p.pollTimeout = 50 * time.Millisecond
	p.Handle(compose.JobSendEmail, NewSendHandler(s, h.dedupe, m).Handle)
	p.Start()
	return p
}

func TestPoolDeliversOnceAndMarksCampaign(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h, closeRedis := newHarness(t)
	defer closeRedis()
	ctx := context.Background()

	s := &fakeSender{}
	m := &marks{}
	_, err := h.q.Enqueue(ctx, compose.JobSendEmail, sendJob("campaign:camp-1:c1:0", "a@example.com"))
	require.NoError(t, err)

	p := runPool(t, h, s, m)
	require.Eventually(t, func() bool { return p.Stats()["processed"] == 1 }, 2*time.Second, 10*time.Millisecond)

	// a redelivered copy of the same logical send
	_, err = h.q.Enqueue(ctx, compose.JobSendEmail, sendJob("campaign:camp-1:c1:0", "a@example.com"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.Stats()["processed"] == 2 }, 2*time.Second, 10*time.Millisecond)
	p.Stop()

	assert.Equal(t, 1, s.count())
	assert.Equal(t, []string{"camp-1/contact-a@example.com"}, m.ids)
	st, err := h.q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{}, st)
}

func TestPoolPermanentFailureDeadLetters(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h, closeRedis := newHarness(t)
	defer closeRedis()
	ctx := context.Background()

	s := &fakeSender{err: fmt.Errorf("%w: address rejected", sender.ErrPermanent)}
	_, err := h.q.Enqueue(ctx, compose.JobSendEmail, sendJob("k1", "bad@example.com"))
	require.NoError(t, err)

	p := runPool(t, h, s, nil)
	require.Eventually(t, func() bool { return p.Stats()["dead"] == 1 }, 2*time.Second, 10*time.Millisecond)
	p.Stop()

	st, err := h.q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Dead)

	claimed, err := h.dedupe.Claim(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, claimed, "failed send releases its claim")
}

func TestPoolTransientFailureRetries(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h, closeRedis := newHarness(t)
	defer closeRedis()
	ctx := context.Background()

	s := &fakeSender{err: errors.New("throttled")}
	_, err := h.q.Enqueue(ctx, compose.JobSendEmail, sendJob("k2", "slow@example.com"))
	require.NoError(t, err)

	p := runPool(t, h, s, nil)
	require.Eventually(t, func() bool { return p.Stats()["retried"] == 1 }, 2*time.Second, 10*time.Millisecond)
	p.Stop()

	st, err := h.q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Delayed: 1}, st)
}

func TestPoolUnknownJobType(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h, closeRedis := newHarness(t)
	defer closeRedis()

	_, err := h.q.Enqueue(context.Background(), "mystery", map[string]string{})
	require.NoError(t, err)
	p := runPool(t, h, &fakeSender{}, nil)
	require.Eventually(t, func() bool { return p.Stats()["dead"] == 1 }, 2*time.Second, 10*time.Millisecond)
	p.Stop()
}

type recorderFunc func(ctx context.Context, evt domain.TrackingEvent) error

func (f recorderFunc) Record(ctx context.Context, evt domain.TrackingEvent) error { return f(ctx, evt) }

var _ tracking.Recorder = recorderFunc(nil)

func TestTrackingHandler(t *testing.T) {
	logger.Discard()
	ctx := context.Background()
	payload, err := json.Marshal(domain.TrackingEvent{ID: "e1", Kind: domain.EventOpen, Scope: domain.ScopeSequence})
	require.NoError(t, err)

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"recorded", nil, false},
		{"invalid scope dropped", apperr.Invalid("unknown scope"), false},
		{"missing recipient dropped", apperr.NotFound("enrollment"), false},
		{"store down retried", errors.New("connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.TrackingEvent
			h := TrackingHandler(recorderFunc(func(_ context.Context, evt domain.TrackingEvent) error {
				got = evt
				return tt.err
			}))
			err := h(ctx, &queue.Job{Type: tracking.JobType, Payload: payload})
			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, errors.Is(err, ErrPermanent))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, "e1", got.ID)
		})
	}

	bad := &queue.Job{Type: tracking.JobType, Payload: []byte(`"nope"`)}
	err = TrackingHandler(recorderFunc(func(context.Context, domain.TrackingEvent) error { return nil }))(ctx, bad)
	assert.ErrorIs(t, err, ErrPermanent)
}

type countingMaintainer struct {
	promoted, recovered atomic.Int64
}

func (c *countingMaintainer) PromoteDue(context.Context) (int, error) {
	c.promoted.Add(1)
	return 0, nil
}

func (c *countingMaintainer) Recover(context.Context) (int, error) {
	c.recovered.Add(1)
	return 0, nil
}

func TestMaintenanceRecoversPeriodically(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	cm := &countingMaintainer{}
	m := NewMaintenance(cm, 5*time.Millisecond)
	m.recoverEvery = 2

	m.Start(context.Background())
	assert.EqualValues(t, 1, cm.recovered.Load(), "recover runs once at start")
	require.Eventually(t, func() bool { return cm.recovered.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()
	assert.GreaterOrEqual(t, cm.promoted.Load(), int64(3))
}
