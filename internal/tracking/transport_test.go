package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/queue"
)

type fakeSQS struct {
	mu       sync.Mutex
	sent     []string
	inbox    []types.Message
	deleted  []string
	sentOnce chan struct{}
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	f.mu.Unlock()
	if f.sentOnce != nil {
		close(f.sentOnce)
	}
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &sqs.ReceiveMessageOutput{Messages: f.inbox}
	f.inbox = nil
	return out, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type recorderFunc func(context.Context, domain.TrackingEvent) error

func (f recorderFunc) Record(ctx context.Context, evt domain.TrackingEvent) error { return f(ctx, evt) }

func TestQueuePublisherEnqueuesTrackingJob(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	q := queue.New(rdb, "test:jobs")

	evt := domain.TrackingEvent{ID: "e1", Kind: domain.EventOpen, Scope: domain.ScopeCampaign, ScopeID: "c1", RecipientID: "r1"}
	require.NoError(t, NewQueuePublisher(q).Publish(context.Background(), evt))

	job, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, JobType, job.Type)

	var got domain.TrackingEvent
	require.NoError(t, job.Decode(&got))
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, domain.EventOpen, got.Kind)
}

func TestSQSPublisherSendsInBackground(t *testing.T) {
	logger.Discard()
	client := &fakeSQS{sentOnce: make(chan struct{})}
	p := NewSQSPublisher(client, "https://sqs.example/q")

	require.NoError(t, p.Publish(context.Background(), domain.TrackingEvent{ID: "e1", Kind: domain.EventClick}))

	select {
	case <-client.sentOnce:
	case <-time.After(2 * time.Second):
		t.Fatal("message not sent")
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.sent, 1)
	assert.Contains(t, client.sent[0], `"kind":"click"`)
}

func TestConsumerPollOnce(t *testing.T) {
	logger.Discard()
	good, _ := json.Marshal(domain.TrackingEvent{ID: "ok", Kind: domain.EventOpen})
	failing, _ := json.Marshal(domain.TrackingEvent{ID: "fail", Kind: domain.EventOpen})
	unknown, _ := json.Marshal(domain.TrackingEvent{ID: "unknown", Kind: domain.EventOpen, Scope: "newsletter"})
	gone, _ := json.Marshal(domain.TrackingEvent{ID: "gone", Kind: domain.EventClick})
	client := &fakeSQS{inbox: []types.Message{
		{Body: aws.String(string(good)), ReceiptHandle: aws.String("h-good")},
		{Body: aws.String("{not json"), ReceiptHandle: aws.String("h-bad")},
		{Body: aws.String(string(failing)), ReceiptHandle: aws.String("h-fail")},
		{Body: aws.String(string(unknown)), ReceiptHandle: aws.String("h-unknown")},
		{Body: aws.String(string(gone)), ReceiptHandle: aws.String("h-gone")},
	}}

	var recorded []string
	rec := recorderFunc(func(_ context.Context, evt domain.TrackingEvent) error {
		switch evt.ID {
		case "fail":
			return errors.New("db down")
		case "unknown":
			return apperr.Invalid("unknown scope " + string(evt.Scope))
		case "gone":
			return fmt.Errorf("enrollment: %w", apperr.ErrNotFound)
		}
		recorded = append(recorded, evt.ID)
		return nil
	})

	c := NewConsumer(client, "https://sqs.example/q", rec)
	require.NoError(t, c.PollOnce(context.Background()))

	assert.Equal(t, []string{"ok"}, recorded)
	assert.ElementsMatch(t, []string{"h-good", "h-bad", "h-unknown", "h-gone"}, client.deleted)
}
