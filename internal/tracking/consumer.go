package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/apperr"
	"github.com/ignite/mailcraft/internal/pkg/logger"
)

// Recorder applies an event to stored stats. It must tolerate the same
// event ID arriving twice.
type Recorder interface {
	Record(ctx context.Context, evt domain.TrackingEvent) error
}

// Droppable reports whether a Record error will fail the same way on every
// retry: the event is malformed or its recipient is gone.
func Droppable(err error) bool {
	return errors.Is(err, apperr.ErrInvalid) || errors.Is(err, apperr.ErrNotFound)
}

// Consumer drains the SQS transport into a Recorder. Messages that fail
// to record are left for SQS to redeliver; unparseable and Droppable ones
// are deleted.
type Consumer struct {
	client   SQSAPI
	queueURL string
	rec      Recorder
	wait     int32
	backoff  time.Duration
}

func NewConsumer(client SQSAPI, queueURL string, rec Recorder) *Consumer {
	return &Consumer{client: client, queueURL: queueURL, rec: rec, wait: 20, backoff: 5 * time.Second}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	logger.Info("tracking: sqs consumer started", "queue", c.queueURL)
	for ctx.Err() == nil {
		if err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("tracking: sqs receive", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
		}
	}
}

// PollOnce receives one batch and processes it.
func (c *Consumer) PollOnce(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.wait,
	})
	if err != nil {
		return err
	}

	for _, msg := range out.Messages {
		var evt domain.TrackingEvent
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &evt); err != nil {
			logger.Warn("tracking: dropping bad sqs message", "error", err)
			c.delete(ctx, msg.ReceiptHandle)
			continue
		}
		if err := c.rec.Record(ctx, evt); err != nil {
			if !Droppable(err) {
				logger.Error("tracking: record event", "kind", evt.Kind, "event_id", evt.ID, "error", err)
				continue
			}
			logger.Warn("tracking: event dropped", "event_id", evt.ID, "kind", evt.Kind, "scope_id", evt.ScopeID, "error", err)
		}
		c.delete(ctx, msg.ReceiptHandle)
	}
	return nil
}

func (c *Consumer) delete(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		logger.Warn("tracking: sqs delete", "error", err)
	}
}
