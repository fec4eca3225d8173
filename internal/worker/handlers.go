package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/queue"
	"github.com/ignite/mailcraft/internal/sender"
	"github.com/ignite/mailcraft/internal/tracking"
)

// errInFlight retries a send whose key another worker still holds.
var errInFlight = errors.New("send already in flight")

// Deduper is the at-most-once guard around provider calls.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Done(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
	IsDone(ctx context.Context, key string) (bool, error)
}

// SentMarker records campaign deliveries.
type SentMarker interface {
	MarkSent(ctx context.Context, campaignID, contactID string) error
}

// SendHandler delivers domain.SendJob payloads. Duplicate jobs for a key
// that already went out are acked without calling the provider.
type SendHandler struct {
	sender    sender.Sender
	dedupe    Deduper
	campaigns SentMarker
}

func NewSendHandler(s sender.Sender, d Deduper, campaigns SentMarker) *SendHandler {
	return &SendHandler{sender: s, dedupe: d, campaigns: campaigns}
}

func (h *SendHandler) Handle(ctx context.Context, job *queue.Job) error {
	var sj domain.SendJob
	if err := job.Decode(&sj); err != nil {
		return permanent(fmt.Errorf("decode send job: %w", err))
	}
	if sj.Key == "" {
		return permanent(errors.New("send job has no key"))
	}

	claimed, err := h.dedupe.Claim(ctx, sj.Key)
	if err != nil {
		return fmt.Errorf("claim %s: %w", sj.Key, err)
	}
	if !claimed {
		done, err := h.dedupe.IsDone(ctx, sj.Key)
		if err != nil {
			return fmt.Errorf("check %s: %w", sj.Key, err)
		}
		if done {
			logger.Info("send: duplicate dropped", "key", sj.Key)
			return nil
		}
		return errInFlight
	}

	res, err := h.sender.Send(ctx, &sj.Message)
	if err != nil {
		if rerr := h.dedupe.Release(ctx, sj.Key); rerr != nil {
			logger.Warn("send: release claim", "key", sj.Key, "error", rerr)
		}
		if errors.Is(err, sender.ErrPermanent) {
			return permanent(err)
		}
		return err
	}
	if err := h.dedupe.Done(ctx, sj.Key); err != nil {
		logger.Warn("send: mark done", "key", sj.Key, "error", err)
	}
	logger.Info("send: delivered",
		"provider", res.Provider,
		"message_id", res.MessageID,
		"scope", sj.Scope,
		"scope_id", sj.ScopeID,
		"email", sj.Message.To,
	)

	// the message is out; a failed counter update must not resend it
	if sj.Scope == domain.ScopeCampaign && h.campaigns != nil {
		if err := h.campaigns.MarkSent(ctx, sj.ScopeID, sj.RecipientID); err != nil {
			logger.Error("send: mark campaign recipient sent", "campaign_id", sj.ScopeID, "contact_id", sj.RecipientID, "error", err)
		}
	}
	return nil
}

// TrackingHandler applies tracking_event jobs. Events for recipients that
// no longer exist, or that are malformed, are dropped.
func TrackingHandler(rec tracking.Recorder) Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var evt domain.TrackingEvent
		if err := job.Decode(&evt); err != nil {
			return permanent(fmt.Errorf("decode tracking event: %w", err))
		}
		err := rec.Record(ctx, evt)
		if tracking.Droppable(err) {
			logger.Warn("tracking: event dropped", "event_id", evt.ID, "kind", evt.Kind, "scope_id", evt.ScopeID, "error", err)
			return nil
		}
		return err
	}
}
